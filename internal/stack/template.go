package stack

import (
	"fmt"
	"os"
	"strings"
)

// LoadTemplate resolves a template location. https:// locations are passed
// to CloudFormation as a URL; anything else is read from disk.
func LoadTemplate(location string) (body, url string, err error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", "", fmt.Errorf("template location is required")
	}

	if strings.HasPrefix(location, "https://") {
		return "", location, nil
	}

	path := strings.TrimPrefix(location, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read template %s: %w", path, err)
	}
	return string(data), "", nil
}

// ParseCapabilities splits a comma separated capability list
func ParseCapabilities(s string) []string {
	var caps []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			caps = append(caps, c)
		}
	}
	return caps
}
