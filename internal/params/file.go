package params

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/savaki/cfn-actions/internal/models"
	"github.com/segmentio/ksuid"
)

// RunDir returns the per-run scratch directory below base. Runs without an
// identity, e.g. local invocations, get a fresh unique id.
func RunDir(base, runID, runNumber string) string {
	if runID == "" && runNumber == "" {
		return filepath.Join(base, ksuid.New().String())
	}
	return filepath.Join(base, runID+runNumber)
}

// WriteFile writes pp as an indented JSON list to
// <dir>/cfn-parameter-<runID>-<runNumber>.json and returns the file:// URL
// of the written file.
func WriteFile(dir, runID, runNumber string, pp []models.Parameter) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(pp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal parameters: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("cfn-parameter-%s-%s.json", runID, runNumber))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write parameter file %s: %w", path, err)
	}

	return FileURL(path), nil
}

// FileURL renders an absolute path as a file:// URL
func FileURL(path string) string {
	return "file://" + filepath.ToSlash(path)
}
