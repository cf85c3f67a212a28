// Package tags merges stack tags from a JSON document and key=value lines
package tags

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	ierrors "github.com/savaki/cfn-actions/internal/errors"
	"github.com/savaki/cfn-actions/internal/models"
	"github.com/savaki/cfn-actions/internal/utils"
)

// Merge parses jsonSource and then kvSource, the key=value lines winning
// for keys present in both. A source that cannot be parsed is skipped with a
// warning. An empty result is an error since every stack must be tagged.
func Merge(ctx context.Context, jsonSource, kvSource string) ([]models.Tag, error) {
	logger := zerolog.Ctx(ctx)

	var base []models.Tag
	if strings.TrimSpace(jsonSource) != "" {
		parsed, err := ParseJSON([]byte(jsonSource))
		if err != nil {
			logger.Warn().Err(err).Msg("Skipping unparseable JSON tags")
		} else {
			base = parsed
		}
	}

	overrides := ParseKeyValue(kvSource)
	merged := utils.MergeByKey(base, overrides, models.Tag.TagKey)

	if len(merged) == 0 {
		return nil, ierrors.ErrNoTags
	}

	logger.Info().
		Int("json", len(base)).
		Int("key_value", len(overrides)).
		Int("merged", len(merged)).
		Msg("Merged tags")

	return merged, nil
}

// ParseJSON accepts either a list of {Key, Value} objects or a flat object of
// key to value in document order.
func ParseJSON(data []byte) ([]models.Tag, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '{' {
		members, err := utils.DecodeOrderedObject(trimmed)
		if err != nil {
			return nil, err
		}
		tags := make([]models.Tag, 0, len(members))
		for _, m := range members {
			tags = append(tags, models.Tag{Key: m.Key, Value: utils.Stringify(m.Value)})
		}
		return tags, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var records []map[string]any
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse tags: %w", err)
	}

	tags := make([]models.Tag, 0, len(records))
	for i, record := range records {
		key, ok := record["Key"].(string)
		if !ok || key == "" {
			return nil, fmt.Errorf("failed to parse tags: record %d has no Key", i)
		}
		tags = append(tags, models.Tag{Key: key, Value: utils.Stringify(record["Value"])})
	}
	return tags, nil
}

// ParseKeyValue reads one key=value tag per line. Blank lines, comments and
// lines without '=' are skipped. Keys and values are trimmed and one layer
// of matching quotes is removed from the value.
func ParseKeyValue(s string) []models.Tag {
	var tags []models.Tag

	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		tags = append(tags, models.Tag{Key: key, Value: unquote(strings.TrimSpace(value))})
	}
	return tags
}

func unquote(value string) string {
	if len(value) < 2 {
		return value
	}
	first, last := value[0], value[len(value)-1]
	if (first == '"' || first == '\'') && first == last {
		return value[1 : len(value)-1]
	}
	return value
}

// Marshal renders tags as the compact JSON list written to the TAGS output
func Marshal(tags []models.Tag) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(tags); err != nil {
		return "", fmt.Errorf("failed to marshal tags: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
