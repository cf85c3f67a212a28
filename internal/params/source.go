// Package params assembles CloudFormation parameter lists from a parameter
// file and inline JSON overrides.
package params

import (
	"bytes"
	"encoding/json"
	"fmt"

	ierrors "github.com/savaki/cfn-actions/internal/errors"
	"github.com/savaki/cfn-actions/internal/models"
	"github.com/savaki/cfn-actions/internal/utils"
)

type sourceKind int

const (
	kindList sourceKind = iota
	kindFlatMap
)

// Source is a parameter document in one of the two accepted shapes: a list
// of {ParameterKey, ParameterValue} records, or a flat object of key to
// value. Flat objects keep their document order.
type Source struct {
	kind sourceKind
	list []models.Parameter
	flat []utils.KeyValue
}

// ListSource wraps an already normalized parameter list
func ListSource(pp []models.Parameter) *Source {
	return &Source{kind: kindList, list: pp}
}

// FlatMapSource wraps ordered key/value pairs
func FlatMapSource(kv []utils.KeyValue) *Source {
	return &Source{kind: kindFlatMap, flat: kv}
}

// Parameters normalizes the source into a parameter list with string values
func (s *Source) Parameters() []models.Parameter {
	if s == nil {
		return nil
	}

	switch s.kind {
	case kindFlatMap:
		pp := make([]models.Parameter, 0, len(s.flat))
		for _, kv := range s.flat {
			pp = append(pp, models.Parameter{
				ParameterKey:   kv.Key,
				ParameterValue: utils.Stringify(kv.Value),
			})
		}
		return pp
	default:
		return append([]models.Parameter(nil), s.list...)
	}
}

// Len returns the number of parameters in the source
func (s *Source) Len() int {
	if s == nil {
		return 0
	}
	if s.kind == kindFlatMap {
		return len(s.flat)
	}
	return len(s.list)
}

// ParseSource decodes a JSON parameter document of either shape
func ParseSource(data []byte) (*Source, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ierrors.ErrInvalidParameterFile)
	}

	switch trimmed[0] {
	case '[':
		pp, err := parseList(trimmed)
		if err != nil {
			return nil, err
		}
		return ListSource(pp), nil

	case '{':
		kv, err := utils.DecodeOrderedObject(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ierrors.ErrInvalidParameterFile, err)
		}
		return FlatMapSource(kv), nil

	default:
		return nil, fmt.Errorf("%w: expected a JSON list or object", ierrors.ErrInvalidParameterFile)
	}
}

func parseList(data []byte) ([]models.Parameter, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var records []map[string]any
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", ierrors.ErrInvalidParameterFile, err)
	}

	pp := make([]models.Parameter, 0, len(records))
	for i, record := range records {
		key, ok := record["ParameterKey"].(string)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: record %d has no ParameterKey", ierrors.ErrInvalidParameterFile, i)
		}
		pp = append(pp, models.Parameter{
			ParameterKey:   key,
			ParameterValue: utils.Stringify(record["ParameterValue"]),
		})
	}
	return pp, nil
}
