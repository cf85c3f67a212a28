package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// KeyValue is one entry of a JSON object, kept in document order
type KeyValue struct {
	Key   string
	Value any
}

// DecodeOrderedObject decodes a top-level JSON object and returns its members
// in the order they appear in the document. Nested values are decoded with
// UseNumber so numeric literals keep their original text.
func DecodeOrderedObject(data []byte) ([]KeyValue, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	token, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON object: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", token)
	}

	var members []KeyValue
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON object key: %w", err)
		}
		key, ok := token.(string)
		if !ok {
			return nil, fmt.Errorf("expected JSON object key, got %v", token)
		}

		var value any
		if err := decoder.Decode(&value); err != nil {
			return nil, fmt.Errorf("failed to read value for key %s: %w", key, err)
		}
		members = append(members, KeyValue{Key: key, Value: value})
	}

	if _, err := decoder.Token(); err != nil {
		return nil, fmt.Errorf("failed to read end of JSON object: %w", err)
	}
	if decoder.More() {
		return nil, fmt.Errorf("unexpected data after JSON object")
	}

	return members, nil
}

// Stringify renders a decoded JSON or YAML scalar as the string CloudFormation
// expects. Composite values are rendered as compact JSON.
func Stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case json.Number:
		return value.String()
	case bool:
		return strconv.FormatBool(value)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case fmt.Stringer:
		return value.String()
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(data)
	}
}
