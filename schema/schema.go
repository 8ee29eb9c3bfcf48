// Package schema checks request payloads against a small JSON Schema subset.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Validate checks a payload against a JSON Schema (draft-07 subset).
// Returns nil if validation passes or the schema is nil.
//
// Supported keywords:
//   - type (string, number, integer, boolean, object, array, null)
//   - properties, required
//   - readOnly on a property: the property must not be supplied
//   - minLength, maxLength, counted in characters of the NFC form
func Validate(schema map[string]any, doc map[string]any) error {
	if schema == nil {
		return nil
	}
	return validateValue(schema, doc, "$")
}

func validateValue(schema map[string]any, value any, path string) error {
	if t, ok := schema["type"].(string); ok {
		if err := checkType(t, value, path); err != nil {
			return err
		}
	}

	switch v := value.(type) {
	case map[string]any:
		return validateObject(schema, v, path)
	case string:
		return validateString(schema, v, path)
	}
	return nil
}

func checkType(expected string, value any, path string) error {
	actual := jsonType(value)
	if expected == "integer" {
		if isWhole(value) {
			return nil
		}
		return fmt.Errorf("%s: expected type %q, got %q", path, expected, actual)
	}
	if actual != expected {
		return fmt.Errorf("%s: expected type %q, got %q", path, expected, actual)
	}
	return nil
}

func isWhole(v any) bool {
	switch n := v.(type) {
	case float64:
		return n == float64(int64(n))
	case json.Number:
		_, err := n.Int64()
		return err == nil
	case int, int64:
		return true
	}
	return false
}

func jsonType(v any) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number, int, int64:
		return "number"
	default:
		return reflect.TypeOf(v).String()
	}
}

func validateObject(schema map[string]any, obj map[string]any, path string) error {
	if reqList, ok := schema["required"].([]any); ok {
		for _, r := range reqList {
			if field, ok := r.(string); ok {
				if _, exists := obj[field]; !exists {
					return fmt.Errorf("%s: missing required field %q", path, field)
				}
			}
		}
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	// Sorted so the first error reported is stable.
	fields := make([]string, 0, len(props))
	for field := range props {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		val, exists := obj[field]
		if !exists {
			continue
		}
		ps, ok := props[field].(map[string]any)
		if !ok {
			continue
		}
		if ro, _ := ps["readOnly"].(bool); ro {
			return fmt.Errorf("%s: field %q is read-only", path, field)
		}
		if err := validateValue(ps, val, path+"."+field); err != nil {
			return err
		}
	}
	return nil
}

func validateString(schema map[string]any, s string, path string) error {
	n := utf8.RuneCountInString(norm.NFC.String(s))
	if v, ok := toFloat(schema["minLength"]); ok {
		if float64(n) < v {
			return fmt.Errorf("%s: string length %d is less than minLength %v", path, n, v)
		}
	}
	if v, ok := toFloat(schema["maxLength"]); ok {
		if float64(n) > v {
			return fmt.Errorf("%s: string length %d is greater than maxLength %v", path, n, v)
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
