package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/simple-record-server/schema"
)

func nameSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"first", "last"},
		"properties": map[string]any{
			"first": map[string]any{"type": "string", "minLength": 1},
			"last":  map[string]any{"type": "string", "minLength": 1},
		},
	}
}

func TestValidateNilSchema(t *testing.T) {
	assert.NoError(t, schema.Validate(nil, map[string]any{"anything": "goes"}))
}

func TestValidateRequired(t *testing.T) {
	s := nameSchema()

	err := schema.Validate(s, map[string]any{"first": "Ada"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required field "last"`)

	assert.NoError(t, schema.Validate(s, map[string]any{"first": "Ada", "last": "Lovelace"}))
}

func TestValidateNilDocument(t *testing.T) {
	err := schema.Validate(nameSchema(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required field")
}

func TestValidatePropertyType(t *testing.T) {
	err := schema.Validate(nameSchema(), map[string]any{"first": float64(1), "last": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `$.first: expected type "string", got "number"`)

	err = schema.Validate(nameSchema(), map[string]any{"first": nil, "last": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `got "null"`)
}

func TestValidateMinLength(t *testing.T) {
	err := schema.Validate(nameSchema(), map[string]any{"first": "", "last": "Lovelace"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minLength")
}

func TestValidateStringLengthCountsNFCCharacters(t *testing.T) {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "maxLength": 3},
		},
	}

	// A combining diaeresis makes four runes but three characters.
	assert.NoError(t, schema.Validate(s, map[string]any{"name": "Zoe\u0308"}))
	assert.Error(t, schema.Validate(s, map[string]any{"name": "Zoeys"}))
}

func TestValidateReadOnly(t *testing.T) {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":    map[string]any{"readOnly": true},
			"first": map[string]any{"type": "string"},
		},
	}

	err := schema.Validate(s, map[string]any{"id": float64(7)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "id" is read-only`)

	assert.NoError(t, schema.Validate(s, map[string]any{"first": "Ada", "nickname": "Countess"}))
}

func TestValidateNestedObject(t *testing.T) {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"address": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{"type": "string"},
				},
				"required": []any{"city"},
			},
		},
	}

	err := schema.Validate(s, map[string]any{
		"address": map[string]any{"zip": "12345"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$.address")

	assert.NoError(t, schema.Validate(s, map[string]any{
		"address": map[string]any{"city": "London"},
	}))
}

func TestValidateIntegerType(t *testing.T) {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count": map[string]any{"type": "integer"},
		},
	}

	tests := []struct {
		name  string
		value any
		ok    bool
	}{
		{"whole float", float64(5), true},
		{"fractional float", float64(5.5), false},
		{"json integer", json.Number("12"), true},
		{"json fraction", json.Number("1.5"), false},
		{"string", "5", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := schema.Validate(s, map[string]any{"count": tc.value})
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
