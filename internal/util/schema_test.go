package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleParams struct {
	Query    string   `json:"query" description:"search query"`
	Limit    int      `json:"limit,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Strict   bool     `json:"strict,omitempty"`
	Mode     string   `json:"mode,omitempty" enum:"fast,thorough"`
	internal string   //nolint:unused
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleParams{})

	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)

	query, ok := props["query"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, "search query", query["description"])

	limit, ok := props["limit"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "integer", limit["type"])

	tags, ok := props["tags"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "array", tags["type"])
	assert.Equal(t, map[string]any{"type": "string"}, tags["items"])

	mode, ok := props["mode"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"fast", "thorough"}, mode["enum"])

	assert.Equal(t, []string{"query"}, schema["required"])
	assert.NotContains(t, props, "internal")
}

func TestCreateSchemaNonStruct(t *testing.T) {
	schema := CreateSchema("not a struct")
	assert.Equal(t, "object", schema["type"])
	assert.Empty(t, schema["properties"])
}

func TestValidateParameters(t *testing.T) {
	schema := CreateSchema(sampleParams{})

	tests := []struct {
		name    string
		params  map[string]any
		wantErr string
	}{
		{
			name:   "valid full",
			params: map[string]any{"query": "hi", "limit": float64(3), "strict": true},
		},
		{
			name:   "valid minimal",
			params: map[string]any{"query": "hi"},
		},
		{
			name:    "missing required",
			params:  map[string]any{"limit": 3},
			wantErr: "required field is missing",
		},
		{
			name:    "wrong type",
			params:  map[string]any{"query": 42},
			wantErr: "expected type string",
		},
		{
			name:    "non integral number",
			params:  map[string]any{"query": "hi", "limit": 1.5},
			wantErr: "expected type integer",
		},
		{
			name:   "extra fields allowed",
			params: map[string]any{"query": "hi", "unknown": "x"},
		},
		{
			name:   "nil value allowed",
			params: map[string]any{"query": nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.params, schema)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
