package tools

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWith(args any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestGetOptionalString(t *testing.T) {
	tests := []struct {
		name     string
		args     any
		expected string
	}{
		{"missing arguments", nil, ""},
		{"missing key", map[string]any{}, ""},
		{"wrong type", map[string]any{"query": 42.0}, ""},
		{"trimmed", map[string]any{"query": "  gst by client \n"}, "gst by client"},
		{"whitespace only", map[string]any{"query": " \t "}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, getOptionalString(requestWith(tt.args), "query"))
		})
	}
}

func TestGetOptionalBool(t *testing.T) {
	v, ok := getOptionalBool(requestWith(map[string]any{"confirmed": true}), "confirmed")
	assert.True(t, ok)
	assert.True(t, v)

	_, ok = getOptionalBool(requestWith(map[string]any{"confirmed": "yes"}), "confirmed")
	assert.False(t, ok, "strings are not booleans")

	_, ok = getOptionalBool(requestWith(nil), "confirmed")
	assert.False(t, ok)
}

func TestGetOptionalInt(t *testing.T) {
	v, ok := getOptionalInt(requestWith(map[string]any{"limit": 25.0}), "limit")
	assert.True(t, ok)
	assert.Equal(t, 25, v)

	_, ok = getOptionalInt(requestWith(map[string]any{"limit": "25"}), "limit")
	assert.False(t, ok)
}

func TestJSONResult(t *testing.T) {
	res, err := jsonResult(map[string]int{"row_count": 3})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.JSONEq(t, `{"row_count":3}`, text.Text)
	assert.False(t, res.IsError)

	_, err = jsonResult(make(chan int))
	assert.Error(t, err)
}
