package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"plain object", `{"intent":"trend"}`, `{"intent":"trend"}`},
		{"markdown fence", "```json\n{\"intent\":\"trend\"}\n```", `{"intent":"trend"}`},
		{"think block", "<think>{not json}</think>\n{\"a\":1}", `{"a":1}`},
		{"prose around", `Sure! Here you go: {"a":{"b":"}"}} hope it helps`, `{"a":{"b":"}"}}`},
		{"array first", `[1,2] then {"a":1}`, `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := ExtractJSON("I cannot help with that")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeResponse, GetErrorType(err))
}

func TestParseJSONResponse(t *testing.T) {
	type reply struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	got, err := ParseJSONResponse[reply]("```\n{\"intent\":\"compare\",\"confidence\":0.7}\n```")
	require.NoError(t, err)
	assert.Equal(t, "compare", got.Intent)
	assert.Equal(t, 0.7, got.Confidence)

	_, err = ParseJSONResponse[reply](`{"intent": 5}`)
	assert.Error(t, err)
}
