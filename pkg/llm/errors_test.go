package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err       string
		wantType  ErrorType
		retryable bool
		status    int
	}{
		{"error, status code: 401, message: invalid api key", ErrorTypeAuth, false, 401},
		{"The model `gpt-9` does not exist", ErrorTypeModel, false, 0},
		{"status code: 404, not found", ErrorTypeEndpoint, false, 404},
		{"dial tcp: connection refused", ErrorTypeEndpoint, true, 0},
		{"context deadline exceeded", ErrorTypeEndpoint, true, 0},
		{"status code: 429, rate limit reached", ErrorTypeEndpoint, true, 429},
		{"status code: 503, service unavailable", ErrorTypeEndpoint, true, 503},
		{"something odd", ErrorTypeUnknown, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.err, func(t *testing.T) {
			got := ClassifyError(errors.New(tt.err))
			require.NotNil(t, got)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.Equal(t, tt.status, got.StatusCode)
		})
	}
}

func TestClassifyError_PassThrough(t *testing.T) {
	assert.Nil(t, ClassifyError(nil))

	orig := NewError(ErrorTypeResponse, "bad", false, nil)
	wrapped := fmt.Errorf("plan: %w", orig)
	assert.Same(t, orig, ClassifyError(wrapped))
	assert.False(t, IsRetryable(wrapped))
}

func TestError_Message(t *testing.T) {
	cause := errors.New("boom")
	err := NewErrorWithContext(ErrorTypeEndpoint, "server error", true, cause, "gpt-4o", "https://api.openai.com/v1", 503)

	assert.Equal(t, "endpoint HTTP 503 model=gpt-4o server error: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.IsRetryable())
	assert.Equal(t, ErrorTypeUnknown, GetErrorType(errors.New("plain")))
}
