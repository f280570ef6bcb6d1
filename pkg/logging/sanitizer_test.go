package logging

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeConnectionString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"keyword password", "host=localhost password=secret123 dbname=test", "host=localhost password=[REDACTED] dbname=test"},
		{"keyword pwd uppercase", "server=x;PWD=secret;database=d", "server=x;PWD=[REDACTED];database=d"},
		{"postgres url", "postgres://ekaya:secret@db:5432/insight?sslmode=disable", "postgres://[REDACTED]@[REDACTED]/insight?sslmode=disable"},
		{"sqlserver url", "sqlserver://sa:p@ss@host:1433?database=d", "sqlserver://[REDACTED]@[REDACTED]?database=d"},
		{"no credentials", "postgres://db:5432/insight", "postgres://db:5432/insight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeConnectionString(tt.input))
		})
	}
}

func TestSanitizeError(t *testing.T) {
	assert.Equal(t, "", SanitizeError(nil))

	err := errors.New("401 invalid key sk-abcdefghijklmnopqrstuv for postgres://u:pw@h/db")
	got := SanitizeError(err)
	assert.NotContains(t, got, "sk-abcdefghijklmnopqrstuv")
	assert.NotContains(t, got, "pw@")
	assert.Contains(t, got, RedactedText)
}

func TestSanitizeQuery(t *testing.T) {
	assert.Equal(t, "gst on 2025-01-12", SanitizeQuery("  gst   on\n2025-01-12 "))

	long := strings.Repeat("a", MaxQueryLogLength+20)
	got := SanitizeQuery(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, got, MaxQueryLogLength+3)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 5))
	assert.Equal(t, "ab...", TruncateString("abc", 2))
	assert.Equal(t, "₹1...", TruncateString("₹100", 2))
}
