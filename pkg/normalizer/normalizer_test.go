package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_CorrectsDomainTerms(t *testing.T) {
	n := New(DefaultThreshold)

	tests := []struct {
		name        string
		query       string
		normalized  string
		corrections map[string]string
	}{
		{
			name:        "misspelled metric keeps punctuation",
			query:       "revnue, expnse for jan 2025",
			normalized:  "revenue, expense for jan 2025",
			corrections: map[string]string{"revnue": "revenue", "expnse": "expense"},
		},
		{
			name:        "month typo becomes canonical month",
			query:       "trend for Janurary 2025",
			normalized:  "trend for January 2025",
			corrections: map[string]string{"Janurary": "January"},
		},
		{
			name:        "dates and numbers untouched",
			query:       "GST on 2025-01-12 above 1000",
			normalized:  "GST on 2025-01-12 above 1000",
			corrections: map[string]string{},
		},
		{
			name:        "below threshold left alone",
			query:       "show the data",
			normalized:  "show the data",
			corrections: map[string]string{},
		},
		{
			name:        "exact terms in other case are not corrections",
			query:       "GST Breakdown",
			normalized:  "GST Breakdown",
			corrections: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := n.Normalize(tt.query, nil)
			assert.Equal(t, tt.query, res.Original)
			assert.Equal(t, tt.normalized, res.Normalized)
			assert.Equal(t, tt.corrections, res.Corrections)
		})
	}
}

func TestNormalize_ShortTokens(t *testing.T) {
	// Two-letter words only match themselves at the default threshold.
	res := New(DefaultThreshold).Normalize("gs on 12 jan", nil)
	assert.Equal(t, "gs on 12 jan", res.Normalized)
	assert.Empty(t, res.Corrections)

	res = New(0.75).Normalize("gs on 12 jan", nil)
	assert.Equal(t, "gst on 12 jan", res.Normalized)
	assert.Equal(t, map[string]string{"gs": "gst"}, res.Corrections)
}

func TestNormalize_ClientTagsTakePriority(t *testing.T) {
	n := New(DefaultThreshold)

	res := n.Normalize("gst for acmee in feb", []string{"Acme", "Globex"})
	assert.Equal(t, "gst for Acme in feb", res.Normalized)
	assert.Equal(t, map[string]string{"acmee": "Acme"}, res.Corrections)
}

func TestNormalize_MultiWordTag(t *testing.T) {
	n := New(DefaultThreshold)

	res := n.Normalize("total for sharma tradres ltd.", []string{"Sharma Traders Ltd"})
	assert.Equal(t, "total for Sharma Traders Ltd.", res.Normalized)
	assert.Equal(t, "Sharma Traders Ltd", res.Corrections["sharma tradres ltd"])

	// already correct, only casing differs: nothing recorded
	res = n.Normalize("total for sharma traders ltd", []string{"Sharma Traders Ltd"})
	assert.Equal(t, "total for sharma traders ltd", res.Normalized)
	assert.Empty(t, res.Corrections)
}

func TestNormalize_EmptyInput(t *testing.T) {
	n := New(DefaultThreshold)
	for _, q := range []string{"", "   "} {
		res := n.Normalize(q, nil)
		assert.Equal(t, q, res.Normalized)
		assert.Empty(t, res.Corrections)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := New(DefaultThreshold)
	first := n.Normalize("expnse brakdown by categry", nil)
	second := n.Normalize(first.Normalized, nil)
	assert.Equal(t, first.Normalized, second.Normalized)
	assert.Empty(t, second.Corrections)
}

func TestNew_InvalidThresholdFallsBack(t *testing.T) {
	assert.Equal(t, DefaultThreshold, New(0).threshold)
	assert.Equal(t, DefaultThreshold, New(3).threshold)
	assert.Equal(t, 0.9, New(0.9).threshold)
}

func TestSplitToken(t *testing.T) {
	assert.Equal(t, token{prefix: "(", core: "gst", suffix: "),"}, splitToken("(gst),"))
	assert.Equal(t, token{prefix: "--"}, splitToken("--"))
	assert.Equal(t, token{prefix: "₹", core: "100"}, splitToken("₹100"))
}
