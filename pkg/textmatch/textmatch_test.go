package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "cafe total", Fold("  Café TOTAL "))
	assert.Equal(t, "", Fold(""))
}

func TestKey(t *testing.T) {
	for _, in := range []string{"GST Amount", "gst_amount", "gst-amount", " Gst.Amount "} {
		assert.Equal(t, "gstamount", Key(in), in)
	}
}

func TestColumnName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Row Date", "row_date"},
		{"GST  Amount (₹)", "gst_amount"},
		{"Net-Value", "net_value"},
		{"__id__", "id"},
		{"Région", "region"},
		{"%%%", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ColumnName(tt.in), tt.in)
	}
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"gst", "on", "2025", "01", "12"}, Words("GST on 2025-01-12"))
	assert.Empty(t, Words("  ,; "))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("", ""))
	assert.Equal(t, 0.0, Ratio("abc", ""))
	assert.Equal(t, 1.0, Ratio("gst", "gst"))
	assert.InDelta(t, 0.857, Ratio("gst", "cgst"), 0.001)
	assert.InDelta(t, 0.923, Ratio("amounts", "amount"), 0.001)
	assert.InDelta(t, 0.75, Ratio("date", "data"), 0.001)
	assert.Less(t, Ratio("discount", "amount"), 0.85)
	assert.Equal(t, Ratio("expense", "expnse"), Ratio("expnse", "expense"))
}

func TestKeyRatio(t *testing.T) {
	assert.Equal(t, 1.0, KeyRatio("Net Amount", "net_amount"))
}

func TestBest(t *testing.T) {
	best, score := Best("revnue", []string{"revenue", "expense", "balance"})
	assert.Equal(t, "revenue", best)
	assert.GreaterOrEqual(t, score, 0.85)

	best, score = Best("x", nil)
	assert.Equal(t, "", best)
	assert.Equal(t, 0.0, score)

	// ties keep the earlier candidate
	best, _ = Best("ab", []string{"ac", "ad"})
	assert.Equal(t, "ac", best)
}
