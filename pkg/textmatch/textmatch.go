// Package textmatch holds the string folding and similarity scoring shared by
// the query normalizer, the column resolver and spreadsheet ingestion.
package textmatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips accents ("Café" -> "cafe").
func Fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Key is the comparison form of s: folded, with everything that is not a
// letter or digit removed. "GST Amount", "gst_amount" and "gst-amount" all
// share the key "gstamount".
func Key(s string) string {
	folded := Fold(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ColumnName normalizes a spreadsheet header into a snake_case identifier.
// Returns "" when nothing usable is left.
func ColumnName(s string) string {
	folded := Fold(s)
	var b strings.Builder
	prevUnderscore := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.' || r == '/':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// Words splits s into folded alphanumeric words.
func Words(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Ratio returns the normalized Indel similarity of a and b in [0,1]:
// 1 - (len(a)+len(b)-2*LCS(a,b)) / (len(a)+len(b)). Two empty strings are
// identical.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	lcs := lcsLength(ra, rb)
	return float64(2*lcs) / float64(total)
}

// KeyRatio scores a and b after reducing both to their Key form.
func KeyRatio(a, b string) float64 {
	return Ratio(Key(a), Key(b))
}

func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) > len(a) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Best returns the candidate most similar to s and its score. Ties keep the
// earlier candidate, so callers control priority through ordering.
func Best(s string, candidates []string) (string, float64) {
	best, bestScore := "", -1.0
	for _, c := range candidates {
		if score := Ratio(s, c); score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore < 0 {
		return "", 0
	}
	return best, bestScore
}
