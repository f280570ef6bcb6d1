package resolver

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// NeedsClarification reports whether the result has unresolved or ambiguous
// concepts.
func NeedsClarification(res *models.ResolutionResult) bool {
	return res != nil && (len(res.Unresolved) > 0 || len(res.Ambiguous) > 0)
}

// ClarificationMessage builds the single message asking the user to pick
// columns. columns should be the original spreadsheet headers. It returns ""
// when nothing needs clarifying.
func ClarificationMessage(res *models.ResolutionResult, columns []string) string {
	if !NeedsClarification(res) {
		return ""
	}

	var b strings.Builder
	b.WriteString("I couldn't uniquely match some terms to columns in the active dataset.")
	if len(res.Unresolved) > 0 {
		fmt.Fprintf(&b, " No column found for: %s.", strings.Join(res.Unresolved, ", "))
	}
	for _, c := range res.Ambiguous {
		if cands := res.AmbiguousCandidates[c]; len(cands) > 0 {
			fmt.Fprintf(&b, " For %s, multiple columns match: %s. Please specify one.", c, strings.Join(cands, ", "))
		}
	}
	available := "no columns"
	if len(columns) > 0 {
		available = strings.Join(columns, ", ")
	}
	fmt.Fprintf(&b, " Available columns: %s.", available)
	return b.String()
}
