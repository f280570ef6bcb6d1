package models

// ResolutionResult maps the concepts a query mentions onto columns of one
// dataset version's schema. It is built fresh per query and never cached.
type ResolutionResult struct {
	Mentioned           []string            `json:"mentioned"`                      // concepts found in the query, in order
	Resolved            map[string]string   `json:"resolved"`                       // concept -> column
	GroupBy             []string            `json:"group_by,omitempty"`             // column names
	Filters             map[string]string   `json:"filters,omitempty"`              // column -> value
	Unresolved          []string            `json:"unresolved,omitempty"`           // concepts with no supporting column
	Ambiguous           []string            `json:"ambiguous,omitempty"`            // concepts matching several columns
	AmbiguousCandidates map[string][]string `json:"ambiguous_candidates,omitempty"` // concept -> candidate columns
}

// Column returns the column resolved for concept.
func (r ResolutionResult) Column(concept string) (string, bool) {
	col, ok := r.Resolved[concept]
	return col, ok
}

// IsUnresolved reports whether concept was mentioned but had no column.
func (r ResolutionResult) IsUnresolved(concept string) bool {
	for _, c := range r.Unresolved {
		if c == concept {
			return true
		}
	}
	return false
}

// IsAmbiguous reports whether concept matched more than one column.
func (r ResolutionResult) IsAmbiguous(concept string) bool {
	for _, c := range r.Ambiguous {
		if c == concept {
			return true
		}
	}
	return false
}
