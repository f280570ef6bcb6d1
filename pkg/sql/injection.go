// Package sql screens user-supplied values that end up as row-store filter
// arguments. Queries are always parameterized; this is an additional signal
// the policy guard uses to refuse obviously hostile input.
package sql

import (
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a value that libinjection flagged.
type InjectionCheckResult struct {
	Field       string // which plan field carried the value
	Value       string
	Fingerprint string // libinjection fingerprint, e.g. "s&1c"
}

// CheckValue returns nil for clean values.
//
//	CheckValue("tag", "Acme Traders")          // nil
//	CheckValue("tag", "x' OR '1'='1' --")      // flagged
func CheckValue(field, value string) *InjectionCheckResult {
	if value == "" {
		return nil
	}
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Field:       field,
		Value:       value,
		Fingerprint: string(fingerprint),
	}
}

// CheckValues checks every value and returns the flagged ones ordered by
// field name.
func CheckValues(values map[string]string) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for field, value := range values {
		if r := CheckValue(field, value); r != nil {
			results = append(results, r)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Field < results[j].Field })
	return results
}
