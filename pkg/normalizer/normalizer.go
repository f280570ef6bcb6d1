// Package normalizer corrects likely-misspelled domain tokens in a query
// before any semantic work happens.
package normalizer

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ekaya-inc/ekaya-insight/pkg/textmatch"
)

// DefaultThreshold is the minimum similarity for a correction.
const DefaultThreshold = 0.85

// maxTagWords bounds multi-word client tags matched as phrases.
const maxTagWords = 5

// Result is a normalized query and what was changed to get there.
type Result struct {
	Original    string            `json:"original"`
	Normalized  string            `json:"normalized"`
	Corrections map[string]string `json:"corrections"` // original token -> replacement
}

// Normalizer holds the static vocabulary. It is safe for concurrent use.
type Normalizer struct {
	threshold float64
	months    []string          // folded month spellings, priority order
	monthForm map[string]string // folded -> canonical display form
	terms     []string          // folded finance/column terms
}

// New builds a Normalizer. A threshold outside (0,1] falls back to the default.
func New(threshold float64) *Normalizer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	n := &Normalizer{
		threshold: threshold,
		monthForm: make(map[string]string),
	}
	for _, m := range monthNames {
		for _, form := range []string{m.short, m.long} {
			key := textmatch.Fold(form)
			if _, ok := n.monthForm[key]; !ok {
				n.months = append(n.months, key)
			}
			n.monthForm[key] = form
		}
	}
	n.monthForm["sept"] = "Sep"
	n.months = append(n.months, "sept")

	seen := mapset.NewThreadUnsafeSet[string]()
	for _, t := range domainTerms {
		key := textmatch.Fold(t)
		if seen.Add(key) {
			n.terms = append(n.terms, key)
		}
	}
	return n
}

// Normalize corrects tokens against client tags, month names and domain
// terms, in that priority order. It never fails: an empty or unmatched
// query comes back unchanged with an empty correction map.
func (n *Normalizer) Normalize(query string, clientTags []string) Result {
	res := Result{Original: query, Normalized: query, Corrections: map[string]string{}}
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return res
	}

	singleTags, multiTags := splitTags(clientTags)

	tokens := make([]token, len(fields))
	for i, f := range fields {
		tokens[i] = splitToken(f)
	}

	for i := range tokens {
		tok := &tokens[i]
		if !correctable(tok.core) {
			continue
		}
		folded := textmatch.Fold(tok.core)
		replacement, ok := n.match(folded, singleTags)
		if !ok || textmatch.Fold(replacement) == folded {
			continue
		}
		res.Corrections[tok.core] = replacement
		tok.core = replacement
	}

	n.mergeTagPhrases(tokens, multiTags, res.Corrections)

	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if s := t.String(); s != "" {
			parts = append(parts, s)
		}
	}
	res.Normalized = strings.Join(parts, " ")
	return res
}

// match finds the best replacement, consulting candidate groups in priority
// order and stopping at the first group with a match above threshold.
func (n *Normalizer) match(folded string, tags map[string]string) (string, bool) {
	if len(tags) > 0 {
		keys := make([]string, 0, len(tags))
		for k := range tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if best, score := textmatch.Best(folded, keys); score >= n.threshold {
			return tags[best], true
		}
	}
	if best, score := textmatch.Best(folded, n.months); score >= n.threshold {
		return n.monthForm[best], true
	}
	if best, score := textmatch.Best(folded, n.terms); score >= n.threshold {
		return best, true
	}
	return "", false
}

// mergeTagPhrases replaces runs of tokens that spell a multi-word client tag
// with the tag itself.
func (n *Normalizer) mergeTagPhrases(tokens []token, tags []string, corrections map[string]string) {
	for _, tag := range tags {
		width := len(strings.Fields(tag))
		tagKey := textmatch.Key(tag)
		for i := 0; i+width <= len(tokens); i++ {
			window := make([]string, width)
			for j := 0; j < width; j++ {
				window[j] = tokens[i+j].core
			}
			phrase := strings.Join(window, " ")
			phraseKey := textmatch.Key(phrase)
			if phraseKey == "" || phraseKey == tagKey || textmatch.Ratio(phraseKey, tagKey) < n.threshold {
				continue
			}
			corrections[phrase] = tag
			tokens[i].core = tag
			tokens[i].suffix = tokens[i+width-1].suffix
			for j := 1; j < width; j++ {
				tokens[i+j] = token{}
			}
			i += width - 1
		}
	}
}

func splitTags(tags []string) (map[string]string, []string) {
	single := make(map[string]string)
	var multi []string
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, tag := range tags {
		tag = strings.Join(strings.Fields(tag), " ")
		if tag == "" || !seen.Add(strings.ToLower(tag)) {
			continue
		}
		switch words := len(strings.Fields(tag)); {
		case words == 1:
			single[textmatch.Fold(tag)] = tag
		case words <= maxTagWords:
			multi = append(multi, tag)
		}
	}
	return single, multi
}

// correctable rejects tokens that carry digits (dates, amounts).
func correctable(core string) bool {
	if core == "" {
		return false
	}
	for _, r := range core {
		if unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

type token struct {
	prefix, core, suffix string
}

func (t token) String() string {
	return t.prefix + t.core + t.suffix
}

// splitToken separates leading and trailing punctuation so "gst," keeps its
// comma when corrected.
func splitToken(s string) token {
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
	start := strings.IndexFunc(s, isWord)
	if start < 0 {
		return token{prefix: s}
	}
	end := strings.LastIndexFunc(s, isWord)
	_, size := utf8.DecodeRuneInString(s[end:])
	return token{prefix: s[:start], core: s[start : end+size], suffix: s[end+size:]}
}
