// Package resolver maps the vocabulary of a query onto canonical concepts and
// canonical concepts onto the columns of one dataset version's schema.
//
// Resolution never guesses: a concept that no column supports is reported as
// unresolved, and a concept that several columns support is reported as
// ambiguous, so callers can turn either into an explicit answer.
package resolver

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/textmatch"
)

// DefaultThreshold is the minimum column similarity for a concept match.
const DefaultThreshold = 0.85

// Words that turn the mention that follows them into a grouping key.
var groupPrefixes = mapset.NewSet("by", "per", "each")

// Words that turn the mention before them into a grouping key ("branch wise").
var groupSuffixes = mapset.NewSet("wise")

// Words between a mention and a literal value ("category is travel").
var filterVerbs = mapset.NewSet("is", "equals", "eq")

// Resolver is stateless apart from its threshold and is safe for concurrent use.
type Resolver struct {
	threshold float64
	logger    *zap.Logger
}

// New creates a Resolver. A threshold outside (0,1] falls back to the default.
func New(threshold float64, logger *zap.Logger) *Resolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Resolver{
		threshold: threshold,
		logger:    logger.Named("resolver"),
	}
}

// Threshold returns the similarity threshold in use.
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

// Resolve runs all three stages for a normalized query against schema.
func (r *Resolver) Resolve(query string, schema models.DatasetSchema) *models.ResolutionResult {
	res := &models.ResolutionResult{
		Mentioned:           []string{},
		Resolved:            map[string]string{},
		Filters:             map[string]string{},
		AmbiguousCandidates: map[string][]string{},
	}

	words := textmatch.Words(query)
	if len(words) == 0 {
		return res
	}
	mentions := findMentions(words)
	columns := keyColumns(schema.ColumnNames)

	seen := mapset.NewThreadUnsafeSet[string]()
	for _, m := range mentions {
		name := compiled[m.concept].Name
		if !seen.Add(name) {
			continue
		}
		res.Mentioned = append(res.Mentioned, name)

		col, candidates := r.match(&compiled[m.concept], columns)
		switch {
		case col != "":
			res.Resolved[name] = col
		case len(candidates) > 1:
			res.Ambiguous = append(res.Ambiguous, name)
			res.AmbiguousCandidates[name] = candidates
		default:
			res.Unresolved = append(res.Unresolved, name)
		}
	}

	res.GroupBy = groupColumns(words, mentions, res.Resolved)
	extractFilters(words, mentions, res.Resolved, res.Filters)

	r.logger.Debug("Resolved query concepts",
		zap.Strings("mentioned", res.Mentioned),
		zap.Any("resolved", res.Resolved),
		zap.Strings("group_by", res.GroupBy),
		zap.Strings("unresolved", res.Unresolved),
		zap.Strings("ambiguous", res.Ambiguous))

	return res
}

// ColumnFor resolves a single concept against a list of column names without
// a query. It returns false when the concept is unknown, unresolved or
// ambiguous.
func (r *Resolver) ColumnFor(concept string, columnNames []string) (string, bool) {
	cc, ok := conceptByName[concept]
	if !ok {
		return "", false
	}
	col, _ := r.match(cc, keyColumns(columnNames))
	return col, col != ""
}

// mention is one accepted span of query words naming a concept.
type mention struct {
	start, end int // word indexes, end exclusive
	width      int // words in the variant that matched
	chars      int
	concept    int // index into compiled
}

// findMentions is stage 1. Variants match whole words, either as written or
// singularized, and multi-word variants also match their run-together form
// ("gstamount"). Overlaps go to the longest variant, so "net amount" names
// net_amount and not amount.
func findMentions(words []string) []mention {
	singular := make([]string, len(words))
	for i, w := range words {
		singular[i] = inflection.Singular(w)
	}
	wordIs := func(i int, v string) bool {
		return words[i] == v || singular[i] == v
	}

	var spans []mention
	for ci := range compiled {
		for _, variant := range compiled[ci].variants {
			chars := 0
			for _, v := range variant {
				chars += len(v)
			}
			for i := 0; i+len(variant) <= len(words); i++ {
				matched := true
				for j, v := range variant {
					if !wordIs(i+j, v) {
						matched = false
						break
					}
				}
				if matched {
					spans = append(spans, mention{start: i, end: i + len(variant), width: len(variant), chars: chars, concept: ci})
				}
			}
			if len(variant) < 2 {
				continue
			}
			compact := strings.Join(variant, "")
			for i := range words {
				if wordIs(i, compact) {
					spans = append(spans, mention{start: i, end: i + 1, width: len(variant), chars: chars, concept: ci})
				}
			}
		}
	}

	sort.SliceStable(spans, func(a, b int) bool {
		sa, sb := spans[a], spans[b]
		if sa.width != sb.width {
			return sa.width > sb.width
		}
		if sa.chars != sb.chars {
			return sa.chars > sb.chars
		}
		if sa.start != sb.start {
			return sa.start < sb.start
		}
		return sa.concept < sb.concept
	})

	taken := make([]bool, len(words))
	var accepted []mention
	for _, s := range spans {
		free := true
		for i := s.start; i < s.end; i++ {
			if taken[i] {
				free = false
				break
			}
		}
		if !free {
			continue
		}
		for i := s.start; i < s.end; i++ {
			taken[i] = true
		}
		accepted = append(accepted, s)
	}

	sort.Slice(accepted, func(a, b int) bool {
		if accepted[a].start != accepted[b].start {
			return accepted[a].start < accepted[b].start
		}
		return accepted[a].concept < accepted[b].concept
	})
	return accepted
}

type keyedColumn struct {
	name, key string
}

func keyColumns(names []string) []keyedColumn {
	cols := make([]keyedColumn, 0, len(names))
	for _, n := range names {
		if key := textmatch.Key(n); key != "" {
			cols = append(cols, keyedColumn{name: n, key: key})
		}
	}
	return cols
}

// match is stage 2 for one concept. A column is a candidate when its best
// similarity against the concept's forms reaches the threshold, unless the
// column is spelled exactly like a form of another concept ("cgst_amount" is
// never a gst_amount candidate). Exactly one candidate resolves; several are
// returned as ambiguous candidates in schema order.
func (r *Resolver) match(cc *compiledConcept, columns []keyedColumn) (string, []string) {
	var candidates []string
	for _, col := range columns {
		if owner, ok := ownerByKey[col.key]; ok && owner != cc.Name {
			continue
		}
		best := 0.0
		for _, k := range cc.keys {
			if s := textmatch.Ratio(col.key, k); s > best {
				best = s
			}
		}
		if best >= r.threshold {
			candidates = append(candidates, col.name)
		}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	return "", candidates
}

// groupColumns is the group-by part of stage 3: "by X", "per X", "each X"
// and "X wise" where X names a groupable concept that resolved.
func groupColumns(words []string, mentions []mention, resolved map[string]string) []string {
	groupBy := []string{}
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, m := range mentions {
		cc := &compiled[m.concept]
		if !cc.Groupable {
			continue
		}
		col, ok := resolved[cc.Name]
		if !ok {
			continue
		}
		before := m.start > 0 && groupPrefixes.Contains(words[m.start-1])
		after := m.end < len(words) && groupSuffixes.Contains(words[m.end])
		if (before || after) && seen.Add(col) {
			groupBy = append(groupBy, col)
		}
	}
	return groupBy
}

// extractFilters picks up "<concept> is <value>" for resolved categorical
// concepts. Values are folded single words.
func extractFilters(words []string, mentions []mention, resolved map[string]string, filters map[string]string) {
	for _, m := range mentions {
		cc := &compiled[m.concept]
		if !cc.Groupable || cc.Name == ConceptDate {
			continue
		}
		col, ok := resolved[cc.Name]
		if !ok || m.end+1 >= len(words) || !filterVerbs.Contains(words[m.end]) {
			continue
		}
		filters[col] = words[m.end+1]
	}
}
