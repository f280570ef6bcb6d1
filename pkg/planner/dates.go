package planner

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

var monthNumbers = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// monthAlt lists long names before their abbreviations so the regexp
// alternation prefers "september" over "sep".
const monthAlt = `january|february|march|april|may|june|july|august|september|october|november|december|` +
	`jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`

var (
	isoDatePattern   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	slashDatePattern = regexp.MustCompile(`\b(\d{1,2})[/.](\d{1,2})[/.](\d{4})\b`)
	monthDayPattern  = regexp.MustCompile(`\b(` + monthAlt + `)\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	dayMonthPattern  = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthAlt + `)\b(?:,?\s+(\d{4})\b)?`)
	monthYearPattern = regexp.MustCompile(`\b(` + monthAlt + `)\b,?\s+(\d{4})\b`)
	bareMonthPattern = regexp.MustCompile(`\b(?:in|for|during|of|on)\s+(` + monthAlt + `)\b`)
	lastDaysPattern  = regexp.MustCompile(`\b(?:last|past)\s+(\d{1,3})\s+days?\b`)
	todayPattern     = regexp.MustCompile(`\btoday\b`)
	yesterdayPattern = regexp.MustCompile(`\byesterday\b`)
	thisMonthPattern = regexp.MustCompile(`\bthis\s+month\b`)
	lastMonthPattern = regexp.MustCompile(`\b(?:last|previous)\s+month\b`)
	thisYearPattern  = regexp.MustCompile(`\bthis\s+year\b`)
	lastYearPattern  = regexp.MustCompile(`\b(?:last|previous)\s+year\b`)
)

type dateMention struct {
	start, end int
	rng        models.DateRange
}

// dateExtractor parses one pattern match into a range.
type dateExtractor struct {
	pattern *regexp.Regexp
	parse   func(groups []string, ref time.Time) (models.DateRange, bool)
}

// extractors run in order; a later pattern never claims text an earlier one
// already matched, so "10 Jan 2025" is one day and not also a month.
var extractors = []dateExtractor{
	{isoDatePattern, func(g []string, _ time.Time) (models.DateRange, bool) {
		return day(atoi(g[1]), atoi(g[2]), atoi(g[3]))
	}},
	{slashDatePattern, func(g []string, _ time.Time) (models.DateRange, bool) {
		return day(atoi(g[3]), atoi(g[2]), atoi(g[1]))
	}},
	{monthDayPattern, func(g []string, _ time.Time) (models.DateRange, bool) {
		return day(atoi(g[3]), int(monthNumbers[g[1]]), atoi(g[2]))
	}},
	{dayMonthPattern, func(g []string, ref time.Time) (models.DateRange, bool) {
		year := ref.Year()
		if g[3] != "" {
			year = atoi(g[3])
		}
		return day(year, int(monthNumbers[g[2]]), atoi(g[1]))
	}},
	{monthYearPattern, func(g []string, _ time.Time) (models.DateRange, bool) {
		return models.MonthRange(atoi(g[2]), monthNumbers[g[1]]), true
	}},
	{bareMonthPattern, func(g []string, ref time.Time) (models.DateRange, bool) {
		return models.MonthRange(ref.Year(), monthNumbers[g[1]]), true
	}},
	{lastDaysPattern, func(g []string, ref time.Time) (models.DateRange, bool) {
		n := atoi(g[1])
		if n < 1 {
			return models.DateRange{}, false
		}
		return models.NewDateRange(ref.AddDate(0, 0, -(n - 1)), ref), true
	}},
	{todayPattern, func(_ []string, ref time.Time) (models.DateRange, bool) {
		return models.SingleDay(ref), true
	}},
	{yesterdayPattern, func(_ []string, ref time.Time) (models.DateRange, bool) {
		return models.SingleDay(ref.AddDate(0, 0, -1)), true
	}},
	{thisMonthPattern, func(_ []string, ref time.Time) (models.DateRange, bool) {
		return models.MonthRange(ref.Year(), ref.Month()), true
	}},
	{lastMonthPattern, func(_ []string, ref time.Time) (models.DateRange, bool) {
		first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		return models.MonthRange(first.Year(), first.Month()), true
	}},
	{thisYearPattern, func(_ []string, ref time.Time) (models.DateRange, bool) {
		return yearRange(ref.Year()), true
	}},
	{lastYearPattern, func(_ []string, ref time.Time) (models.DateRange, bool) {
		return yearRange(ref.Year() - 1), true
	}},
}

// ExtractDates finds every date expression in query, in order of
// appearance. Day-month without a year and relative expressions are
// anchored to ref.
func ExtractDates(query string, ref time.Time) []models.DateRange {
	if ref.IsZero() {
		ref = time.Now().UTC()
	}
	ref = models.DateOf(ref)
	q := strings.ToLower(query)

	var found []dateMention
	taken := func(start, end int) bool {
		for _, m := range found {
			if start < m.end && m.start < end {
				return true
			}
		}
		return false
	}

	for _, ex := range extractors {
		for _, loc := range ex.pattern.FindAllStringSubmatchIndex(q, -1) {
			if taken(loc[0], loc[1]) {
				continue
			}
			groups := make([]string, len(loc)/2)
			for i := range groups {
				if loc[2*i] >= 0 {
					groups[i] = q[loc[2*i]:loc[2*i+1]]
				}
			}
			rng, ok := ex.parse(groups, ref)
			if !ok {
				continue
			}
			found = append(found, dateMention{start: loc[0], end: loc[1], rng: rng})
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })
	out := make([]models.DateRange, len(found))
	for i, m := range found {
		out[i] = m.rng
	}
	return out
}

// ParseDate reads the date spellings a language model tends to produce.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{models.DateLayout, "2 Jan 2006", "2 January 2006", "02/01/2006", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DateOf(t), true
		}
	}
	return time.Time{}, false
}

// day validates and builds a single-day range; "31 Feb" is rejected rather
// than rolled into March.
func day(year, month, d int) (models.DateRange, bool) {
	if month < 1 || month > 12 || d < 1 || year < 1900 || year > 2999 {
		return models.DateRange{}, false
	}
	t := time.Date(year, time.Month(month), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != month {
		return models.DateRange{}, false
	}
	return models.SingleDay(t), true
}

func yearRange(year int) models.DateRange {
	return models.DateRange{
		From: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
