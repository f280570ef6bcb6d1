package resolver

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-insight/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/textmatch"
)

// defaultMetricOrder is the order in which metrics are tried when a query
// names none.
var defaultMetricOrder = []string{
	ConceptNetAmount,
	ConceptAmount,
	ConceptTotalAmount,
	ConceptGSTAmount,
	ConceptDiscount,
	ConceptCGSTAmount,
	ConceptSGSTAmount,
	ConceptIGSTAmount,
}

// hint rules are checked in order; the component taxes come before "gst" so
// "cgst" is not read as gst.
var metricHints = []struct {
	words   []string
	concept string
}{
	{[]string{"cgst"}, ConceptCGSTAmount},
	{[]string{"sgst"}, ConceptSGSTAmount},
	{[]string{"igst"}, ConceptIGSTAmount},
	{[]string{"gst", "tax"}, ConceptGSTAmount},
	{[]string{"discount", "disc"}, ConceptDiscount},
	{[]string{"net"}, ConceptNetAmount},
	{[]string{"total", "gross"}, ConceptTotalAmount},
	{[]string{"amount", "amt"}, ConceptAmount},
}

// MetricConceptForHint maps a metric word or concept name to an amount
// concept. It returns false when the hint names no metric.
func MetricConceptForHint(hint string) (string, bool) {
	h := textmatch.Fold(hint)
	if h == "" {
		return "", false
	}
	if IsAmountConcept(h) {
		return h, true
	}
	for _, rule := range metricHints {
		for _, w := range rule.words {
			if strings.Contains(h, w) {
				return rule.concept, true
			}
		}
	}
	return "", false
}

// MetricColumn returns the column resolved for the metric the hint names.
// It never substitutes another metric: a hint whose concept has no column
// fails with ErrMetricUnresolved.
func MetricColumn(res *models.ResolutionResult, hint string) (string, error) {
	concept, ok := MetricConceptForHint(hint)
	if !ok {
		return "", fmt.Errorf("%w: %q is not a metric", apperrors.ErrMetricUnresolved, hint)
	}
	if res != nil {
		if col, ok := res.Resolved[concept]; ok {
			return col, nil
		}
	}
	return "", fmt.Errorf("%w: %s", apperrors.ErrMetricUnresolved, concept)
}

// FirstMentionedMetric returns the first amount concept the query mentioned.
func FirstMentionedMetric(res *models.ResolutionResult) (string, bool) {
	if res == nil {
		return "", false
	}
	for _, c := range res.Mentioned {
		if IsAmountConcept(c) {
			return c, true
		}
	}
	return "", false
}

// DefaultMetric picks the first metric, by priority, that resolves to exactly
// one column of the schema.
func (r *Resolver) DefaultMetric(schema models.DatasetSchema) (concept, column string, ok bool) {
	for _, c := range defaultMetricOrder {
		if col, found := r.ColumnFor(c, schema.ColumnNames); found {
			return c, col, true
		}
	}
	return "", "", false
}
