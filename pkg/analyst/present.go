package analyst

import (
	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// PresentPlaces is the number of decimal places shown to users.
const PresentPlaces = 2

// Round rounds half away from zero to two places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(PresentPlaces)
}

// Format renders d with exactly two decimal places.
func Format(d decimal.Decimal) string {
	return d.StringFixed(PresentPlaces)
}

// Present returns a copy of res with every monetary figure rounded for
// display. Percentages are rounded to two places as well. res is unchanged.
func Present(res *models.AnalysisResult) *models.AnalysisResult {
	if res == nil {
		return nil
	}
	out := *res
	out.Total = Round(res.Total)
	out.UndatedTotal = Round(res.UndatedTotal)

	if res.Groups != nil {
		out.Groups = make([]models.GroupTotal, len(res.Groups))
		for i, g := range res.Groups {
			g.Total = Round(g.Total)
			out.Groups[i] = g
		}
	}
	if res.Series != nil {
		out.Series = make([]models.PeriodTotal, len(res.Series))
		for i, p := range res.Series {
			p.Total = Round(p.Total)
			out.Series[i] = p
		}
	}
	if res.Comparison != nil {
		c := *res.Comparison
		c.Baseline.Total = Round(c.Baseline.Total)
		c.Current.Total = Round(c.Current.Total)
		c.Difference = Round(c.Difference)
		if c.PercentChange != nil {
			pct := Round(*c.PercentChange)
			c.PercentChange = &pct
		}
		out.Comparison = &c
	}
	return &out
}
