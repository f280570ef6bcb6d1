// Package analyst computes exact numeric results from retrieved rows and
// cached aggregates. It never produces prose and never rounds before the
// presentation boundary.
package analyst

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

// DefaultDailyMaxDays is the longest span still reported day by day.
const DefaultDailyMaxDays = 60

// BlankGroup keys rows whose grouping value is missing or empty.
const BlankGroup = "(blank)"

// Request carries what the analyst needs from the finalized plan.
type Request struct {
	Intent        models.Intent
	Metric        string
	MetricColumn  string
	GroupBy       string
	FilterType    models.DateFilterType
	Range         models.DateRange
	CompareRanges []models.DateRange
}

// Analyst is stateless apart from configuration.
type Analyst struct {
	dailyMaxDays int
	logger       *zap.Logger
}

// New creates an Analyst. A non-positive dailyMaxDays uses the default.
func New(dailyMaxDays int, logger *zap.Logger) *Analyst {
	if dailyMaxDays <= 0 {
		dailyMaxDays = DefaultDailyMaxDays
	}
	return &Analyst{dailyMaxDays: dailyMaxDays, logger: logger.Named("analyst")}
}

// Analyze dispatches on intent. Breakdown works on rows; every other intent
// works on the scope's aggregates.
func (a *Analyst) Analyze(req Request, agg *models.Aggregates, rows []models.RowRecord) (*models.AnalysisResult, error) {
	if req.MetricColumn == "" {
		return nil, fmt.Errorf("analyze %s: %w", req.Intent, apperrors.ErrMetricUnresolved)
	}

	var (
		res *models.AnalysisResult
		err error
	)
	switch req.Intent {
	case models.IntentBreakdown:
		res, err = a.Breakdown(req, rows)
	case models.IntentTrend:
		res, err = a.Trend(req, agg)
	case models.IntentCompare:
		res, err = a.Compare(req, agg)
	default:
		res, err = a.Summary(req, agg)
	}
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Analyzed scope",
		zap.String("intent", string(req.Intent)),
		zap.String("metric_column", req.MetricColumn),
		zap.Int("row_count", res.RowCount),
		zap.String("total", res.Total.String()))
	return res, nil
}

func newResult(req Request) *models.AnalysisResult {
	return &models.AnalysisResult{
		Intent:       req.Intent,
		Metric:       req.Metric,
		MetricColumn: req.MetricColumn,
	}
}

func requireAggregates(req Request, agg *models.Aggregates) error {
	if agg == nil {
		return fmt.Errorf("analyze %s without aggregates: %w", req.Intent, apperrors.ErrInvalidPlan)
	}
	return nil
}

// Summary reports total, row count and the event date bounds.
func (a *Analyst) Summary(req Request, agg *models.Aggregates) (*models.AnalysisResult, error) {
	if err := requireAggregates(req, agg); err != nil {
		return nil, err
	}
	res := newResult(req)
	res.Total = agg.Total
	res.RowCount = agg.RowCount
	res.MinDate = agg.MinDate
	res.MaxDate = agg.MaxDate
	res.UndatedTotal = agg.UndatedTotal
	res.UndatedRows = agg.UndatedRows
	return res, nil
}

// Trend returns the ordered per-period series, daily when the span is at
// most dailyMaxDays and monthly otherwise.
func (a *Analyst) Trend(req Request, agg *models.Aggregates) (*models.AnalysisResult, error) {
	res, err := a.Summary(req, agg)
	if err != nil {
		return nil, err
	}
	res.Granularity = a.granularity(req, agg)
	if res.Granularity == models.GranularityDay {
		res.Series = append([]models.PeriodTotal(nil), agg.Daily...)
	} else {
		res.Series = append([]models.PeriodTotal(nil), agg.Monthly...)
	}
	return res, nil
}

// granularity uses the requested event range when there is one, otherwise
// the span actually observed in the data.
func (a *Analyst) granularity(req Request, agg *models.Aggregates) models.Granularity {
	span := 0
	switch {
	case req.FilterType != models.DateFilterUpload && !req.Range.IsZero():
		span = req.Range.Days()
	case agg.MinDate != nil && agg.MaxDate != nil:
		span = models.NewDateRange(*agg.MinDate, *agg.MaxDate).Days()
	}
	if span <= a.dailyMaxDays {
		return models.GranularityDay
	}
	return models.GranularityMonth
}

// Compare totals exactly two scopes from the daily aggregates. The first
// scope is the baseline.
func (a *Analyst) Compare(req Request, agg *models.Aggregates) (*models.AnalysisResult, error) {
	if err := requireAggregates(req, agg); err != nil {
		return nil, err
	}
	if len(req.CompareRanges) != 2 {
		return nil, fmt.Errorf("compare needs two scopes, got %d: %w", len(req.CompareRanges), apperrors.ErrInvalidPlan)
	}

	baseline := scopeTotal(req.CompareRanges[0], agg.Daily)
	current := scopeTotal(req.CompareRanges[1], agg.Daily)
	cmp := &models.Comparison{
		Baseline:   baseline,
		Current:    current,
		Difference: current.Total.Sub(baseline.Total),
	}
	if !baseline.Total.IsZero() {
		pct := cmp.Difference.Div(baseline.Total.Abs()).Mul(decimal.NewFromInt(100))
		cmp.PercentChange = &pct
	}

	res := newResult(req)
	res.Comparison = cmp
	res.Total = baseline.Total.Add(current.Total)
	res.RowCount = baseline.RowCount + current.RowCount
	res.MinDate, res.MaxDate = datedBounds(agg.Daily, req.CompareRanges)
	return res, nil
}

func scopeTotal(rng models.DateRange, daily []models.PeriodTotal) models.ScopeTotal {
	st := models.ScopeTotal{Range: rng, Total: decimal.Zero}
	for _, p := range daily {
		if rng.Contains(p.Start) {
			st.Total = st.Total.Add(p.Total)
			st.RowCount += p.Rows
		}
	}
	return st
}

func datedBounds(daily []models.PeriodTotal, scopes []models.DateRange) (minDate, maxDate *time.Time) {
	for _, p := range daily {
		in := false
		for _, s := range scopes {
			if s.Contains(p.Start) {
				in = true
				break
			}
		}
		if !in {
			continue
		}
		d := p.Start
		if minDate == nil || d.Before(*minDate) {
			minDate = &d
		}
		if maxDate == nil || d.After(*maxDate) {
			maxDate = &d
		}
	}
	return minDate, maxDate
}

// Breakdown totals the metric per value of the grouping column. Every
// observed value is kept, blanks included, so the groups sum to the total.
// Groups are ordered by total, largest first.
func (a *Analyst) Breakdown(req Request, rows []models.RowRecord) (*models.AnalysisResult, error) {
	if req.GroupBy == "" {
		return nil, fmt.Errorf("breakdown without a grouping column: %w", apperrors.ErrInvalidPlan)
	}
	res := newResult(req)
	res.GroupBy = req.GroupBy

	index := make(map[string]int)
	for i := range rows {
		row := &rows[i]
		key := groupKey(row.Field(req.GroupBy))
		amount, _ := ParseAmount(row.Field(req.MetricColumn))

		pos, ok := index[key]
		if !ok {
			pos = len(res.Groups)
			index[key] = pos
			res.Groups = append(res.Groups, models.GroupTotal{Key: key, Total: decimal.Zero})
		}
		res.Groups[pos].Total = res.Groups[pos].Total.Add(amount)
		res.Groups[pos].Rows++

		res.Total = res.Total.Add(amount)
		res.RowCount++
		trackDate(res, row)
	}

	sort.SliceStable(res.Groups, func(i, j int) bool {
		if c := res.Groups[i].Total.Cmp(res.Groups[j].Total); c != 0 {
			return c > 0
		}
		return res.Groups[i].Key < res.Groups[j].Key
	})
	return res, nil
}

func trackDate(res *models.AnalysisResult, row *models.RowRecord) {
	if row.RowDate == nil {
		return
	}
	d := models.DateOf(*row.RowDate)
	if res.MinDate == nil || d.Before(*res.MinDate) {
		lo := d
		res.MinDate = &lo
	}
	if res.MaxDate == nil || d.After(*res.MaxDate) {
		hi := d
		res.MaxDate = &hi
	}
}
