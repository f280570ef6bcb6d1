package services

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-insight/pkg/analyst"
	"github.com/ekaya-inc/ekaya-insight/pkg/cache"
	"github.com/ekaya-inc/ekaya-insight/pkg/chart"
	"github.com/ekaya-inc/ekaya-insight/pkg/config"
	"github.com/ekaya-inc/ekaya-insight/pkg/dataagent"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/normalizer"
	"github.com/ekaya-inc/ekaya-insight/pkg/planner"
	"github.com/ekaya-inc/ekaya-insight/pkg/policy"
	"github.com/ekaya-inc/ekaya-insight/pkg/repositories"
	"github.com/ekaya-inc/ekaya-insight/pkg/resolver"
	"github.com/ekaya-inc/ekaya-insight/pkg/responder"
)

// countingStore counts row reads so tests can assert that refusals never
// touch data.
type countingStore struct {
	*repositories.MemoryRowStore
	finds atomic.Int32
}

func (s *countingStore) FindRows(ctx context.Context, q models.RowQuery) ([]models.RowRecord, error) {
	s.finds.Add(1)
	return s.MemoryRowStore.FindRows(ctx, q)
}

type pipeline struct {
	store    *countingStore
	cache    *cache.AggregateCache
	datasets DatasetService
	answers  AnswerService
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		SimilarityThreshold:     0.85,
		ClarificationConfidence: 0.4,
		RowLimit:                500,
		AggregateRowLimit:       100000,
		DailyMaxDays:            60,
		RetrievalTopK:           20,
		NearbyDatesLimit:        5,
		TableRowLimit:           200,
	}
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := zap.NewNop()
	cfg := testEngineConfig()

	store := &countingStore{MemoryRowStore: repositories.NewMemoryRowStore()}
	aggCache := cache.New(64, time.Hour)
	datasets := NewDatasetService(store, nil, aggCache, cfg.RowLimit, logger)
	agent := dataagent.New(store, aggCache, nil, nil, dataagent.Config{
		AggregateRowLimit: cfg.AggregateRowLimit,
		RetrievalTopK:     cfg.RetrievalTopK,
		NearbyDatesLimit:  cfg.NearbyDatesLimit,
	}, logger)

	answers := NewAnswerService(
		datasets,
		normalizer.New(cfg.SimilarityThreshold),
		resolver.New(cfg.SimilarityThreshold, logger),
		planner.New(nil, nil, logger),
		policy.NewGuard(cfg.ClarificationConfidence, nil, logger),
		agent,
		analyst.New(cfg.DailyMaxDays, logger),
		responder.New(nil, nil, logger),
		cfg,
		logger,
	)
	return &pipeline{store: store, cache: aggCache, datasets: datasets, answers: answers}
}

func jan(d int) *time.Time {
	t := time.Date(2025, time.January, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func ledgerRow(i int, date *time.Time, amount, gst, category string) models.RowRecord {
	fields := map[string]any{"amount": amount, "gst": gst}
	if date != nil {
		fields["rowdate"] = date.Format(models.DateLayout)
	}
	if category != "" {
		fields["category"] = category
	}
	return models.RowRecord{RowIndex: i, RowDate: date, Fields: fields}
}

// registerLedger stores the standard fixture: three dated rows in January
// 2025 and one undated row.
func (p *pipeline) registerLedger(t *testing.T, created time.Time, janTwelveGST string) *models.DatasetVersion {
	t.Helper()
	v := &models.DatasetVersion{
		Filename:            "ledger.xlsx",
		ColumnNames:         []string{"rowdate", "amount", "gst", "category"},
		OriginalColumnNames: []string{"Date", "Amount", "GST", "Category"},
		Tag:                 "Acme",
		CreatedAt:           created,
	}
	rows := []models.RowRecord{
		ledgerRow(0, jan(10), "1000", "180", "Travel"),
		ledgerRow(1, jan(12), "2500.50", janTwelveGST, "Office"),
		ledgerRow(2, jan(12), "500", "90", "Travel"),
		ledgerRow(3, nil, "400", "72", ""),
	}
	got, err := p.datasets.Register(context.Background(), v, rows)
	require.NoError(t, err)
	return got
}

var uploaded = time.Date(2025, time.February, 1, 10, 0, 0, 0, time.UTC)

type scenario struct {
	Name            string `yaml:"name"`
	Query           string `yaml:"query"`
	Outcome         string `yaml:"outcome"`
	Route           string `yaml:"route"`
	MetricColumn    string `yaml:"metric_column"`
	Total           string `yaml:"total"`
	Chart           *bool  `yaml:"chart"`
	MessageContains string `yaml:"message_contains"`
	MessagePrefix   string `yaml:"message_prefix"`
	NoReads         bool   `yaml:"no_reads"`
}

func loadScenarios(t *testing.T) []scenario {
	t.Helper()
	raw, err := os.ReadFile("testdata/scenarios.yaml")
	require.NoError(t, err)
	var out []scenario
	require.NoError(t, yaml.Unmarshal(raw, &out))
	require.NotEmpty(t, out)
	return out
}

func TestResolveAndAnswer_Scenarios(t *testing.T) {
	for _, sc := range loadScenarios(t) {
		t.Run(sc.Name, func(t *testing.T) {
			p := newPipeline(t)
			v := p.registerLedger(t, uploaded, "450")

			ans, err := p.answers.ResolveAndAnswer(context.Background(), sc.Query, nil)
			require.NoError(t, err)

			assert.Equal(t, models.Outcome(sc.Outcome), ans.Outcome, ans.Message)
			assert.Equal(t, sc.Query, ans.Diagnostics.OriginalQuery)
			assert.Equal(t, v.ID, ans.Diagnostics.DatasetVersionID)
			if sc.Route != "" {
				assert.Equal(t, sc.Route, ans.Diagnostics.Route)
			}
			if sc.MetricColumn != "" {
				assert.Equal(t, sc.MetricColumn, ans.Diagnostics.MetricColumn)
			}
			if sc.Total != "" {
				require.NotNil(t, ans.Result)
				assert.True(t, decimal.RequireFromString(sc.Total).Equal(ans.Result.Total),
					"total %s, want %s", ans.Result.Total, sc.Total)
			}
			if sc.Chart != nil {
				assert.Equal(t, *sc.Chart, ans.Chart != nil, ans.Diagnostics.ChartFallbackReason)
			}
			if sc.MessageContains != "" {
				assert.Contains(t, ans.Message, sc.MessageContains)
			}
			if sc.MessagePrefix != "" {
				assert.True(t, strings.HasPrefix(ans.Message, sc.MessagePrefix), ans.Message)
			}
			if sc.NoReads {
				assert.Zero(t, p.store.finds.Load(), "no rows may be read")
				assert.Nil(t, ans.Result)
			}
		})
	}
}

func TestResolveAndAnswer_PointLookup(t *testing.T) {
	p := newPipeline(t)
	p.registerLedger(t, uploaded, "450")

	ans, err := p.answers.ResolveAndAnswer(context.Background(), "GST on 2025-01-12", nil)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeAnswered, ans.Outcome)

	assert.True(t, decimal.NewFromInt(540).Equal(ans.Result.Total))
	assert.Equal(t, 2, ans.Result.RowCount)
	require.NotNil(t, ans.Result.MinDate)
	assert.Equal(t, *jan(12), *ans.Result.MinDate)
	assert.Equal(t, *jan(12), *ans.Result.MaxDate)

	assert.Nil(t, ans.Chart, "a single point is never charted")
	require.NotNil(t, ans.Table)
	assert.Equal(t, chart.ReasonNotRequested, ans.Diagnostics.ChartFallbackReason)

	d := ans.Diagnostics
	assert.Equal(t, "data", d.Route)
	assert.Equal(t, string(policy.ActionAllow), d.PolicyAction)
	assert.Equal(t, models.PlanSourceHeuristic, d.PlanSource)
	assert.Equal(t, resolver.ConceptGSTAmount, d.Metric)
	assert.Equal(t, "2025-01-12", d.DateRange)
	assert.Equal(t, models.DateFilterEvent, d.DateFilterType)
	assert.Equal(t, responder.SourceTemplate, d.PhrasingSource)
	assert.Contains(t, ans.Message, "Total GST amount: 540.00 (from 2 rows).")
	assert.NotContains(t, ans.Message, "72", "the undated row is outside an event-date scope")
}

func TestResolveAndAnswer_TrendIsChartedDaily(t *testing.T) {
	p := newPipeline(t)
	p.registerLedger(t, uploaded, "450")

	ans, err := p.answers.ResolveAndAnswer(context.Background(), "trend for January 2025", nil)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeAnswered, ans.Outcome, ans.Message)

	require.Len(t, ans.Result.Series, 2)
	assert.Equal(t, "2025-01-10", ans.Result.Series[0].Period)
	assert.True(t, decimal.NewFromInt(1000).Equal(ans.Result.Series[0].Total))
	assert.Equal(t, "2025-01-12", ans.Result.Series[1].Period)
	assert.True(t, decimal.RequireFromString("3000.50").Equal(ans.Result.Series[1].Total))

	require.NotNil(t, ans.Chart, ans.Diagnostics.ChartFallbackReason)
	assert.Equal(t, models.ChartLine, ans.Chart.Type)
	assert.Len(t, ans.Chart.Points, 2)
}

func TestResolveAndAnswer_BreakdownKeepsBlankGroup(t *testing.T) {
	p := newPipeline(t)
	p.registerLedger(t, uploaded, "450")

	ans, err := p.answers.ResolveAndAnswer(context.Background(), "expense breakdown by category", nil)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeAnswered, ans.Outcome, ans.Message)

	totals := map[string]decimal.Decimal{}
	sum := decimal.Zero
	for _, g := range ans.Result.Groups {
		totals[g.Key] = g.Total
		sum = sum.Add(g.Total)
	}
	assert.Len(t, totals, 3)
	assert.True(t, decimal.NewFromInt(1500).Equal(totals["Travel"]))
	assert.True(t, decimal.RequireFromString("2500.50").Equal(totals["Office"]))
	assert.True(t, decimal.NewFromInt(400).Equal(totals[analyst.BlankGroup]))
	assert.True(t, sum.Equal(ans.Result.Total), "groups sum to the unfiltered total")
}

func TestResolveAndAnswer_UnresolvedMetricIsNeverSubstituted(t *testing.T) {
	p := newPipeline(t)
	p.registerLedger(t, uploaded, "450")

	ans, err := p.answers.ResolveAndAnswer(context.Background(), "discount amount for 10 Jan", nil)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeUnresolvedColumn, ans.Outcome)
	assert.Contains(t, ans.Message, "No column found for: discount")
	assert.Contains(t, ans.Message, "Available columns: Date, Amount, GST, Category.")
	assert.Nil(t, ans.Result)
	assert.Empty(t, ans.Diagnostics.MetricColumn)
	assert.Equal(t, []string{resolver.ConceptDiscount}, ans.Diagnostics.Resolution.Unresolved)
	assert.Zero(t, p.store.finds.Load())
}

func TestResolveAndAnswer_AmbiguousColumnsAskWhichOne(t *testing.T) {
	p := newPipeline(t)
	v := &models.DatasetVersion{
		ColumnNames: []string{"rowdate", "gst_amount", "gst_amount_2"},
		CreatedAt:   uploaded,
	}
	rows := []models.RowRecord{{RowDate: jan(12), Fields: map[string]any{"gst_amount": "10", "gst_amount_2": "20"}}}
	_, err := p.datasets.Register(context.Background(), v, rows)
	require.NoError(t, err)

	ans, err := p.answers.ResolveAndAnswer(context.Background(), "gst on 2025-01-12", nil)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeAmbiguousColumn, ans.Outcome)
	assert.True(t, ans.Diagnostics.IsClarification)
	assert.Contains(t, ans.Message, "gst_amount, gst_amount_2")
	assert.Zero(t, p.store.finds.Load())
}

func TestResolveAndAnswer_NoDataset(t *testing.T) {
	p := newPipeline(t)

	ans, err := p.answers.ResolveAndAnswer(context.Background(), "GST on 2025-01-12", nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoDataset, ans.Outcome)
	assert.Equal(t, NoDatasetMessage, ans.Message)
	assert.Zero(t, p.store.finds.Load(), "nothing is read without a dataset to bind to")

	ans, err = p.answers.ResolveAndAnswer(context.Background(), "how many columns", nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoDataset, ans.Outcome)
	assert.Contains(t, ans.Message, "No file has been uploaded yet")
}

func TestResolveAndAnswer_EmptyQuery(t *testing.T) {
	p := newPipeline(t)
	ans, err := p.answers.ResolveAndAnswer(context.Background(), "   ", nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeClarification, ans.Outcome)
	assert.Equal(t, EmptyQueryMessage, ans.Message)
}

func TestResolveAndAnswer_ConfirmationOnlyAppliesToSameQuery(t *testing.T) {
	p := newPipeline(t)
	p.registerLedger(t, uploaded, "450")
	ctx := context.Background()
	const vague = "hello there"

	ans, err := p.answers.ResolveAndAnswer(ctx, vague, nil)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeClarification, ans.Outcome)
	assert.True(t, ans.Diagnostics.IsClarification)
	assert.Zero(t, p.store.finds.Load())

	ans, err = p.answers.ResolveAndAnswer(ctx, vague, &models.ClarificationContext{OriginalQuery: "something else", Confirmed: true})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeClarification, ans.Outcome)

	ans, err = p.answers.ResolveAndAnswer(ctx, vague, &models.ClarificationContext{OriginalQuery: vague, Confirmed: true})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAnswered, ans.Outcome, ans.Message)
	assert.Equal(t, "amount", ans.Diagnostics.MetricColumn, "the default metric is used once confirmed")
}

func TestResolveAndAnswer_UploadDateScope(t *testing.T) {
	p := newPipeline(t)
	first := p.registerLedger(t, uploaded, "450")
	p.registerLedger(t, uploaded.AddDate(0, 0, 1), "1000")

	ans, err := p.answers.ResolveAndAnswer(context.Background(), "gst uploaded on 1 Feb 2025", nil)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeAnswered, ans.Outcome, ans.Message)

	assert.Equal(t, models.DateFilterUpload, ans.Diagnostics.DateFilterType)
	assert.Equal(t, first.ID, ans.Diagnostics.DatasetVersionID, "the historical version uploaded that day is read")
	assert.True(t, decimal.NewFromInt(792).Equal(ans.Result.Total), "upload scope includes undated rows")
}

func TestResolveAndAnswer_NewVersionInvalidatesCache(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	first := p.registerLedger(t, uploaded, "450")

	ans, err := p.answers.ResolveAndAnswer(ctx, "GST on 2025-01-12", nil)
	require.NoError(t, err)
	assert.False(t, ans.Diagnostics.CacheHit)

	ans, err = p.answers.ResolveAndAnswer(ctx, "GST on 2025-01-12", nil)
	require.NoError(t, err)
	assert.True(t, ans.Diagnostics.CacheHit)
	assert.Equal(t, first.ID, ans.Diagnostics.DatasetVersionID)

	second := p.registerLedger(t, uploaded.AddDate(0, 0, 1), "1000")
	assert.Equal(t, second.ID, p.cache.Version())
	assert.Zero(t, p.cache.Len(), "entries of the old version are gone")

	ans, err = p.answers.ResolveAndAnswer(ctx, "GST on 2025-01-12", nil)
	require.NoError(t, err)
	assert.False(t, ans.Diagnostics.CacheHit)
	assert.Equal(t, second.ID, ans.Diagnostics.DatasetVersionID)
	assert.True(t, decimal.NewFromInt(1090).Equal(ans.Result.Total), "never the first version's 540")
}

func TestResolveAndAnswer_Idempotent(t *testing.T) {
	p := newPipeline(t)
	p.registerLedger(t, uploaded, "450")
	ctx := context.Background()

	for _, q := range []string{"trend for January 2025", "expense breakdown by category", "discount amount for 10 Jan"} {
		a, err := p.answers.ResolveAndAnswer(ctx, q, nil)
		require.NoError(t, err)
		b, err := p.answers.ResolveAndAnswer(ctx, q, nil)
		require.NoError(t, err)

		assert.Equal(t, a.Outcome, b.Outcome, q)
		assert.Equal(t, a.Message, b.Message, q)
		assert.Equal(t, a.Result, b.Result, q)
		assert.Equal(t, a.Chart, b.Chart, q)
		assert.Equal(t, a.Table, b.Table, q)
	}
}

func TestResolveAndAnswer_ConcurrentQueries(t *testing.T) {
	p := newPipeline(t)
	p.registerLedger(t, uploaded, "450")

	var g errgroup.Group
	totals := make([]decimal.Decimal, 16)
	for i := range totals {
		g.Go(func() error {
			ans, err := p.answers.ResolveAndAnswer(context.Background(), "GST on 2025-01-12", nil)
			if err != nil {
				return err
			}
			totals[i] = ans.Result.Total
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, total := range totals {
		assert.True(t, decimal.NewFromInt(540).Equal(total))
	}
	assert.Equal(t, int32(1), p.store.finds.Load(), "concurrent misses share one read")
}
