// Package dataagent fetches the rows and aggregates a finalized plan needs.
// Every read is scoped to the one dataset version bound to the plan; an
// unbound plan reads nothing.
package dataagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-insight/pkg/analyst"
	"github.com/ekaya-inc/ekaya-insight/pkg/audit"
	"github.com/ekaya-inc/ekaya-insight/pkg/cache"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/repositories"
	"github.com/ekaya-inc/ekaya-insight/pkg/retrieval"
	"github.com/ekaya-inc/ekaya-insight/pkg/textmatch"
)

// Config bounds what one request may read.
type Config struct {
	AggregateRowLimit int // rows read to build aggregates or group totals
	RetrievalTopK     int
	NearbyDatesLimit  int
}

// DefaultConfig mirrors the engine configuration defaults.
func DefaultConfig() Config {
	return Config{
		AggregateRowLimit: 100000,
		RetrievalTopK:     20,
		NearbyDatesLimit:  5,
	}
}

// Request is a finalized plan plus what the agent needs around it.
type Request struct {
	Query   string
	Plan    models.Plan
	Filters map[string]string // column -> value, exact after folding
	// Explain lets the agent consult similarity retrieval for phrasing
	// context. Only the explanation route sets it.
	Explain bool
}

// Result is what the analyst works from. Aggregates is set for every intent
// except breakdown, which gets Rows.
type Result struct {
	DatasetVersionID uuid.UUID
	Aggregates       *models.Aggregates
	Rows             []models.RowRecord
	RowsFetched      int
	CacheHit         bool
	Truncated        bool
	ScopeViolation   bool
	SearchedScope    string
	Context          []retrieval.Match
}

// Empty reports whether the scope held no rows at all.
func (r *Result) Empty() bool {
	if r.Aggregates != nil {
		return r.Aggregates.RowCount == 0
	}
	return len(r.Rows) == 0
}

// Agent reads rows through the row store and aggregates through the cache.
type Agent struct {
	store     repositories.RowStore
	cache     *cache.AggregateCache
	retriever retrieval.Retriever // nil when similarity retrieval is not configured
	auditor   *audit.PolicyAuditor
	cfg       Config
	flights   singleflight.Group
	logger    *zap.Logger
}

// New creates an Agent. retriever may be nil; a nil auditor gets the default.
func New(store repositories.RowStore, aggCache *cache.AggregateCache, retriever retrieval.Retriever,
	auditor *audit.PolicyAuditor, cfg Config, logger *zap.Logger) *Agent {
	def := DefaultConfig()
	if cfg.AggregateRowLimit <= 0 {
		cfg.AggregateRowLimit = def.AggregateRowLimit
	}
	if cfg.RetrievalTopK <= 0 {
		cfg.RetrievalTopK = def.RetrievalTopK
	}
	if cfg.NearbyDatesLimit <= 0 {
		cfg.NearbyDatesLimit = def.NearbyDatesLimit
	}
	if auditor == nil {
		auditor = audit.NewPolicyAuditor(logger)
	}
	return &Agent{
		store:     store,
		cache:     aggCache,
		retriever: retriever,
		auditor:   auditor,
		cfg:       cfg,
		logger:    logger.Named("data-agent"),
	}
}

// Fetch reads what req.Plan needs. A plan without a bound dataset version
// returns zero rows and a scope violation instead of guessing a version.
func (a *Agent) Fetch(ctx context.Context, req Request) (*Result, error) {
	plan := req.Plan
	if !plan.IsBound() {
		filterType := plan.DateFilterType
		if filterType == "" {
			filterType = models.DateFilterEvent
		}
		a.auditor.LogScopeViolation(ctx, req.Query, string(filterType))
		a.logger.Warn("Refusing unbound data request",
			zap.String("date_filter_type", string(filterType)),
			zap.String("intent", string(plan.Intent)))
		return &Result{ScopeViolation: true, SearchedScope: DescribeScope(plan)}, nil
	}

	res := &Result{DatasetVersionID: plan.DatasetVersionID, SearchedScope: DescribeScope(plan)}

	var err error
	if plan.Intent == models.IntentBreakdown {
		err = a.fetchRows(ctx, req, res)
	} else {
		err = a.fetchAggregates(ctx, req, res)
	}
	if err != nil {
		return nil, err
	}

	if req.Explain {
		res.Context = a.retrieve(ctx, req)
	}

	a.logger.Debug("Fetched scope",
		zap.String("dataset_version_id", plan.DatasetVersionID.String()),
		zap.String("scope", res.SearchedScope),
		zap.Int("rows_fetched", res.RowsFetched),
		zap.Bool("cache_hit", res.CacheHit),
		zap.Bool("truncated", res.Truncated),
		zap.Int("context_matches", len(res.Context)))
	return res, nil
}

// rowQuery translates the plan's scope. Event-date plans filter on the row
// date; upload-date plans filter on the version's creation day.
func rowQuery(plan models.Plan) models.RowQuery {
	q := models.RowQuery{
		DatasetVersionID: plan.DatasetVersionID,
		Tag:              plan.Tag,
	}
	scope := scopeRange(plan)
	if plan.DateFilterType == models.DateFilterUpload {
		q.CreationDateRange = scope.Ptr()
	} else {
		q.EventDateRange = scope.Ptr()
	}
	return q
}

// scopeRange covers both sides of a comparison.
func scopeRange(plan models.Plan) models.DateRange {
	r := plan.DateRange
	for _, cr := range plan.CompareRanges {
		r = r.Union(cr)
	}
	return r
}

// find reads at most limit rows and reports whether more existed.
func (a *Agent) find(ctx context.Context, q models.RowQuery, limit int) ([]models.RowRecord, bool, error) {
	q.Limit = limit + 1
	rows, err := a.store.FindRows(ctx, q)
	if err != nil {
		return nil, false, fmt.Errorf("find rows for version %s: %w", q.DatasetVersionID, err)
	}
	for i := range rows {
		if rows[i].DatasetVersionID != q.DatasetVersionID {
			return nil, false, fmt.Errorf("row store returned a row of version %s for version %s",
				rows[i].DatasetVersionID, q.DatasetVersionID)
		}
	}
	if len(rows) > limit {
		return rows[:limit], true, nil
	}
	return rows, false, nil
}

func (a *Agent) fetchRows(ctx context.Context, req Request, res *Result) error {
	rows, truncated, err := a.find(ctx, rowQuery(req.Plan), a.cfg.AggregateRowLimit)
	if err != nil {
		return err
	}
	rows = applyFilters(rows, req.Filters)
	res.Rows = rows
	res.RowsFetched = len(rows)
	res.Truncated = truncated
	return nil
}

type flightResult struct {
	agg       *models.Aggregates
	fetched   int
	truncated bool
	hit       bool
}

// fetchAggregates serves from the cache when it can. Concurrent misses on
// one signature share a single store read. Filtered requests are computed
// fresh since filters are not part of the signature.
func (a *Agent) fetchAggregates(ctx context.Context, req Request, res *Result) error {
	plan := req.Plan
	if len(req.Filters) > 0 {
		rows, truncated, err := a.find(ctx, rowQuery(plan), a.cfg.AggregateRowLimit)
		if err != nil {
			return err
		}
		rows = applyFilters(rows, req.Filters)
		res.Aggregates = analyst.Aggregate(rows, plan.MetricColumn)
		res.RowsFetched = len(rows)
		res.Truncated = truncated
		return nil
	}

	key := cacheKey(plan)
	if agg, ok := a.cache.Get(key); ok {
		res.Aggregates = agg
		res.CacheHit = true
		return nil
	}

	v, err, _ := a.flights.Do(key.Signature(), func() (any, error) {
		// A flight that finished between our miss and now has filled it.
		if agg, ok := a.cache.Get(key); ok {
			return flightResult{agg: agg, hit: true}, nil
		}
		rows, truncated, err := a.find(ctx, rowQuery(plan), a.cfg.AggregateRowLimit)
		if err != nil {
			return nil, err
		}
		agg := analyst.Aggregate(rows, plan.MetricColumn)
		if truncated {
			a.logger.Warn("Aggregate row limit reached, result not cached",
				zap.String("dataset_version_id", plan.DatasetVersionID.String()),
				zap.Int("limit", a.cfg.AggregateRowLimit))
		} else {
			a.cache.Put(key, agg)
		}
		return flightResult{agg: agg, fetched: len(rows), truncated: truncated}, nil
	})
	if err != nil {
		return err
	}

	fr := v.(flightResult)
	res.Aggregates = fr.agg
	res.RowsFetched = fr.fetched
	res.Truncated = fr.truncated
	res.CacheHit = fr.hit
	return nil
}

func cacheKey(plan models.Plan) cache.Key {
	filterType := plan.DateFilterType
	if filterType == "" {
		filterType = models.DateFilterEvent
	}
	return cache.Key{
		DatasetVersionID: plan.DatasetVersionID,
		FilterType:       filterType,
		Range:            scopeRange(plan),
		Tag:              plan.Tag,
		MetricColumn:     plan.MetricColumn,
	}
}

func applyFilters(rows []models.RowRecord, filters map[string]string) []models.RowRecord {
	if len(filters) == 0 {
		return rows
	}
	out := rows[:0:0]
	for _, row := range rows {
		keep := true
		for col, want := range filters {
			v := row.Field(col)
			if v == nil || textmatch.Fold(fmt.Sprint(v)) != textmatch.Fold(want) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out
}

// retrieve consults similarity retrieval with the plan's scope. Matches of
// any other scope are dropped even if the retriever returned them. Failures
// only cost phrasing context.
func (a *Agent) retrieve(ctx context.Context, req Request) []retrieval.Match {
	if a.retriever == nil {
		return nil
	}
	filter := retrieval.ScopeFilter{
		DatasetVersionID: req.Plan.DatasetVersionID,
		Tag:              req.Plan.Tag,
	}
	if req.Plan.DateFilterType != models.DateFilterUpload {
		filter.RowDates = scopeRange(req.Plan)
	}

	matches, err := a.retriever.QuerySimilar(ctx, req.Query, filter, a.cfg.RetrievalTopK)
	if err != nil {
		a.logger.Warn("Similarity retrieval failed, continuing without context", zap.Error(err))
		return nil
	}
	kept := retrieval.FilterScope(matches, filter)
	if dropped := len(matches) - len(kept); dropped > 0 {
		a.logger.Warn("Dropped out-of-scope retrieval matches",
			zap.Int("dropped", dropped),
			zap.String("dataset_version_id", filter.DatasetVersionID.String()))
	}
	return kept
}

// NearbyDates lists dates close to the plan's range that do have rows in
// the bound version. It is a diagnostic aid for empty results.
func (a *Agent) NearbyDates(ctx context.Context, plan models.Plan) ([]string, error) {
	if !plan.IsBound() || plan.DateFilterType == models.DateFilterUpload {
		return nil, nil
	}
	scope := scopeRange(plan)
	if scope.IsZero() {
		return nil, nil
	}
	dates, err := a.store.GetNearbyDates(ctx, plan.DatasetVersionID, plan.Tag, scope.From, a.cfg.NearbyDatesLimit)
	if err != nil {
		return nil, fmt.Errorf("nearby dates: %w", err)
	}
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format(models.DateLayout))
	}
	return out, nil
}

// DescribeScope renders a plan's scope for diagnostics and no-data answers.
func DescribeScope(plan models.Plan) string {
	var parts []string
	kind := "event date"
	if plan.DateFilterType == models.DateFilterUpload {
		kind = "upload date"
	}
	if len(plan.CompareRanges) > 0 {
		ranges := make([]string, len(plan.CompareRanges))
		for i, r := range plan.CompareRanges {
			ranges[i] = r.String()
		}
		parts = append(parts, kind+" "+strings.Join(ranges, " vs "))
	} else {
		parts = append(parts, kind+" "+plan.DateRange.String())
	}
	if plan.Tag != "" {
		parts = append(parts, "client "+plan.Tag)
	}
	if plan.MetricColumn != "" {
		parts = append(parts, "metric "+plan.MetricColumn)
	}
	if plan.IsBound() {
		parts = append(parts, "dataset version "+plan.DatasetVersionID.String())
	}
	return strings.Join(parts, "; ")
}
