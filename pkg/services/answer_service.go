package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/analyst"
	"github.com/ekaya-inc/ekaya-insight/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insight/pkg/chart"
	"github.com/ekaya-inc/ekaya-insight/pkg/config"
	"github.com/ekaya-inc/ekaya-insight/pkg/dataagent"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/normalizer"
	"github.com/ekaya-inc/ekaya-insight/pkg/planner"
	"github.com/ekaya-inc/ekaya-insight/pkg/policy"
	"github.com/ekaya-inc/ekaya-insight/pkg/resolver"
	"github.com/ekaya-inc/ekaya-insight/pkg/responder"
	"github.com/ekaya-inc/ekaya-insight/pkg/router"
)

// User-facing messages for outcomes that do not come from a stage.
const (
	EmptyQueryMessage     = "Please ask a question (e.g. GST on 12 Jan 2025, how many rows, give chart)."
	NoDatasetMessage      = "No file has been uploaded yet. Upload a spreadsheet to ask questions about it."
	ScopeViolationMessage = "This question could not be tied to a single dataset version, so no rows were read."
)

// AnswerService is the single entry point of the engine.
type AnswerService interface {
	// ResolveAndAnswer runs one question through the pipeline against the
	// active dataset version. clarification may be nil. Every expected
	// outcome, including refusals and missing columns, is an Answer; an
	// error means a collaborator such as the row store failed.
	ResolveAndAnswer(ctx context.Context, query string, clarification *models.ClarificationContext) (*models.Answer, error)
}

type answerService struct {
	datasets   DatasetService
	normalizer *normalizer.Normalizer
	resolver   *resolver.Resolver
	planner    *planner.Planner
	guard      *policy.Guard
	agent      *dataagent.Agent
	analyst    *analyst.Analyst
	responder  *responder.Responder
	cfg        config.EngineConfig
	logger     *zap.Logger
}

// NewAnswerService wires the pipeline stages.
func NewAnswerService(
	datasets DatasetService,
	norm *normalizer.Normalizer,
	res *resolver.Resolver,
	plnr *planner.Planner,
	guard *policy.Guard,
	agent *dataagent.Agent,
	anl *analyst.Analyst,
	resp *responder.Responder,
	cfg config.EngineConfig,
	logger *zap.Logger,
) AnswerService {
	if cfg.TableRowLimit <= 0 {
		cfg.TableRowLimit = 200
	}
	return &answerService{
		datasets:   datasets,
		normalizer: norm,
		resolver:   res,
		planner:    plnr,
		guard:      guard,
		agent:      agent,
		analyst:    anl,
		responder:  resp,
		cfg:        cfg,
		logger:     logger.Named("answer"),
	}
}

// run is the state of one invocation. Every stage reads the snapshot taken
// at the start, so a version activated mid-query is not seen.
type run struct {
	snap       *DatasetSnapshot
	schema     models.DatasetSchema
	norm       normalizer.Result
	resolution *models.ResolutionResult
	plan       models.Plan
	route      router.Route
	answer     *models.Answer
}

func (s *answerService) ResolveAndAnswer(ctx context.Context, query string, clarification *models.ClarificationContext) (*models.Answer, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return &models.Answer{Outcome: models.OutcomeClarification, Message: EmptyQueryMessage}, nil
	}

	r := &run{snap: s.datasets.Active()}
	var tags []string
	if r.snap != nil {
		tags = r.snap.Tags
		r.schema = r.snap.Schema()
	}

	r.norm = s.normalizer.Normalize(query, tags)
	r.answer = &models.Answer{Diagnostics: models.Diagnostics{
		OriginalQuery:   query,
		NormalizedQuery: r.norm.Normalized,
		Corrections:     r.norm.Corrections,
	}}

	r.resolution = s.resolver.Resolve(r.norm.Normalized, r.schema)

	req := planner.Request{
		Query:      r.norm.Normalized,
		Resolution: r.resolution,
		Columns:    r.schema.ColumnNames,
		KnownTags:  tags,
	}
	if r.snap != nil {
		req.ReferenceDate = r.snap.Version.ReferenceDate()
	}
	r.plan = s.planner.Plan(ctx, req)

	if err := s.answer(ctx, r, clarification); err != nil {
		return nil, err
	}

	s.finishDiagnostics(r)
	s.logger.Info("Answered query",
		zap.String("outcome", string(r.answer.Outcome)),
		zap.String("route", string(r.route)),
		zap.String("intent", string(r.plan.Intent)),
		zap.String("policy_action", r.answer.Diagnostics.PolicyAction),
		zap.String("dataset_version_id", r.answer.Diagnostics.DatasetVersionID.String()),
		zap.Int("rows_fetched", r.answer.Diagnostics.RowsFetched),
		zap.Bool("cache_hit", r.answer.Diagnostics.CacheHit),
		zap.Bool("chart", r.answer.Chart != nil),
		zap.Duration("elapsed", time.Since(start)))
	return r.answer, nil
}

// answer runs policy onwards and fills r.answer. Control only moves forward;
// each early return is one outcome.
func (s *answerService) answer(ctx context.Context, r *run, clarification *models.ClarificationContext) error {
	decision := s.guard.Evaluate(ctx, policy.Input{
		Query:     r.norm.Normalized,
		Plan:      r.plan,
		Filters:   r.resolution.Filters,
		Confirmed: confirmed(clarification, r.answer.Diagnostics.OriginalQuery, r.norm.Normalized),
	})
	r.answer.Diagnostics.PolicyAction = string(decision.Action)
	r.plan = decision.Plan
	switch decision.Action {
	case policy.ActionBlock:
		s.finish(r, models.OutcomeBlocked, decision.Message)
		return nil
	case policy.ActionClarify:
		s.finish(r, models.OutcomeClarification, decision.Message)
		r.answer.Diagnostics.IsClarification = true
		return nil
	}
	var prefix string
	if decision.Action == policy.ActionReframe {
		prefix = decision.Message
	}

	r.route = router.Classify(r.plan, r.norm.Normalized)
	if r.snap == nil {
		msg := NoDatasetMessage
		if r.route == router.RouteSchema {
			msg = router.SchemaAnswer(r.norm.Normalized, nil)
		}
		s.finish(r, models.OutcomeNoDataset, msg)
		return nil
	}
	if r.route == router.RouteSchema {
		s.finish(r, models.OutcomeSchema, router.SchemaAnswer(r.norm.Normalized, r.snap.Version))
		return nil
	}
	if r.route == router.RouteVague {
		r.plan = router.ApplyDefaults(r.plan, s.resolver, r.schema)
	}

	if ok := s.checkResolution(r); !ok {
		return nil
	}
	if ok := s.resolveMetric(r); !ok {
		return nil
	}
	if r.plan.Intent == models.IntentBreakdown && len(r.plan.GroupBy) == 0 {
		s.finish(r, models.OutcomeClarification, groupByQuestion(r.snap.Version))
		r.answer.Diagnostics.IsClarification = true
		return nil
	}

	version, err := s.bind(ctx, r)
	if err != nil {
		return err
	}
	if version == nil {
		return nil
	}

	fetched, err := s.agent.Fetch(ctx, dataagent.Request{
		Query:   r.norm.Normalized,
		Plan:    r.plan,
		Filters: r.resolution.Filters,
		Explain: r.route == router.RouteExplanation,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch scope: %w", err)
	}
	d := &r.answer.Diagnostics
	d.RowsFetched = fetched.RowsFetched
	d.CacheHit = fetched.CacheHit
	d.Truncated = fetched.Truncated
	d.SearchedScope = fetched.SearchedScope
	d.ScopeViolation = fetched.ScopeViolation

	if fetched.ScopeViolation {
		s.finish(r, models.OutcomeScopeViolation, ScopeViolationMessage)
		return nil
	}
	if fetched.Empty() {
		nearby, err := s.agent.NearbyDates(ctx, r.plan)
		if err != nil {
			s.logger.Warn("Failed to look up nearby dates", zap.Error(err))
		}
		d.NearbyDates = nearby
		s.finish(r, models.OutcomeNoData, responder.NoDataMessage(r.plan, nearby))
		return nil
	}

	result, err := s.analyst.Analyze(s.analysisRequest(r.plan), fetched.Aggregates, fetched.Rows)
	if err != nil {
		return fmt.Errorf("failed to analyze scope: %w", err)
	}
	presented := analyst.Present(result)

	decided := chart.Decide(r.plan, presented)
	r.answer.Chart = decided.Chart
	r.answer.Table = decided.Table
	if !decided.Approved() {
		d.ChartFallbackReason = decided.Reason
	}
	if r.plan.Intent == models.IntentSummarize {
		sample, err := s.sampleTable(ctx, version)
		if err != nil {
			return err
		}
		r.answer.Table = sample
	}
	r.answer.Table = capTable(r.answer.Table, s.cfg.TableRowLimit)

	related := make([]string, 0, len(fetched.Context))
	for _, m := range fetched.Context {
		related = append(related, m.Document)
	}
	d.RetrievedContext = related

	phrased := s.responder.Phrase(ctx, responder.Input{
		Question: r.answer.Diagnostics.OriginalQuery,
		Plan:     r.plan,
		Result:   result,
		Prefix:   prefix,
		Related:  related,
	})
	d.PhrasingSource = phrased.Source
	r.answer.Result = presented
	s.finish(r, models.OutcomeAnswered, phrased.Message)
	return nil
}

// confirmed reports whether the clarification context confirms this very
// query. A confirmation never carries over to a different question.
func confirmed(c *models.ClarificationContext, original, normalized string) bool {
	if c == nil || !c.Confirmed {
		return false
	}
	prev := strings.ToLower(strings.TrimSpace(c.OriginalQuery))
	return prev == strings.ToLower(original) || prev == strings.ToLower(normalized)
}

// checkResolution turns unresolved and ambiguous concepts into their
// explicit outcomes. Unresolved wins because no choice of column can fix it.
func (s *answerService) checkResolution(r *run) bool {
	if !resolver.NeedsClarification(r.resolution) {
		return true
	}
	msg := resolver.ClarificationMessage(r.resolution, r.snap.Version.OriginalColumnNames)
	if len(r.resolution.Unresolved) > 0 {
		s.finish(r, models.OutcomeUnresolvedColumn, msg)
	} else {
		s.finish(r, models.OutcomeAmbiguousColumn, msg)
		r.answer.Diagnostics.IsClarification = true
	}
	return false
}

// resolveMetric fills the metric column. A named metric must resolve to its
// own column; with none named, the default order picks one the schema
// supports.
func (s *answerService) resolveMetric(r *run) bool {
	if r.plan.MetricColumn != "" {
		return true
	}
	if r.plan.Metric == "" {
		concept, col, ok := s.resolver.DefaultMetric(r.schema)
		if !ok {
			s.finish(r, models.OutcomeUnresolvedColumn, fmt.Sprintf(
				"No amount column was found in the active dataset. Available columns: %s.",
				columnList(r.snap.Version)))
			return false
		}
		r.plan = r.plan.WithMetric(concept, col)
		return true
	}
	col, err := resolver.MetricColumn(r.resolution, r.plan.Metric)
	if err != nil {
		s.finish(r, models.OutcomeUnresolvedColumn, fmt.Sprintf(
			"No column found for %s in the active dataset. Available columns: %s.",
			policy.DisplayMetric(r.plan.Metric), columnList(r.snap.Version)))
		return false
	}
	r.plan = r.plan.WithMetric(r.plan.Metric, col)
	return true
}

// bind attaches exactly one dataset version to the plan. Event-date plans
// read the active version. Upload-date plans read the newest version
// uploaded in their range, falling back to the active one, which then has
// no rows in that range. A nil version with a nil error means r.answer is
// already final.
func (s *answerService) bind(ctx context.Context, r *run) (*models.DatasetVersion, error) {
	version := r.snap.Version
	if r.plan.DateFilterType == models.DateFilterUpload && !r.plan.DateRange.IsZero() {
		v, err := s.datasets.VersionUploadedIn(ctx, r.plan.DateRange)
		switch {
		case err == nil:
			version = v
		case errors.Is(err, apperrors.ErrNotFound):
		default:
			return nil, err
		}
	}

	if version.ID != r.snap.Version.ID {
		missing := missingColumns(version, append([]string{r.plan.MetricColumn}, r.plan.GroupBy...))
		if len(missing) > 0 {
			s.finish(r, models.OutcomeUnresolvedColumn, fmt.Sprintf(
				"The file uploaded %s has no column %s. Available columns: %s.",
				version.CreatedAt.Format(models.DateLayout), strings.Join(missing, ", "), columnList(version)))
			return nil, nil
		}
	}

	r.plan = r.plan.BindTo(version.ID)
	return version, nil
}

func (s *answerService) analysisRequest(plan models.Plan) analyst.Request {
	req := analyst.Request{
		Intent:        plan.Intent,
		Metric:        plan.Metric,
		MetricColumn:  plan.MetricColumn,
		FilterType:    plan.DateFilterType,
		Range:         plan.DateRange,
		CompareRanges: plan.CompareRanges,
	}
	if len(plan.GroupBy) > 0 {
		req.GroupBy = plan.GroupBy[0]
	}
	return req
}

// sampleTable is the leading rows of a version, for summaries.
func (s *answerService) sampleTable(ctx context.Context, version *models.DatasetVersion) (*models.TablePayload, error) {
	rows, _, err := s.datasets.Rows(ctx, version.ID, s.cfg.TableRowLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read sample rows: %w", err)
	}
	return RowsTable(version, rows), nil
}

func (s *answerService) finish(r *run, outcome models.Outcome, message string) {
	r.answer.Outcome = outcome
	r.answer.Message = message
}

func (s *answerService) finishDiagnostics(r *run) {
	d := &r.answer.Diagnostics
	d.Route = string(r.route)
	d.PlanSource = r.plan.Source
	d.Intent = r.plan.Intent
	d.Confidence = r.plan.Confidence
	d.DatasetVersionID = r.plan.DatasetVersionID
	if r.snap != nil && !r.plan.IsBound() {
		d.DatasetVersionID = r.snap.Version.ID
	}
	d.Metric = r.plan.Metric
	d.MetricColumn = r.plan.MetricColumn
	if r.plan.HasDates() {
		d.DateRange = r.plan.DateRange.String()
	}
	d.DateFilterType = r.plan.DateFilterType
	d.Tag = r.plan.Tag
	d.Resolution = r.resolution
}

// RowsTable renders rows under the version's original headers.
func RowsTable(version *models.DatasetVersion, rows []models.RowRecord) *models.TablePayload {
	headers := version.OriginalColumnNames
	if len(headers) != len(version.ColumnNames) {
		headers = version.ColumnNames
	}
	t := &models.TablePayload{Columns: append([]string(nil), headers...), Rows: make([][]string, 0, len(rows))}
	for i := range rows {
		line := make([]string, len(version.ColumnNames))
		for j, col := range version.ColumnNames {
			if v := rows[i].Field(col); v != nil {
				line[j] = fmt.Sprint(v)
			}
		}
		t.Rows = append(t.Rows, line)
	}
	return t
}

func capTable(t *models.TablePayload, limit int) *models.TablePayload {
	if t == nil || len(t.Rows) <= limit {
		return t
	}
	out := *t
	out.Rows = t.Rows[:limit]
	return &out
}

func groupByQuestion(v *models.DatasetVersion) string {
	return fmt.Sprintf("Which column should the breakdown group by? Available columns: %s.", columnList(v))
}

func columnList(v *models.DatasetVersion) string {
	cols := v.OriginalColumnNames
	if len(cols) == 0 {
		cols = v.ColumnNames
	}
	if len(cols) == 0 {
		return "none"
	}
	return strings.Join(cols, ", ")
}

func missingColumns(v *models.DatasetVersion, cols []string) []string {
	var missing []string
	for _, c := range cols {
		if c != "" && !slices.Contains(v.ColumnNames, c) {
			missing = append(missing, c)
		}
	}
	return missing
}
