package query

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/vigil/internal/delta"
	"github.com/roach88/vigil/internal/grounding"
	"github.com/roach88/vigil/internal/ir"
	"github.com/roach88/vigil/internal/model"
	"github.com/roach88/vigil/internal/modelcache"
	"github.com/roach88/vigil/internal/store"
)

// TimestampLayout formats result timestamps in answers.
const TimestampLayout = "2006-01-02-15-04-05"

const defaultParallelism = 4

// Ledger is the persistence the Manager needs. *store.Store implements it.
type Ledger interface {
	delta.Resolver
	Register(ctx context.Context, q ir.Query, modelIDs []string, user store.User, subscribe bool) error
	AppendBatch(ctx context.Context, entries []store.Entry) error
	QueriesForModel(ctx context.Context, modelID string) ([]ir.Query, error)
	ResultsForUser(ctx context.Context, email string, order int) ([]store.Result, error)
}

// Handles provides loaded model handles. *modelcache.Cache implements it.
type Handles interface {
	Get(ctx context.Context, modelID string) (*model.Handle, error)
}

// Evaluator answers one query against one model handle, producing one
// result per checker type.
type Evaluator interface {
	Evaluate(ctx context.Context, q ir.Query, h *model.Handle) ([]ir.CheckerResult, error)
}

// RunIDGenerator produces sweep run ids.
type RunIDGenerator interface {
	NewRunID() string
}

type uuidRunIDs struct{}

func (uuidRunIDs) NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Option configures a Manager.
type Option func(*Manager)

// WithGrounder sets the grounder used by BuildQuery. Without one, names
// become ungrounded text entities.
func WithGrounder(g grounding.Grounder) Option {
	return func(m *Manager) { m.grounder = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock sets the clock stamping newly evaluated answers.
func WithClock(c store.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithRunIDs overrides the UUIDv7 sweep run id generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(m *Manager) { m.runIDs = g }
}

// WithFindDelta makes sweeps classify and log every fresh result.
func WithFindDelta(on bool) Option {
	return func(m *Manager) { m.findDelta = on }
}

// WithParallelism bounds concurrent model evaluations per immediate query.
func WithParallelism(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.parallelism = n
		}
	}
}

// Manager orchestrates registration, evaluation and persistence of queries.
// Safe for concurrent use.
type Manager struct {
	ledger      Ledger
	handles     Handles
	eval        Evaluator
	grounder    grounding.Grounder
	validator   *Validator
	logger      *slog.Logger
	clock       store.Clock
	runIDs      RunIDGenerator
	findDelta   bool
	parallelism int
}

// NewManager creates a Manager.
func NewManager(ledger Ledger, handles Handles, eval Evaluator, opts ...Option) (*Manager, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		ledger:      ledger,
		handles:     handles,
		eval:        eval,
		validator:   v,
		logger:      slog.Default(),
		clock:       wallClock{},
		runIDs:      uuidRunIDs{},
		parallelism: defaultParallelism,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// FormattedResult is one answer as shown to users.
type FormattedResult struct {
	Model          string       `json:"model"`
	Query          ir.Selection `json:"query"`
	CheckerType    string       `json:"checker_type"`
	RenderedAnswer string       `json:"rendered_answer"`
	Timestamp      string       `json:"timestamp"`
	// Delta is set only for answers evaluated by this request.
	Delta delta.Kind `json:"delta,omitempty"`
}

// Unavailable explains why a model produced no answer.
type Unavailable struct {
	Model     string `json:"model"`
	Reason    string `json:"reason"`
	Transient bool   `json:"transient"`
}

// Answer is the outcome of an immediate query.
type Answer struct {
	Results     []FormattedResult `json:"result"`
	Unavailable []Unavailable     `json:"unavailable,omitempty"`
}

func format(modelID string, q ir.Query, checker string, payload ir.Payload, at time.Time) FormattedResult {
	return FormattedResult{
		Model:          modelID,
		Query:          q.Selection(),
		CheckerType:    checker,
		RenderedAnswer: delta.PayloadHTML(payload),
		Timestamp:      at.UTC().Format(TimestampLayout),
	}
}

func formatResults(results []store.Result) []FormattedResult {
	out := make([]FormattedResult, len(results))
	for i, r := range results {
		out[i] = format(r.ModelID, r.Query, r.CheckerType, r.Payload, r.CreatedAt)
	}
	return out
}

type evaluation struct {
	modelID string
	results []ir.CheckerResult
	err     error
}

// AnswerImmediate registers q for user against modelIDs and answers it.
//
// Models that already have a saved answer return it without evaluating.
// The rest are evaluated against their handles; their results are persisted
// only when subscribe is set. A model whose handle cannot be loaded or whose
// evaluation fails is reported in Unavailable and gets no result.
func (m *Manager) AnswerImmediate(ctx context.Context, user store.User, q ir.Query, modelIDs []string, subscribe bool) (Answer, error) {
	if err := m.ledger.Register(ctx, q, modelIDs, user, subscribe); err != nil {
		return Answer{}, err
	}
	models := dedupe(modelIDs)

	hashes := make([]ir.QueryHash, len(models))
	for i, id := range models {
		h, err := q.HashWithModel(id)
		if err != nil {
			return Answer{}, fmt.Errorf("answer: %w", err)
		}
		hashes[i] = h
	}

	saved, err := m.ledger.Resolve(ctx, hashes, 1)
	if err != nil {
		return Answer{}, fmt.Errorf("answer: %w", err)
	}
	answered := make(map[string]bool)
	for _, r := range saved {
		answered[r.ModelID] = true
	}
	answer := Answer{Results: formatResults(saved)}
	answers.WithLabelValues("saved").Add(float64(len(answered)))

	var pending []string
	for _, id := range models {
		if !answered[id] {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return answer, nil
	}

	evals := make([]evaluation, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)
	for i, id := range pending {
		i, id := i, id
		g.Go(func() error {
			evals[i] = m.evaluate(gctx, id, q)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}

	now := m.clock.Now()
	var entries []store.Entry
	for _, ev := range evals {
		if ev.err != nil {
			m.logger.Warn("model unavailable for query", "model", ev.modelID, "query", q.String(), "error", ev.err)
			answer.Unavailable = append(answer.Unavailable, Unavailable{
				Model:     ev.modelID,
				Reason:    ev.err.Error(),
				Transient: modelcache.IsTransient(ev.err),
			})
			answers.WithLabelValues("unavailable").Inc()
			continue
		}
		answers.WithLabelValues("evaluated").Inc()
		for _, cr := range ev.results {
			fr := format(ev.modelID, q, cr.CheckerType, cr.Payload, now)
			fr.Delta = delta.Classify(cr.Payload, nil, false)
			answer.Results = append(answer.Results, fr)
			entries = append(entries, store.Entry{
				ModelID:     ev.modelID,
				Query:       q,
				CheckerType: cr.CheckerType,
				Payload:     cr.Payload,
			})
		}
	}

	if subscribe && len(entries) > 0 {
		if err := m.ledger.AppendBatch(ctx, entries); err != nil {
			return Answer{}, fmt.Errorf("answer: %w", err)
		}
	}
	return answer, nil
}

func (m *Manager) evaluate(ctx context.Context, modelID string, q ir.Query) evaluation {
	h, err := m.handles.Get(ctx, modelID)
	if err != nil {
		return evaluation{modelID: modelID, err: err}
	}
	results, err := m.eval.Evaluate(ctx, q, h)
	if err != nil {
		return evaluation{modelID: modelID, err: fmt.Errorf("evaluate on %q: %w", modelID, err)}
	}
	return evaluation{modelID: modelID, results: results}
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// SweepSummary describes one sweep of a model.
type SweepSummary struct {
	RunID     string
	ModelID   string
	Queries   int
	Evaluated int
	Failed    int
	Appended  int
	// Reports is populated only when delta finding is on.
	Reports []delta.Report
}

// Sweep re-answers every query registered against modelID and appends the
// results. A query whose evaluation fails is logged and skipped; the others
// are still appended. With delta finding on, each fresh result is classified
// against the result before it and the report is logged.
func (m *Manager) Sweep(ctx context.Context, modelID string) (SweepSummary, error) {
	start := time.Now()
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	sum := SweepSummary{RunID: m.runIDs.NewRunID(), ModelID: modelID}
	log := m.logger.With("run_id", sum.RunID, "model", modelID)

	queries, err := m.ledger.QueriesForModel(ctx, modelID)
	if err != nil {
		return sum, fmt.Errorf("sweep %q: %w", modelID, err)
	}
	sum.Queries = len(queries)
	if len(queries) == 0 {
		log.Info("no registered queries")
		return sum, nil
	}

	h, err := m.handles.Get(ctx, modelID)
	if err != nil {
		return sum, fmt.Errorf("sweep %q: %w", modelID, err)
	}
	log.Info("sweep started", "queries", len(queries), "version", h.Version)

	var entries []store.Entry
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		results, err := m.eval.Evaluate(ctx, q, h)
		if err != nil {
			sum.Failed++
			sweepEvaluations.WithLabelValues("error").Inc()
			log.Warn("query evaluation failed", "query", q.String(), "error", err)
			continue
		}
		sum.Evaluated++
		sweepEvaluations.WithLabelValues("ok").Inc()
		for _, cr := range results {
			entries = append(entries, store.Entry{
				ModelID:     modelID,
				Query:       q,
				CheckerType: cr.CheckerType,
				Payload:     cr.Payload,
			})
		}
	}

	if len(entries) > 0 {
		if err := m.ledger.AppendBatch(ctx, entries); err != nil {
			return sum, fmt.Errorf("sweep %q: %w", modelID, err)
		}
	}
	sum.Appended = len(entries)

	if m.findDelta && len(entries) > 0 {
		batch := make([]store.Result, len(entries))
		for i, e := range entries {
			batch[i] = store.Result{
				ModelID:     e.ModelID,
				Query:       e.Query,
				CheckerType: e.CheckerType,
				Payload:     e.Payload,
			}
		}
		reports, err := delta.Build(ctx, m.ledger, batch, true)
		if err != nil {
			return sum, fmt.Errorf("sweep %q: %w", modelID, err)
		}
		for _, r := range reports {
			deltaReports.WithLabelValues(r.Kind.String()).Inc()
			log.Info("query delta", "checker_type", r.CheckerType, "kind", r.Kind.String(), "report", r.Text())
		}
		sum.Reports = reports
	}

	log.Info("sweep finished", "evaluated", sum.Evaluated, "failed", sum.Failed, "appended", sum.Appended)
	return sum, nil
}

// RegisteredResults returns the latest results of every query the user with
// this email is subscribed to.
func (m *Manager) RegisteredResults(ctx context.Context, email string) ([]FormattedResult, error) {
	results, err := m.ledger.ResultsForUser(ctx, email, 1)
	if err != nil {
		return nil, fmt.Errorf("registered results: %w", err)
	}
	return formatResults(results), nil
}

// QueryReport renders the delta report of q on modelID, comparing each
// checker type's latest result to the one before it. ok is false when no
// result is stored yet.
func (m *Manager) QueryReport(ctx context.Context, modelID string, q ir.Query, f delta.Format) (report string, ok bool, err error) {
	h, err := q.HashWithModel(modelID)
	if err != nil {
		return "", false, fmt.Errorf("query report: %w", err)
	}
	latest, err := m.ledger.Resolve(ctx, []ir.QueryHash{h}, 1)
	if err != nil {
		return "", false, fmt.Errorf("query report: %w", err)
	}
	if len(latest) == 0 {
		return "", false, nil
	}
	reports, err := delta.Build(ctx, m.ledger, latest, true)
	if err != nil {
		return "", false, fmt.Errorf("query report: %w", err)
	}
	return delta.Join(reports, f), true, nil
}

// UserReport renders delta reports over all queries the user is subscribed
// to. HTML output is a full document.
func (m *Manager) UserReport(ctx context.Context, email string, f delta.Format) (string, error) {
	latest, err := m.ledger.ResultsForUser(ctx, email, 1)
	if err != nil {
		return "", fmt.Errorf("user report: %w", err)
	}
	reports, err := delta.Build(ctx, m.ledger, latest, true)
	if err != nil {
		return "", fmt.Errorf("user report: %w", err)
	}
	return delta.Join(reports, f), nil
}
