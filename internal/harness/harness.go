package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/vigil/internal/delta"
	"github.com/roach88/vigil/internal/grounding"
	"github.com/roach88/vigil/internal/ir"
	"github.com/roach88/vigil/internal/model"
	"github.com/roach88/vigil/internal/modelcache"
	"github.com/roach88/vigil/internal/query"
	"github.com/roach88/vigil/internal/store"
	"github.com/roach88/vigil/internal/testutil"
)

// Harness holds the stack a scenario runs against.
type Harness struct {
	store   *store.Store
	arts    *testutil.MemoryArtifacts
	cache   *modelcache.Cache
	eval    *testutil.CountingEvaluator
	manager *query.Manager
}

// Run executes a scenario against a fresh in-memory stack and returns the
// result. An error means the stack could not be built; step and assertion
// failures are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Flow {
		h.executeStep(ctx, i, step, result)
	}

	actx := &AssertionContext{
		Ctx:       ctx,
		Store:     h.store,
		Artifacts: h.arts,
		Evaluator: h.eval,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	clock := testutil.NewDeterministicClock()
	st, err := store.Open(":memory:", store.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	arts := testutil.NewMemoryArtifacts()
	for i := range scenario.Models {
		if err := arts.PutHandle(&scenario.Models[i]); err != nil {
			st.Close()
			return nil, fmt.Errorf("publish %q: %w", scenario.Models[i].ModelID, err)
		}
	}
	cache := modelcache.New(arts, modelcache.WithLogger(discard))
	eval := testutil.NewCountingEvaluator()

	findDelta := true
	if scenario.FindDelta != nil {
		findDelta = *scenario.FindDelta
	}
	mgr, err := query.NewManager(st, cache, eval,
		query.WithGrounder(grounding.NewTable(scenario.Entities...)),
		query.WithClock(clock),
		query.WithRunIDs(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		query.WithFindDelta(findDelta),
		query.WithParallelism(1),
		query.WithLogger(discard),
	)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &Harness{store: st, arts: arts, cache: cache, eval: eval, manager: mgr}, nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) {
	var (
		name string
		data map[string]any
		err  error
	)
	switch {
	case step.Submit != nil:
		name = StepSubmit
		data, err = h.submit(ctx, step.Submit)
	case step.Publish != nil:
		name = StepPublish
		data, err = h.publish(step.Publish)
	case step.Sweep != "":
		name = StepSweep
		data, err = h.sweep(ctx, step.Sweep)
	case step.Report != nil:
		name = StepReport
		data, err = h.report(ctx, step.Report)
	}

	if err != nil {
		data = map[string]any{"error": errorClass(err)}
	}
	result.AddTrace(name, data)

	for _, msg := range checkExpect(step.Expect, data, err) {
		result.AddError(fmt.Sprintf("flow[%d] %s: %s", index, name, msg))
	}
}

func (h *Harness) submit(ctx context.Context, s *SubmitStep) (map[string]any, error) {
	q, err := h.manager.BuildQuery(ctx, s.Query)
	if err != nil {
		return nil, err
	}
	user := store.User{ID: s.User.ID, Email: s.User.Email}
	ans, err := h.manager.AnswerImmediate(ctx, user, q, s.Models, s.Register)
	if err != nil {
		return nil, err
	}

	answers := make([]any, len(ans.Results))
	for i, r := range ans.Results {
		kind := "SAVED"
		if r.Delta != 0 {
			kind = r.Delta.String()
		}
		answers[i] = map[string]any{
			"model":        r.Model,
			"checker_type": r.CheckerType,
			"delta":        kind,
		}
	}
	unavailable := make([]string, len(ans.Unavailable))
	for i, u := range ans.Unavailable {
		unavailable[i] = u.Model
	}
	return map[string]any{
		"query":       selectionString(s.Query),
		"models":      s.Models,
		"register":    s.Register,
		"answers":     answers,
		"unavailable": unavailable,
	}, nil
}

func (h *Harness) publish(handle *model.Handle) (map[string]any, error) {
	if err := h.arts.PutHandle(handle); err != nil {
		return nil, err
	}
	h.cache.Evict(handle.ModelID)
	return map[string]any{
		"model":      handle.ModelID,
		"version":    handle.Version,
		"statements": len(handle.Statements),
	}, nil
}

func (h *Harness) sweep(ctx context.Context, modelID string) (map[string]any, error) {
	sum, err := h.manager.Sweep(ctx, modelID)
	if err != nil {
		return nil, err
	}
	reports := make([]any, len(sum.Reports))
	for i, r := range sum.Reports {
		reports[i] = map[string]any{
			"query":        r.Query.String(),
			"checker_type": r.CheckerType,
			"kind":         r.Kind.String(),
		}
	}
	return map[string]any{
		"model":     modelID,
		"run_id":    sum.RunID,
		"queries":   sum.Queries,
		"evaluated": sum.Evaluated,
		"failed":    sum.Failed,
		"appended":  sum.Appended,
		"reports":   reports,
	}, nil
}

func (h *Harness) report(ctx context.Context, r *ReportStep) (map[string]any, error) {
	format, err := delta.ParseFormat(r.Format)
	if err != nil {
		return nil, err
	}
	q, err := h.manager.BuildQuery(ctx, r.Query)
	if err != nil {
		return nil, err
	}
	text, found, err := h.manager.QueryReport(ctx, r.Model, q, format)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"model":  r.Model,
		"query":  selectionString(r.Query),
		"found":  found,
		"report": text,
	}, nil
}

func selectionString(s ir.Selection) string {
	return fmt.Sprintf("%s(%s, %s)", s.Type, s.Subject, s.Object)
}

func errorClass(err error) string {
	var le *modelcache.LoadError
	switch {
	case query.IsInvalidInput(err), store.IsInvalidInput(err):
		return ErrorInvalidInput
	case errors.As(err, &le):
		return ErrorModelUnavailable
	default:
		return ErrorOther
	}
}

// checkExpect compares a step outcome with its expect clause and returns
// one message per mismatch.
func checkExpect(exp *Expect, data map[string]any, err error) []string {
	if exp == nil {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		return nil
	}

	if exp.Error != "" {
		if err == nil {
			return []string{fmt.Sprintf("expected %s error, step succeeded", exp.Error)}
		}
		if got := errorClass(err); got != exp.Error {
			return []string{fmt.Sprintf("expected %s error, got %s: %v", exp.Error, got, err)}
		}
		return nil
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	var msgs []string
	if exp.Answers != nil {
		if answers, _ := data["answers"].([]any); len(answers) != *exp.Answers {
			msgs = append(msgs, fmt.Sprintf("expected %d answers, got %d", *exp.Answers, len(answers)))
		}
	}
	if exp.Unavailable != nil {
		got, _ := data["unavailable"].([]string)
		if !slices.Equal(got, exp.Unavailable) {
			msgs = append(msgs, fmt.Sprintf("expected unavailable %v, got %v", exp.Unavailable, got))
		}
	}
	if len(exp.Kinds) > 0 {
		msgs = append(msgs, checkKinds(exp.Kinds, data)...)
	}
	if exp.Found != nil {
		if found, _ := data["found"].(bool); found != *exp.Found {
			msgs = append(msgs, fmt.Sprintf("expected found=%v, got %v", *exp.Found, found))
		}
	}
	if exp.Contains != "" {
		if text, _ := data["report"].(string); !strings.Contains(text, exp.Contains) {
			msgs = append(msgs, fmt.Sprintf("report does not contain %q:\n%s", exp.Contains, text))
		}
	}
	return msgs
}

// checkKinds checks every answer or report with a listed checker type.
func checkKinds(want map[string]string, data map[string]any) []string {
	items, field := data["answers"], "delta"
	if _, ok := data["reports"]; ok {
		items, field = data["reports"], "kind"
	}
	list, _ := items.([]any)

	var msgs []string
	seen := make(map[string]bool)
	for _, it := range list {
		m, _ := it.(map[string]any)
		checker, _ := m["checker_type"].(string)
		expected, ok := want[checker]
		if !ok {
			continue
		}
		seen[checker] = true
		if got, _ := m[field].(string); got != expected {
			msgs = append(msgs, fmt.Sprintf("checker %s: expected %s, got %s", checker, expected, got))
		}
	}
	for checker := range want {
		if !seen[checker] {
			msgs = append(msgs, fmt.Sprintf("checker %s: no result", checker))
		}
	}
	slices.Sort(msgs)
	return msgs
}
