package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/vigil/internal/artifact"
	"github.com/roach88/vigil/internal/ir"
	"github.com/roach88/vigil/internal/store"
	"github.com/roach88/vigil/internal/testutil"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Seq, event.Step, event.Data)
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the stack after the flow.
type AssertionContext struct {
	Ctx       context.Context
	Store     *store.Store
	Artifacts *testutil.MemoryArtifacts
	Evaluator *testutil.CountingEvaluator
}

// EvaluateAssertions runs every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var msgs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result.Trace, a, actx); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func evaluateAssertion(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertEvaluations:
		return expectCount(a, actx.Evaluator.Calls(a.Model), trace)
	case AssertFetches:
		return expectCount(a, actx.Artifacts.Fetches(artifact.ModelKey(a.Model)), trace)
	case AssertStepCount:
		n := 0
		for _, ev := range trace {
			if ev.Step == a.Step {
				n++
			}
		}
		return expectCount(a, n, trace)
	case AssertResultRows:
		n, err := resultRows(actx, a.Model, *a.Query)
		if err != nil {
			return err
		}
		return expectCount(a, n, nil)
	case AssertSubscribers:
		return assertSubscribers(actx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func expectCount(a Assertion, got int, trace []TraceEvent) error {
	if got == a.Count {
		return nil
	}
	subject := a.Model
	if a.Type == AssertStepCount {
		subject = a.Step
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d for %s", a.Count, subject),
		Actual:   fmt.Sprintf("%d", got),
		Trace:    trace,
	}
}

// queryFor finds the query registered on modelID whose display form is sel.
func queryFor(actx *AssertionContext, modelID string, sel ir.Selection) (ir.Query, bool, error) {
	queries, err := actx.Store.QueriesForModel(actx.Ctx, modelID)
	if err != nil {
		return ir.Query{}, false, err
	}
	for _, q := range queries {
		if q.Selection() == sel {
			return q, true, nil
		}
	}
	return ir.Query{}, false, nil
}

func resultRows(actx *AssertionContext, modelID string, sel ir.Selection) (int, error) {
	q, ok, err := queryFor(actx, modelID, sel)
	if err != nil || !ok {
		return 0, err
	}
	h, err := q.HashWithModel(modelID)
	if err != nil {
		return 0, err
	}
	var n int
	err = actx.Store.DB().QueryRowContext(actx.Ctx,
		`SELECT COUNT(*) FROM results WHERE query_hash = ?`, int64(h)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}

func assertSubscribers(actx *AssertionContext, a Assertion) error {
	var users []string
	q, ok, err := queryFor(actx, a.Model, *a.Query)
	if err != nil {
		return err
	}
	if ok {
		if users, err = actx.Store.SubscribedUsers(actx.Ctx, a.Model, q); err != nil {
			return err
		}
	}
	want := slices.Clone(a.Users)
	slices.Sort(want)
	if slices.Equal(users, want) || (len(users) == 0 && len(want) == 0) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%v", want),
		Actual:   fmt.Sprintf("%v", users),
	}
}
