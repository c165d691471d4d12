package testutil

import (
	"context"
	"sync"

	"github.com/roach88/vigil/internal/ir"
	"github.com/roach88/vigil/internal/model"
)

// CountingEvaluator wraps model.Evaluator and records every call.
// Queries listed in FailOn (by String()) return the mapped error instead.
//
// Thread-safety: All methods are safe for concurrent use.
type CountingEvaluator struct {
	Inner  model.Evaluator
	FailOn map[string]error

	mu    sync.Mutex
	calls map[string]int
}

// NewCountingEvaluator creates an evaluator with default bounds.
func NewCountingEvaluator() *CountingEvaluator {
	return &CountingEvaluator{
		FailOn: make(map[string]error),
		calls:  make(map[string]int),
	}
}

// Evaluate records the call and delegates to Inner.
func (e *CountingEvaluator) Evaluate(ctx context.Context, q ir.Query, h *model.Handle) ([]ir.CheckerResult, error) {
	e.mu.Lock()
	if e.calls == nil {
		e.calls = make(map[string]int)
	}
	if h != nil {
		e.calls[h.ModelID]++
	}
	err := e.FailOn[q.String()]
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return e.Inner.Evaluate(ctx, q, h)
}

// Calls returns the number of evaluations against modelID.
func (e *CountingEvaluator) Calls(modelID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[modelID]
}

// TotalCalls returns the number of evaluations against all models.
func (e *CountingEvaluator) TotalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		n += c
	}
	return n
}
