package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vigil/internal/ir"
)

func chainModel() *Handle {
	return &Handle{
		ModelID: "m1",
		Statements: []Assertion{
			assertion("Activation", "A", "B"),
			assertion("Phosphorylation", "A", "C"),
			assertion("Activation", "C", "B"),
			assertion("Inhibition", "B", "D"),
		},
	}
}

func evaluate(t *testing.T, e Evaluator, q ir.Query, h *Handle) map[string]ir.Payload {
	t.Helper()
	results, err := e.Evaluate(context.Background(), q, h)
	require.NoError(t, err)
	out := make(map[string]ir.Payload)
	for _, r := range results {
		out[r.CheckerType] = r.Payload
	}
	return out
}

func TestEvaluate_Direct(t *testing.T) {
	got := evaluate(t, Evaluator{}, ir.NewPathQuery("Activation", ent("A"), ent("B")), chainModel())

	direct := got[CheckerDirect]
	require.Len(t, direct, 1)
	for _, ev := range direct {
		assert.Equal(t, []ir.Evidence{{Sentence: "Activation(A(), B())."}}, ev)
	}
}

func TestEvaluate_DirectWrongType(t *testing.T) {
	got := evaluate(t, Evaluator{}, ir.NewPathQuery("Inhibition", ent("A"), ent("B")), chainModel())
	assert.Empty(t, got[CheckerDirect])
	// The graph checker ignores statement type.
	assert.NotEmpty(t, got[CheckerUnsignedGraph])
}

func TestEvaluate_UnsignedGraphPaths(t *testing.T) {
	got := evaluate(t, Evaluator{}, ir.NewPathQuery("Activation", ent("A"), ent("B")), chainModel())

	graph := got[CheckerUnsignedGraph]
	require.Len(t, graph, 2)

	lengths := map[int]bool{}
	for _, ev := range graph {
		lengths[len(ev)] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true}, lengths)
}

func TestEvaluate_ExcludeEntity(t *testing.T) {
	q := ir.NewPathQuery("Activation", ent("A"), ent("B"))
	q.Entities.Exclude = []ir.Entity{ent("C")}

	graph := evaluate(t, Evaluator{}, q, chainModel())[CheckerUnsignedGraph]
	require.Len(t, graph, 1)
	for _, ev := range graph {
		assert.Len(t, ev, 1)
	}
}

func TestEvaluate_IncludeEntity(t *testing.T) {
	q := ir.NewPathQuery("Activation", ent("A"), ent("B"))
	q.Entities.Include = []ir.Entity{ent("C")}

	graph := evaluate(t, Evaluator{}, q, chainModel())[CheckerUnsignedGraph]
	require.Len(t, graph, 1)
	for _, ev := range graph {
		assert.Len(t, ev, 2)
	}
}

func TestEvaluate_ExcludeRelation(t *testing.T) {
	q := ir.NewPathQuery("Activation", ent("A"), ent("B"))
	q.Relations.Exclude = []string{"Phosphorylation"}

	graph := evaluate(t, Evaluator{}, q, chainModel())[CheckerUnsignedGraph]
	assert.Len(t, graph, 1)
}

func TestEvaluate_PathLengthBound(t *testing.T) {
	q := ir.NewPathQuery("Inhibition", ent("A"), ent("D"))

	assert.Len(t, evaluate(t, Evaluator{MaxPathLength: 1}, q, chainModel())[CheckerUnsignedGraph], 0)
	assert.Len(t, evaluate(t, Evaluator{MaxPathLength: 2}, q, chainModel())[CheckerUnsignedGraph], 1)
	assert.Len(t, evaluate(t, Evaluator{MaxPathLength: 3}, q, chainModel())[CheckerUnsignedGraph], 2)
	assert.Len(t, evaluate(t, Evaluator{MaxPathLength: 3, MaxPaths: 1}, q, chainModel())[CheckerUnsignedGraph], 1)
}

func TestEvaluate_Deterministic(t *testing.T) {
	q := ir.NewPathQuery("Inhibition", ent("A"), ent("D"))
	first := evaluate(t, Evaluator{}, q, chainModel())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, evaluate(t, Evaluator{}, q, chainModel()))
	}
}

func TestEvaluate_Errors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Evaluator{}.Evaluate(ctx, ir.NewPathQuery("Activation", ent("A"), ent("B")), chainModel())
	assert.ErrorIs(t, err, context.Canceled)

	_, err = Evaluator{}.Evaluate(context.Background(), ir.NewPathQuery("Activation", ent("A"), ent("B")), nil)
	assert.Error(t, err)

	_, err = Evaluator{}.Evaluate(context.Background(), ir.Query{Kind: "other"}, chainModel())
	assert.Error(t, err)
}
