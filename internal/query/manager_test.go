package query

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vigil/internal/delta"
	"github.com/roach88/vigil/internal/grounding"
	"github.com/roach88/vigil/internal/ir"
	"github.com/roach88/vigil/internal/model"
	"github.com/roach88/vigil/internal/modelcache"
	"github.com/roach88/vigil/internal/store"
	"github.com/roach88/vigil/internal/testutil"
)

var (
	entA = ir.Entity{Name: "A", DBRefs: map[string]string{"HGNC": "1"}}
	entB = ir.Entity{Name: "B", DBRefs: map[string]string{"HGNC": "2"}}
	entC = ir.Entity{Name: "C", DBRefs: map[string]string{"HGNC": "3"}}

	alice = store.User{ID: 1, Email: "alice@example.org"}
)

func activationAB() ir.Query {
	return ir.NewPathQuery("Activation", entA, entB)
}

func m1Handle() *model.Handle {
	return &model.Handle{
		ModelID: "m1",
		Version: "v1",
		Statements: []model.Assertion{
			{
				Statement: ir.Statement{Type: "Activation", Subject: entA, Object: entB},
				Sentence:  "A activates B.",
				Link:      "https://example.org/1",
			},
			{
				Statement: ir.Statement{Type: "Phosphorylation", Subject: entB, Object: entC},
				Sentence:  "B phosphorylates C.",
			},
		},
	}
}

type fixture struct {
	store *store.Store
	arts  *testutil.MemoryArtifacts
	cache *modelcache.Cache
	eval  *testutil.CountingEvaluator
	clock *testutil.DeterministicClock
	mgr   *Manager
}

// hasResults reports whether any result is stored for q on modelID.
func (f *fixture) hasResults(t *testing.T, modelID string, q ir.Query) bool {
	t.Helper()
	h, err := q.HashWithModel(modelID)
	require.NoError(t, err)
	latest, err := f.store.Resolve(context.Background(), []ir.QueryHash{h}, 1)
	require.NoError(t, err)
	return len(latest) > 0
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := testutil.NewDeterministicClock()
	st, err := store.Open(filepath.Join(t.TempDir(), "vigil.db"), store.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	arts := testutil.NewMemoryArtifacts()
	require.NoError(t, arts.PutHandle(m1Handle()))

	f := &fixture{
		store: st,
		arts:  arts,
		cache: modelcache.New(arts),
		eval:  testutil.NewCountingEvaluator(),
		clock: clock,
	}
	base := []Option{
		WithClock(clock),
		WithRunIDs(testutil.NewFixedRunIDGenerator("run-1")),
		WithGrounder(grounding.NewTable(entA, entB, entC)),
	}
	f.mgr, err = NewManager(st, f.cache, f.eval, append(base, opts...)...)
	require.NoError(t, err)
	return f
}

func TestAnswerImmediateEvaluatesOnceThenReusesSaved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.mgr.AnswerImmediate(ctx, alice, activationAB(), []string{"m1"}, true)
	require.NoError(t, err)
	assert.Empty(t, first.Unavailable)
	require.Len(t, first.Results, 2)
	assert.Equal(t, 1, f.eval.Calls("m1"))

	direct := first.Results[0]
	assert.Equal(t, "m1", direct.Model)
	assert.Equal(t, model.CheckerDirect, direct.CheckerType)
	assert.Equal(t, ir.Selection{Type: "Activation", Subject: "A", Object: "B"}, direct.Query)
	assert.Equal(t, delta.First, direct.Delta)
	assert.Equal(t,
		`<a href="https://example.org/1" target="_blank" class="status-link">A activates B.</a>`,
		direct.RenderedAnswer)

	assert.True(t, f.hasResults(t, "m1", activationAB()))

	second, err := f.mgr.AnswerImmediate(ctx, alice, activationAB(), []string{"m1"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.eval.Calls("m1"), "saved answer must not be re-evaluated")
	require.Len(t, second.Results, 2)
	for i, r := range second.Results {
		assert.Equal(t, first.Results[i].CheckerType, r.CheckerType)
		assert.Equal(t, first.Results[i].RenderedAnswer, r.RenderedAnswer)
		assert.Zero(t, r.Delta)
	}
}

func TestAnswerImmediateWithoutSubscribeDoesNotPersist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.AnswerImmediate(ctx, alice, activationAB(), []string{"m1"}, false)
	require.NoError(t, err)
	assert.False(t, f.hasResults(t, "m1", activationAB()))

	_, err = f.mgr.AnswerImmediate(ctx, alice, activationAB(), []string{"m1"}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.eval.Calls("m1"))
}

func TestAnswerImmediateReportsUnavailableModel(t *testing.T) {
	f := newFixture(t)

	ans, err := f.mgr.AnswerImmediate(context.Background(), alice, activationAB(), []string{"m1", "ghost"}, true)
	require.NoError(t, err)

	require.Len(t, ans.Unavailable, 1)
	assert.Equal(t, "ghost", ans.Unavailable[0].Model)
	assert.False(t, ans.Unavailable[0].Transient)
	for _, r := range ans.Results {
		assert.Equal(t, "m1", r.Model)
	}

	assert.False(t, f.hasResults(t, "ghost", activationAB()))
}

func TestAnswerImmediateRejectsEmptyModelSet(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.AnswerImmediate(context.Background(), alice, activationAB(), nil, true)
	require.Error(t, err)
	assert.True(t, store.IsInvalidInput(err))
	assert.Zero(t, f.eval.TotalCalls())
}

func TestAnswerImmediateSavedTimestamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.AnswerImmediate(ctx, alice, activationAB(), []string{"m1"}, true)
	require.NoError(t, err)

	saved, err := f.mgr.AnswerImmediate(ctx, alice, activationAB(), []string{"m1"}, true)
	require.NoError(t, err)
	require.NotEmpty(t, saved.Results)

	latest, err := f.store.Resolve(ctx, []ir.QueryHash{mustHash(t, activationAB(), "m1")}, 1)
	require.NoError(t, err)
	require.NotEmpty(t, latest)
	assert.Equal(t, latest[0].CreatedAt.Format(TimestampLayout), saved.Results[0].Timestamp)
}

func TestSweepWithoutQueriesSkipsModelLoad(t *testing.T) {
	f := newFixture(t)

	sum, err := f.mgr.Sweep(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", sum.RunID)
	assert.Zero(t, sum.Queries)
	assert.Zero(t, f.arts.Fetches("results/m1/latest_model_manager"))
}

func TestSweepClassifiesAgainstPreviousResult(t *testing.T) {
	f := newFixture(t, WithFindDelta(true))
	ctx := context.Background()
	require.NoError(t, f.store.Register(ctx, activationAB(), []string{"m1"}, alice, true))

	sum, err := f.mgr.Sweep(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Queries)
	assert.Equal(t, 1, sum.Evaluated)
	assert.Equal(t, 2, sum.Appended)
	require.Len(t, sum.Reports, 2)
	for _, r := range sum.Reports {
		assert.Equal(t, delta.First, r.Kind, r.CheckerType)
	}

	sum, err = f.mgr.Sweep(ctx, "m1")
	require.NoError(t, err)
	for _, r := range sum.Reports {
		assert.Equal(t, delta.Unchanged, r.Kind, r.CheckerType)
	}

	// A new path A -> C -> B changes the graph answer but not the direct one.
	h := m1Handle()
	h.Version = "v2"
	h.Statements = append(h.Statements,
		model.Assertion{Statement: ir.Statement{Type: "Activation", Subject: entA, Object: entC}},
		model.Assertion{Statement: ir.Statement{Type: "Inhibition", Subject: entC, Object: entB}},
	)
	require.NoError(t, f.arts.PutHandle(h))
	f.cache.Evict("m1")

	sum, err = f.mgr.Sweep(ctx, "m1")
	require.NoError(t, err)
	kinds := map[string]delta.Kind{}
	for _, r := range sum.Reports {
		kinds[r.CheckerType] = r.Kind
	}
	assert.Equal(t, delta.Unchanged, kinds[model.CheckerDirect])
	assert.Equal(t, delta.Changed, kinds[model.CheckerUnsignedGraph])
}

func TestSweepIsolatesFailedEvaluations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bad := ir.NewPathQuery("Inhibition", entA, entC)
	require.NoError(t, f.store.Register(ctx, activationAB(), []string{"m1"}, alice, true))
	require.NoError(t, f.store.Register(ctx, bad, []string{"m1"}, alice, true))
	f.eval.FailOn[bad.String()] = errors.New("checker crashed")

	sum, err := f.mgr.Sweep(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Queries)
	assert.Equal(t, 1, sum.Evaluated)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 2, sum.Appended)
	assert.Nil(t, sum.Reports)

	assert.True(t, f.hasResults(t, "m1", activationAB()))
	assert.False(t, f.hasResults(t, "m1", bad))
}

func TestSweepFailsWhenModelUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Register(ctx, activationAB(), []string{"ghost"}, alice, true))

	_, err := f.mgr.Sweep(ctx, "ghost")
	require.Error(t, err)
	var le *modelcache.LoadError
	assert.ErrorAs(t, err, &le)
}

func TestRegisteredResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.AnswerImmediate(ctx, alice, activationAB(), []string{"m1"}, true)
	require.NoError(t, err)

	results, err := f.mgr.RegisteredResults(ctx, alice.Email)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "m1", results[0].Model)

	none, err := f.mgr.RegisteredResults(ctx, "nobody@example.org")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQueryReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, ok, err := f.mgr.QueryReport(ctx, "m1", activationAB(), delta.Text)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.mgr.AnswerImmediate(ctx, alice, activationAB(), []string{"m1"}, true)
	require.NoError(t, err)

	report, ok, err := f.mgr.QueryReport(ctx, "m1", activationAB(), delta.Text)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, report,
		"\nThis is the first result to query PathPropertyQuery(stmt=Activation(A(), B())). in m1 with direct model checker.\nThe result is:\nA activates B.")

	doc, err := f.mgr.UserReport(ctx, alice.Email, delta.HTML)
	require.NoError(t, err)
	assert.Contains(t, doc, "<html><body><p>This is the first result to query")
}

func TestBuildQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.mgr.BuildQuery(ctx, ir.Selection{Type: "Activation", Subject: "a", Object: "B"})
	require.NoError(t, err)
	assert.Equal(t, activationAB(), q)

	_, err = f.mgr.BuildQuery(ctx, ir.Selection{Type: "Activation", Subject: "A", Object: "ZZZ"})
	require.Error(t, err)
	assert.True(t, IsInvalidInput(err))

	_, err = f.mgr.BuildQuery(ctx, ir.Selection{Type: "Complex", Subject: "A", Object: "B"})
	assert.True(t, IsInvalidInput(err))
}

func mustHash(t *testing.T, q ir.Query, modelID string) ir.QueryHash {
	t.Helper()
	h, err := q.HashWithModel(modelID)
	require.NoError(t, err)
	return h
}
