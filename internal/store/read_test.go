package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vigil/internal/ir"
	"github.com/roach88/vigil/internal/testutil"
)

func payload(keys ...string) ir.Payload {
	p := ir.Payload{}
	for _, k := range keys {
		p[k] = []ir.Evidence{{Sentence: "evidence for " + k}}
	}
	return p
}

func TestResolve_ZeroOneTwoRecords(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	q := activationAB()
	h := mustHash(t, q, "m1")
	require.NoError(t, s.Register(ctx, q, []string{"m1"}, alice, true))

	// Zero records: no entry, not an error.
	got, err := s.Resolve(ctx, []ir.QueryHash{h}, 1)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	// One record: order=1 returns it, order=2 returns nothing.
	require.NoError(t, s.Append(ctx, "m1", q, "direct", payload("h1")))
	got, err = s.Resolve(ctx, []ir.QueryHash{h}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, payload("h1"), got[0].Payload)
	t1 := got[0].CreatedAt

	got, err = s.Resolve(ctx, []ir.QueryHash{h}, 2)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Two records: order=1 is the later one, order=2 the earlier.
	require.NoError(t, s.Append(ctx, "m1", q, "direct", payload("h1", "h2")))

	latest, err := s.Resolve(ctx, []ir.QueryHash{h}, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, payload("h1", "h2"), latest[0].Payload)
	assert.True(t, latest[0].CreatedAt.After(t1))

	previous, err := s.Resolve(ctx, []ir.QueryHash{h}, 2)
	require.NoError(t, err)
	require.Len(t, previous, 1)
	assert.Equal(t, payload("h1"), previous[0].Payload)
	assert.Equal(t, t1, previous[0].CreatedAt)
}

func TestResolve_JoinsQueryAndModel(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	q := activationAB()
	require.NoError(t, s.Register(ctx, q, []string{"m1"}, alice, true))
	require.NoError(t, s.Append(ctx, "m1", q, "direct", payload("h1")))

	got, err := s.Resolve(ctx, []ir.QueryHash{mustHash(t, q, "m1")}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "m1", got[0].ModelID)
	assert.Equal(t, "direct", got[0].CheckerType)
	assert.Equal(t, mustHash(t, q, "m1"), got[0].Hash)
	assert.Equal(t, q.String(), got[0].Query.String())
	assert.Equal(t, testutil.Epoch.Add(2*time.Second), got[0].CreatedAt)
}

func TestResolve_CheckerTypesAreIndependent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	q := activationAB()
	h := mustHash(t, q, "m1")
	require.NoError(t, s.Register(ctx, q, []string{"m1"}, alice, true))

	require.NoError(t, s.AppendBatch(ctx, []Entry{
		{ModelID: "m1", Query: q, CheckerType: "direct", Payload: payload("d1")},
		{ModelID: "m1", Query: q, CheckerType: "unsigned_graph", Payload: payload("g1")},
		{ModelID: "m1", Query: q, CheckerType: "unsigned_graph", Payload: payload("g2")},
	}))

	latest, err := s.Resolve(ctx, []ir.QueryHash{h}, 1)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "direct", latest[0].CheckerType)
	assert.Equal(t, payload("d1"), latest[0].Payload)
	assert.Equal(t, "unsigned_graph", latest[1].CheckerType)
	assert.Equal(t, payload("g2"), latest[1].Payload)

	previous, err := s.Resolve(ctx, []ir.QueryHash{h}, 2)
	require.NoError(t, err)
	require.Len(t, previous, 1)
	assert.Equal(t, payload("g1"), previous[0].Payload)
}

func TestResolve_LatestAfterManyAppends(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	q := activationAB()
	h := mustHash(t, q, "m1")
	require.NoError(t, s.Register(ctx, q, []string{"m1"}, alice, true))

	var last string
	for i := 0; i < 10; i++ {
		last = string(rune('a' + i))
		require.NoError(t, s.Append(ctx, "m1", q, "direct", payload(last)))

		got, err := s.Resolve(ctx, []ir.QueryHash{h}, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, payload(last), got[0].Payload)
	}
	assert.Equal(t, 10, countRows(t, s, "SELECT COUNT(*) FROM results WHERE query_hash = ?", int64(h)))
}

type frozenClock struct{ at time.Time }

func (c frozenClock) Now() time.Time { return c.at }

func TestResolve_TimestampTieUsesInsertionOrder(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), WithClock(frozenClock{at: testutil.Epoch}))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	q := activationAB()
	require.NoError(t, s.Register(ctx, q, []string{"m1"}, alice, true))
	require.NoError(t, s.Append(ctx, "m1", q, "direct", payload("first")))
	require.NoError(t, s.Append(ctx, "m1", q, "direct", payload("second")))

	got, err := s.Resolve(ctx, []ir.QueryHash{mustHash(t, q, "m1")}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, payload("second"), got[0].Payload)
}

func TestResolve_InvalidOrder(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Resolve(context.Background(), nil, 0)
	require.ErrorIs(t, err, ErrInvalidOrder)
}

func TestResolve_ManyHashes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	q := activationAB()
	require.NoError(t, s.Register(ctx, q, []string{"m1"}, alice, true))
	require.NoError(t, s.Append(ctx, "m1", q, "direct", payload("h1")))

	// More hashes than one IN list carries; the real one sits in the last chunk.
	hashes := make([]ir.QueryHash, 0, 1201)
	for i := 0; i < 1200; i++ {
		hashes = append(hashes, ir.QueryHash(i+1))
	}
	hashes = append(hashes, mustHash(t, q, "m1"))

	got, err := s.Resolve(ctx, hashes, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ModelID)
}

func TestQueriesForModel(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	q2 := ir.NewPathQuery("Inhibition", entity("C", "HGNC", "3"), entity("D", "HGNC", "4"))
	require.NoError(t, s.Register(ctx, activationAB(), []string{"m1", "m2"}, alice, true))
	require.NoError(t, s.Register(ctx, q2, []string{"m1"}, User{}, false))

	m1, err := s.QueriesForModel(ctx, "m1")
	require.NoError(t, err)
	var descriptions []string
	for _, q := range m1 {
		descriptions = append(descriptions, q.String())
	}
	assert.ElementsMatch(t, []string{activationAB().String(), q2.String()}, descriptions)

	m2, err := s.QueriesForModel(ctx, "m2")
	require.NoError(t, err)
	assert.Len(t, m2, 1)

	none, err := s.QueriesForModel(ctx, "unknown")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestResultsForUser_OnlySubscribed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	bob := User{ID: 2, Email: "bob@example.org"}

	watched := activationAB()
	unwatched := ir.NewPathQuery("Inhibition", entity("C", "HGNC", "3"), entity("D", "HGNC", "4"))

	require.NoError(t, s.Register(ctx, watched, []string{"m1"}, alice, true))
	require.NoError(t, s.Register(ctx, unwatched, []string{"m1"}, alice, false))
	require.NoError(t, s.Register(ctx, unwatched, []string{"m1"}, bob, true))
	require.NoError(t, s.Append(ctx, "m1", watched, "direct", payload("w")))
	require.NoError(t, s.Append(ctx, "m1", unwatched, "direct", payload("u")))

	got, err := s.ResultsForUser(ctx, alice.Email, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, watched.String(), got[0].Query.String())

	got, err = s.ResultsForUser(ctx, "nobody@example.org", 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSubscribedUsers(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	q := activationAB()

	require.NoError(t, s.Register(ctx, q, []string{"m1"}, User{ID: 3, Email: "carol@example.org"}, true))
	require.NoError(t, s.Register(ctx, q, []string{"m1"}, alice, true))
	require.NoError(t, s.Register(ctx, q, []string{"m1"}, User{ID: 2, Email: "bob@example.org"}, false))

	emails, err := s.SubscribedUsers(ctx, "m1", q)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.org", "carol@example.org"}, emails)

	emails, err = s.SubscribedUsers(ctx, "m2", q)
	require.NoError(t, err)
	assert.Empty(t, emails)
}
