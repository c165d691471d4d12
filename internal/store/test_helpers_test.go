package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/vigil/internal/ir"
	"github.com/roach88/vigil/internal/testutil"
)

// createTestStore opens a fresh store on a temp file with a deterministic clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(testutil.NewDeterministicClock()))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func entity(name, ns, id string) ir.Entity {
	return ir.Entity{Name: name, DBRefs: map[string]string{ns: id}}
}

// activationAB is the query Activation(A, B).
func activationAB() ir.Query {
	return ir.NewPathQuery("Activation", entity("A", "HGNC", "1"), entity("B", "HGNC", "2"))
}

var alice = User{ID: 1, Email: "alice@example.org"}

func countRows(t *testing.T, s *Store, query string, args ...any) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

func mustHash(t *testing.T, q ir.Query, modelID string) ir.QueryHash {
	t.Helper()
	h, err := q.HashWithModel(modelID)
	if err != nil {
		t.Fatalf("HashWithModel: %v", err)
	}
	return h
}
