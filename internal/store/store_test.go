package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"users", "queries", "subscriptions", "results"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}

	// The anonymous sentinel is seeded exactly once.
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM users WHERE id = 0").Scan(&count); err != nil {
		t.Fatalf("count sentinel: %v", err)
	}
	if count != 1 {
		t.Errorf("sentinel user rows = %d, want 1", count)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		if err := s.verifyPragma(tt.name, tt.expected); err != nil {
			t.Error(err)
		}
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	tables := map[string][]string{
		"users":         {"id", "email"},
		"queries":       {"id", "model_id", "hash", "query_json", "created_at"},
		"subscriptions": {"user_id", "query_hash", "subscribed", "count"},
		"results":       {"id", "query_hash", "checker_type", "result_json", "created_at"},
	}
	for table, expected := range tables {
		columns := getTableColumns(t, s.db, table)
		for _, col := range expected {
			if !slices.Contains(columns, col) {
				t.Errorf("%s table missing column %q", table, col)
			}
		}
	}
}

func TestSchema_LatestIndex(t *testing.T) {
	s := createTestStore(t)

	indexes := getTableIndexes(t, s.db, "results")
	if !slices.Contains(indexes, "idx_results_latest") {
		t.Errorf("results indexes = %v, want idx_results_latest", indexes)
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to list indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		names = append(names, name)
	}
	return names
}
