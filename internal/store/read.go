package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/vigil/internal/ir"
)

// Result is one resolved ledger entry joined back to its query.
type Result struct {
	ModelID     string
	Query       ir.Query
	Hash        ir.QueryHash
	CheckerType string
	Payload     ir.Payload
	CreatedAt   time.Time
}

// maxResolveParams keeps IN lists well under SQLite's bound-parameter limit.
const maxResolveParams = 500

// Resolve returns, for every (hash, checker_type) group among hashes, the
// order-th most recent result: order=1 is the latest, order=2 the one before.
// Groups with fewer than order results contribute nothing.
//
// Results are ordered by model_id, hash, checker_type.
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) Resolve(ctx context.Context, hashes []ir.QueryHash, order int) ([]Result, error) {
	if order < 1 {
		return nil, fmt.Errorf("resolve: %w (got %d)", ErrInvalidOrder, order)
	}

	results := []Result{}
	for start := 0; start < len(hashes); start += maxResolveParams {
		end := min(start+maxResolveParams, len(hashes))
		chunk, err := s.resolveChunk(ctx, hashes[start:end], order)
		if err != nil {
			return nil, err
		}
		results = append(results, chunk...)
	}
	return results, nil
}

func (s *Store) resolveChunk(ctx context.Context, hashes []ir.QueryHash, order int) ([]Result, error) {
	args := make([]any, 0, len(hashes)+1)
	for _, h := range hashes {
		args = append(args, int64(h))
	}
	args = append(args, order)

	// Most recent first; id breaks created_at ties in insertion order.
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.model_id, q.query_json, r.query_hash, r.checker_type, r.result_json, r.created_at
		FROM (
			SELECT query_hash, checker_type, result_json, created_at,
				ROW_NUMBER() OVER (
					PARTITION BY query_hash, checker_type
					ORDER BY created_at DESC, id DESC
				) AS rn
			FROM results
			WHERE query_hash IN (`+placeholders(len(hashes))+`)
		) r
		JOIN queries q ON q.hash = r.query_hash
		WHERE r.rn = ?
		ORDER BY q.model_id ASC, r.query_hash ASC, r.checker_type ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolve: iterate: %w", err)
	}
	return results, nil
}

func scanResult(rows *sql.Rows) (Result, error) {
	var (
		res                   Result
		queryJSON, resultJSON string
		hash, createdAt       int64
	)
	if err := rows.Scan(&res.ModelID, &queryJSON, &hash, &res.CheckerType, &resultJSON, &createdAt); err != nil {
		return Result{}, fmt.Errorf("scan result: %w", err)
	}

	q, err := unmarshalQuery(queryJSON)
	if err != nil {
		return Result{}, err
	}
	payload, err := unmarshalPayload(resultJSON)
	if err != nil {
		return Result{}, err
	}

	res.Query = q
	res.Hash = ir.QueryHash(hash)
	res.Payload = payload
	res.CreatedAt = time.Unix(0, createdAt).UTC()
	return res, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// QueriesForModel returns every distinct query registered against modelID.
// Callers must not rely on the order.
func (s *Store) QueriesForModel(ctx context.Context, modelID string) ([]ir.Query, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT query_json FROM queries
		WHERE model_id = ?
		ORDER BY id ASC
	`, modelID)
	if err != nil {
		return nil, fmt.Errorf("queries for model: %w", err)
	}
	defer rows.Close()

	queries := []ir.Query{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("queries for model: scan: %w", err)
		}
		q, err := unmarshalQuery(data)
		if err != nil {
			return nil, fmt.Errorf("queries for model: %w", err)
		}
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queries for model: iterate: %w", err)
	}
	return queries, nil
}

// ResultsForUser resolves the order-th most recent results of every query
// the user with this email is subscribed to.
func (s *Store) ResultsForUser(ctx context.Context, email string, order int) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sub.query_hash
		FROM subscriptions sub
		JOIN users u ON u.id = sub.user_id
		WHERE u.email = ? AND u.id != ? AND sub.subscribed = 1
		ORDER BY sub.query_hash ASC
	`, email, anonymousUserID)
	if err != nil {
		return nil, fmt.Errorf("results for user: %w", err)
	}
	defer rows.Close()

	var hashes []ir.QueryHash
	for rows.Next() {
		var h int64
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("results for user: scan: %w", err)
		}
		hashes = append(hashes, ir.QueryHash(h))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("results for user: iterate: %w", err)
	}
	// Release the single connection before Resolve needs it.
	rows.Close()

	return s.Resolve(ctx, hashes, order)
}

// SubscribedUsers returns the emails of users subscribed to q on modelID,
// sorted.
func (s *Store) SubscribedUsers(ctx context.Context, modelID string, q ir.Query) ([]string, error) {
	h, err := q.HashWithModel(modelID)
	if err != nil {
		return nil, fmt.Errorf("subscribed users: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT u.email
		FROM subscriptions sub
		JOIN users u ON u.id = sub.user_id
		WHERE sub.query_hash = ? AND sub.subscribed = 1 AND u.id != ?
		ORDER BY u.email ASC
	`, int64(h), anonymousUserID)
	if err != nil {
		return nil, fmt.Errorf("subscribed users: %w", err)
	}
	defer rows.Close()

	emails := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("subscribed users: scan: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("subscribed users: iterate: %w", err)
	}
	return emails, nil
}
