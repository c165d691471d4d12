package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/vigil/internal/ir"
)

// User identifies the submitter of a query. The zero value is anonymous.
type User struct {
	ID    int64
	Email string
}

// Anonymous reports whether u carries no identity.
func (u User) Anonymous() bool {
	return u.ID == 0 && u.Email == ""
}

func (u User) validate() error {
	if u.Anonymous() {
		return nil
	}
	if u.ID <= 0 || u.Email == "" {
		return fmt.Errorf("%w: id=%d email=%q", ErrInvalidUser, u.ID, u.Email)
	}
	return nil
}

// anonymousUserID is the sentinel users row seeded by schema.sql.
const anonymousUserID = 0

// Register records q against every model in modelIDs and notes the user's
// interest in it.
//
// For each model a QueryRecord is created if none exists for (model, hash).
// The user's Subscription is created with count 1, or its count is
// incremented; subscribe=true sets the flag, subscribe=false never clears it.
// Anonymous submissions are counted under the sentinel user and are never
// subscribed.
//
// All inserts commit in one transaction. A hash already held by a query with
// different content fails the whole call with HashCollisionError.
func (s *Store) Register(ctx context.Context, q ir.Query, modelIDs []string, user User, subscribe bool) error {
	models, err := normalizeModels(modelIDs)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if err := user.validate(); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	identity, err := ir.CanonicalString(q.Value())
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	queryJSON, err := marshalQuery(q)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	hashes := make([]ir.QueryHash, len(models))
	for i, m := range models {
		if hashes[i], err = q.HashWithModel(m); err != nil {
			return fmt.Errorf("register: %w", err)
		}
	}

	userID := int64(anonymousUserID)
	if user.Anonymous() {
		subscribe = false
	} else {
		userID = user.ID
	}
	now := s.now()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if !user.Anonymous() {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO users (id, email) VALUES (?, ?)
				ON CONFLICT DO NOTHING
			`, user.ID, user.Email); err != nil {
				return fmt.Errorf("insert user: %w", err)
			}
			if err := checkUser(ctx, tx, user); err != nil {
				return err
			}
		}

		for i, m := range models {
			if err := insertQuery(ctx, tx, m, hashes[i], identity, queryJSON, now); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO subscriptions (user_id, query_hash, subscribed, count)
				VALUES (?, ?, ?, 1)
				ON CONFLICT(user_id, query_hash) DO UPDATE SET
					count = count + 1,
					subscribed = subscribed OR excluded.subscribed
			`, userID, int64(hashes[i]), subscribe); err != nil {
				return fmt.Errorf("upsert subscription: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// checkUser fails when the id or the email is already stored paired with
// something else.
func checkUser(ctx context.Context, tx *sql.Tx, user User) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, email FROM users WHERE id = ? OR email = ?
		ORDER BY id
	`, user.ID, user.Email)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var email string
		if err := rows.Scan(&id, &email); err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if id != user.ID || email != user.Email {
			return fmt.Errorf("%w: id=%d email=%q conflicts with stored id=%d email=%q",
				ErrInvalidUser, user.ID, user.Email, id, email)
		}
	}
	return rows.Err()
}

// insertQuery creates the QueryRecord for (modelID, hash) unless it exists.
// An existing record is compared by canonical identity, not by stored bytes,
// since list order in the stored JSON is incidental.
func insertQuery(ctx context.Context, tx *sql.Tx, modelID string, hash ir.QueryHash, identity, queryJSON string, now int64) error {
	var existingModel, existingJSON string
	err := tx.QueryRowContext(ctx, `
		SELECT model_id, query_json FROM queries
		WHERE hash = ?
		ORDER BY id ASC
		LIMIT 1
	`, int64(hash)).Scan(&existingModel, &existingJSON)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO queries (model_id, hash, query_json, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(model_id, hash) DO NOTHING
		`, modelID, int64(hash), queryJSON, now); err != nil {
			return fmt.Errorf("insert query: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("lookup query: %w", err)
	}

	existing, err := unmarshalQuery(existingJSON)
	if err != nil {
		return err
	}
	existingIdentity, err := ir.CanonicalString(existing.Value())
	if err != nil {
		return fmt.Errorf("lookup query: %w", err)
	}
	if existingModel != modelID || existingIdentity != identity {
		return &HashCollisionError{
			Hash:     hash,
			ModelID:  modelID,
			Existing: existingJSON,
			Incoming: queryJSON,
		}
	}
	return nil
}

// normalizeModels drops duplicates while keeping first-seen order.
func normalizeModels(modelIDs []string) ([]string, error) {
	if len(modelIDs) == 0 {
		return nil, ErrInvalidModelSet
	}
	seen := make(map[string]bool, len(modelIDs))
	out := make([]string, 0, len(modelIDs))
	for _, m := range modelIDs {
		if m == "" {
			return nil, fmt.Errorf("%w: empty model id", ErrInvalidModelSet)
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out, nil
}

// Entry is one evaluation result to append to the ledger.
type Entry struct {
	ModelID     string
	Query       ir.Query
	CheckerType string
	Payload     ir.Payload
}

// Append inserts one immutable result record stamped with the current time.
func (s *Store) Append(ctx context.Context, modelID string, q ir.Query, checkerType string, payload ir.Payload) error {
	return s.AppendBatch(ctx, []Entry{{
		ModelID:     modelID,
		Query:       q,
		CheckerType: checkerType,
		Payload:     payload,
	}})
}

// AppendBatch inserts all entries in one transaction. Existing rows are
// never touched; appending the same result twice yields two rows.
func (s *Store) AppendBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	type row struct {
		hash    ir.QueryHash
		checker string
		payload string
	}
	rows := make([]row, len(entries))
	for i, e := range entries {
		h, err := e.Query.HashWithModel(e.ModelID)
		if err != nil {
			return fmt.Errorf("append results: %w", err)
		}
		payload, err := marshalPayload(e.Payload)
		if err != nil {
			return fmt.Errorf("append results: %w", err)
		}
		rows[i] = row{hash: h, checker: e.CheckerType, payload: payload}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO results (query_hash, checker_type, result_json, created_at)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, int64(r.hash), r.checker, r.payload, s.now()); err != nil {
				return fmt.Errorf("insert result: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append results: %w", err)
	}
	return nil
}
