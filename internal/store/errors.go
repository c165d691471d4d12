package store

import (
	"errors"
	"fmt"

	"github.com/roach88/vigil/internal/ir"
)

var (
	// ErrInvalidModelSet is returned by Register when no model ids are given.
	ErrInvalidModelSet = errors.New("invalid model set: at least one model id is required")

	// ErrInvalidUser is returned when exactly one of email and id is set, or
	// when either is already stored paired with a different value.
	ErrInvalidUser = errors.New("invalid user: email and id must both be set or both be empty")

	// ErrInvalidOrder is returned by Resolve for order < 1.
	ErrInvalidOrder = errors.New("invalid order: must be >= 1")
)

// HashCollisionError reports a registration whose hash is already held by a
// query with different content.
type HashCollisionError struct {
	Hash     ir.QueryHash
	ModelID  string
	Existing string // stored canonical serialization
	Incoming string
}

func (e *HashCollisionError) Error() string {
	return fmt.Sprintf("hash collision on %s for model %q: stored %s, incoming %s",
		e.Hash, e.ModelID, e.Existing, e.Incoming)
}

// IsHashCollision reports whether err is (or wraps) a HashCollisionError.
func IsHashCollision(err error) bool {
	var hc *HashCollisionError
	return errors.As(err, &hc)
}

// IsInvalidInput reports whether err was caused by caller input rather than
// the database.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidModelSet) ||
		errors.Is(err, ErrInvalidUser) ||
		errors.Is(err, ErrInvalidOrder) ||
		ir.IsUnsupportedValueType(err)
}
