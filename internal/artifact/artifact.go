// Package artifact reads and writes serialized model artifacts in a remote
// object store.
package artifact

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no artifact exists under a key.
var ErrNotFound = errors.New("artifact not found")

// Store is a key/value object store for artifacts.
type Store interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// ModelKey returns the well-known key of a model's latest artifact.
func ModelKey(modelID string) string {
	return fmt.Sprintf("results/%s/latest_model_manager", modelID)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
