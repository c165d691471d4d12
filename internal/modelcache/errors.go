package modelcache

import (
	"errors"
	"fmt"

	"github.com/roach88/vigil/internal/artifact"
	"github.com/roach88/vigil/internal/model"
)

// LoadError reports a failed model load. Failed loads are never cached.
type LoadError struct {
	ModelID string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model %q: %v", e.ModelID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Transient reports whether retrying the load may succeed. A missing or
// corrupt artifact is permanent until the artifact is replaced.
func (e *LoadError) Transient() bool {
	return !artifact.IsNotFound(e.Err) && !model.IsDecodeError(e.Err)
}

// IsTransient reports whether err is a LoadError worth retrying.
func IsTransient(err error) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Transient()
}

func loadResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case artifact.IsNotFound(err):
		return "not_found"
	case model.IsDecodeError(err):
		return "decode_error"
	default:
		return "error"
	}
}
