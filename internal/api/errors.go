package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/vigil/internal/artifact"
	"github.com/roach88/vigil/internal/modelcache"
	"github.com/roach88/vigil/internal/query"
	"github.com/roach88/vigil/internal/store"
)

// statusFor maps a manager error to an HTTP status.
func statusFor(err error) int {
	var le *modelcache.LoadError
	switch {
	case query.IsInvalidInput(err), store.IsInvalidInput(err):
		return http.StatusBadRequest
	case store.IsHashCollision(err):
		return http.StatusConflict
	case errors.As(err, &le):
		if le.Transient() {
			return http.StatusServiceUnavailable
		}
		if artifact.IsNotFound(err) {
			return http.StatusNotFound
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

type failure struct {
	Result string `json:"result"`
	Reason string `json:"reason"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, failure{Result: "failure", Reason: reason})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeFailure(w, status, err.Error())
}
