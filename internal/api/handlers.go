package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/vigil/internal/delta"
	"github.com/roach88/vigil/internal/store"
)

// identity reads the caller from the identity headers. Both absent means
// anonymous.
func identity(r *http.Request) (store.User, error) {
	email := r.Header.Get(HeaderUserEmail)
	rawID := r.Header.Get(HeaderUserID)
	if email == "" && rawID == "" {
		return store.User{}, nil
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return store.User{}, fmt.Errorf("invalid %s header %q", HeaderUserID, rawID)
	}
	return store.User{ID: id, Email: email}, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SubmitRequest is the body of POST /query/submit.
type SubmitRequest struct {
	Query    json.RawMessage `json:"query"`
	Models   []string        `json:"models"`
	Register bool            `json:"register"`
	Tag      string          `json:"tag,omitempty"`
}

// SubmitQuery handles POST /query/submit. Registering requires an
// identified caller. A request carrying a "test" key, or tagged "test", is
// validated and grounded but not answered.
func (s *Server) SubmitQuery(w http.ResponseWriter, r *http.Request) {
	user, err := identity(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request: body must be a JSON object")
		return
	}
	var req SubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	if req.Register && user.Anonymous() {
		s.logger.Warn("anonymous caller tried to register a query")
		writeFailure(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if len(req.Query) == 0 {
		writeFailure(w, http.StatusBadRequest, "Invalid request: missing query")
		return
	}
	sel, err := s.mgr.ParseSelection(req.Query)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if len(req.Models) == 0 {
		writeFailure(w, http.StatusBadRequest, "Invalid request: no models given")
		return
	}
	for _, m := range req.Models {
		if !s.knownModel(m) {
			writeFailure(w, http.StatusBadRequest, fmt.Sprintf("Invalid request: unknown model %q", m))
			return
		}
	}

	q, err := s.mgr.BuildQuery(r.Context(), sel)
	if err != nil {
		if statusFor(err) == http.StatusBadRequest {
			writeFailure(w, http.StatusBadRequest, "Invalid entity: "+err.Error())
			return
		}
		s.writeError(w, r, err)
		return
	}

	if _, isTest := keys["test"]; isTest || req.Tag == "test" {
		writeJSON(w, http.StatusOK, map[string]any{"result": "test passed", "ref": nil})
		return
	}

	ans, err := s.mgr.AnswerImmediate(r.Context(), user, q, req.Models, req.Register)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// RegisteredResults handles GET /results for the identified caller.
func (s *Server) RegisteredResults(w http.ResponseWriter, r *http.Request) {
	user, err := identity(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if user.Anonymous() {
		writeFailure(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	results, err := s.mgr.RegisteredResults(r.Context(), user.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": results})
}

// SweepReport summarizes one delta report in a sweep response.
type SweepReport struct {
	Query       string     `json:"query"`
	CheckerType string     `json:"checker_type"`
	Kind        delta.Kind `json:"kind"`
}

// SweepResponse is the body returned by POST /models/{model}/sweep.
type SweepResponse struct {
	RunID     string        `json:"run_id"`
	Model     string        `json:"model"`
	Queries   int           `json:"queries"`
	Evaluated int           `json:"evaluated"`
	Failed    int           `json:"failed"`
	Appended  int           `json:"appended"`
	Reports   []SweepReport `json:"reports,omitempty"`
}

// Sweep handles POST /models/{model}/sweep.
func (s *Server) Sweep(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model")
	if !s.knownModel(modelID) {
		writeFailure(w, http.StatusNotFound, fmt.Sprintf("unknown model %q", modelID))
		return
	}
	sum, err := s.mgr.Sweep(r.Context(), modelID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := SweepResponse{
		RunID:     sum.RunID,
		Model:     sum.ModelID,
		Queries:   sum.Queries,
		Evaluated: sum.Evaluated,
		Failed:    sum.Failed,
		Appended:  sum.Appended,
	}
	for _, rep := range sum.Reports {
		resp.Reports = append(resp.Reports, SweepReport{
			Query:       rep.Query.String(),
			CheckerType: rep.CheckerType,
			Kind:        rep.Kind,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReportRequest is the body of POST /models/{model}/report.
type ReportRequest struct {
	Query  json.RawMessage `json:"query"`
	Format string          `json:"format"`
}

// QueryReport handles POST /models/{model}/report. It responds 404 when the
// query has no stored result on the model.
func (s *Server) QueryReport(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "model")
	if !s.knownModel(modelID) {
		writeFailure(w, http.StatusNotFound, fmt.Sprintf("unknown model %q", modelID))
		return
	}
	var req ReportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	format, err := delta.ParseFormat(req.Format)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Query) == 0 {
		writeFailure(w, http.StatusBadRequest, "Invalid request: missing query")
		return
	}
	sel, err := s.mgr.ParseSelection(req.Query)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	q, err := s.mgr.BuildQuery(r.Context(), sel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	report, ok, err := s.mgr.QueryReport(r.Context(), modelID, q, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeFailure(w, http.StatusNotFound, "no result stored for query")
		return
	}
	if format == delta.HTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	io.WriteString(w, report)
}
