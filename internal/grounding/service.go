package grounding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/roach88/vigil/internal/ir"
)

// DefaultTimeout bounds a grounding service request.
const DefaultTimeout = 10 * time.Second

// Service grounds names through a remote grounding HTTP service.
// It POSTs {"text": name} and takes the top-ranked term of the response.
type Service struct {
	url    string
	client *http.Client
}

// NewService creates a client for the service at url.
func NewService(url string, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{url: url, client: &http.Client{Timeout: timeout}}
}

type serviceMatch struct {
	Term struct {
		EntryName string `json:"entry_name"`
		DB        string `json:"db"`
		ID        string `json:"id"`
	} `json:"term"`
	Score float64 `json:"score"`
}

// Ground implements Grounder.
func (s *Service) Ground(ctx context.Context, name string) (ir.Entity, error) {
	body, err := json.Marshal(map[string]string{"text": name})
	if err != nil {
		return ir.Entity{}, fmt.Errorf("ground %q: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return ir.Entity{}, fmt.Errorf("ground %q: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return ir.Entity{}, fmt.Errorf("ground %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ir.Entity{}, fmt.Errorf("ground %q: service returned %s: %s", name, resp.Status, snippet)
	}

	var matches []serviceMatch
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		return ir.Entity{}, fmt.Errorf("ground %q: decode response: %w", name, err)
	}
	if len(matches) == 0 || matches[0].Term.DB == "" {
		return ir.Entity{}, fmt.Errorf("ground %q: %w", name, ErrNotFound)
	}

	top := matches[0].Term
	entryName := top.EntryName
	if entryName == "" {
		entryName = name
	}
	return ir.Entity{Name: entryName, DBRefs: map[string]string{top.DB: top.ID}}, nil
}
