// Package model holds the loaded, queryable form of a model and its
// artifact encoding.
package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/roach88/vigil/internal/ir"
)

// Assertion is one statement of a model with its supporting evidence.
type Assertion struct {
	ir.Statement `yaml:",inline"`
	Sentence     string `json:"sentence,omitempty" yaml:"sentence,omitempty"`
	Link         string `json:"link,omitempty" yaml:"link,omitempty"`
}

// Evidence returns the assertion as payload evidence. Without an explicit
// sentence the statement itself is used.
func (a Assertion) Evidence() ir.Evidence {
	sentence := a.Sentence
	if sentence == "" {
		sentence = a.Statement.String() + "."
	}
	return ir.Evidence{Sentence: sentence, Link: a.Link}
}

// Handle is a loaded model ready for evaluation. Handles are read-only once
// built and may be shared between goroutines.
type Handle struct {
	ModelID    string      `json:"model_id" yaml:"model_id"`
	Version    string      `json:"version,omitempty" yaml:"version,omitempty"`
	Statements []Assertion `json:"statements" yaml:"statements"`
}

// DecodeError reports an artifact that could not be turned into a Handle.
type DecodeError struct {
	ModelID string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.ModelID == "" {
		return fmt.Sprintf("decode model artifact: %v", e.Err)
	}
	return fmt.Sprintf("decode model artifact for %q: %v", e.ModelID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError returns true if err is or wraps a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// EncodeAll and DecodeAll are safe for concurrent use.
var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// Encode serializes h as zstd-compressed JSON.
func Encode(h *Handle) ([]byte, error) {
	if h == nil || h.ModelID == "" {
		return nil, errors.New("encode model artifact: model id is required")
	}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode model artifact: %w", err)
	}
	return encoder.EncodeAll(data, nil), nil
}

// Decode parses an artifact produced by Encode. Any failure is a DecodeError.
// If modelID is non-empty the artifact must belong to that model.
func Decode(modelID string, data []byte) (*Handle, error) {
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, &DecodeError{ModelID: modelID, Err: err}
	}
	var h Handle
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, &DecodeError{ModelID: modelID, Err: err}
	}
	if h.ModelID == "" {
		return nil, &DecodeError{ModelID: modelID, Err: errors.New("missing model_id")}
	}
	if modelID != "" && h.ModelID != modelID {
		return nil, &DecodeError{ModelID: modelID, Err: fmt.Errorf("artifact is for model %q", h.ModelID)}
	}
	return &h, nil
}
