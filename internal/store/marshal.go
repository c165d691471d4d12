package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/vigil/internal/ir"
)

// marshalQuery converts a query to canonical JSON TEXT for storage.
func marshalQuery(q ir.Query) (string, error) {
	data, err := q.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal query: %w", err)
	}
	return string(data), nil
}

// marshalPayload converts a result payload to JSON TEXT.
// encoding/json sorts map keys; HTML escaping is disabled so evidence
// sentences are stored as written.
func marshalPayload(p ir.Payload) (string, error) {
	if p == nil {
		p = ir.Payload{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalQuery(data string) (ir.Query, error) {
	q, err := ir.ParseQuery([]byte(data))
	if err != nil {
		return ir.Query{}, fmt.Errorf("unmarshal query: %w", err)
	}
	return q, nil
}

func unmarshalPayload(data string) (ir.Payload, error) {
	if data == "" || data == "{}" {
		return ir.Payload{}, nil
	}
	p, err := ir.ParsePayload([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}
