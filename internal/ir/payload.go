package ir

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Evidence is one supporting sentence for an answer, with an optional link.
// It serializes as a two-element array: ["sentence", "link"].
type Evidence struct {
	Sentence string
	Link     string
}

// MarshalJSON implements json.Marshaler.
func (e Evidence) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{e.Sentence, e.Link})
}

// UnmarshalJSON implements json.Unmarshaler. A null link decodes as "".
func (e *Evidence) UnmarshalJSON(data []byte) error {
	var pair []*string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("evidence: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("evidence: want [sentence, link], got %d elements", len(pair))
	}
	*e = Evidence{}
	if pair[0] != nil {
		e.Sentence = *pair[0]
	}
	if pair[1] != nil {
		e.Link = *pair[1]
	}
	return nil
}

// Payload is the answer of one checker to one query: a mapping from answer
// identity (e.g. a path hash) to its supporting evidence.
type Payload map[string][]Evidence

// Keys returns the distinct answer keys in sorted order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParsePayload decodes a stored result payload.
func ParsePayload(data []byte) (Payload, error) {
	p := Payload{}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	return p, nil
}

// CheckerResult is the answer of one evaluation strategy to one query.
type CheckerResult struct {
	CheckerType string  `json:"checker_type"`
	Payload     Payload `json:"payload"`
}
