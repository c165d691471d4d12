// Package delta decides whether a new query result differs from the one
// before it and renders change reports.
//
// Change is tracked at the level of distinct answer keys. Evidence edits
// under an unchanged key set are not a change.
package delta

import (
	"fmt"

	"github.com/roach88/vigil/internal/ir"
)

// Kind classifies a result relative to the previous one.
type Kind int

const (
	// First means no previous result exists.
	First Kind = iota + 1
	// Changed means the set of answer keys differs.
	Changed
	// Unchanged means the set of answer keys is identical.
	Unchanged
)

func (k Kind) String() string {
	switch k {
	case First:
		return "FIRST"
	case Changed:
		return "CHANGED"
	case Unchanged:
		return "UNCHANGED"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	for _, c := range []Kind{First, Changed, Unchanged} {
		if string(text) == c.String() {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown delta kind %q", text)
}

// Classify compares current against previous. hasPrevious=false means no
// previous result exists, which is always First, even for an empty current
// payload. An empty previous payload is a real result and is compared by keys.
func Classify(current, previous ir.Payload, hasPrevious bool) Kind {
	if !hasPrevious {
		return First
	}
	if len(current) != len(previous) {
		return Changed
	}
	for k := range current {
		if _, ok := previous[k]; !ok {
			return Changed
		}
	}
	return Unchanged
}
