// Package grounding resolves free-text entity names to grounded entities.
package grounding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/vigil/internal/ir"
)

// ErrNotFound is returned when a name has no grounding.
var ErrNotFound = errors.New("no grounding")

// Grounder resolves a name to a grounded entity or ErrNotFound.
type Grounder interface {
	Ground(ctx context.Context, name string) (ir.Entity, error)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Chain tries each grounder in order. Any error other than the last is
// logged and the next grounder is tried.
type Chain []Grounder

// Ground implements Grounder.
func (c Chain) Ground(ctx context.Context, name string) (ir.Entity, error) {
	if len(c) == 0 {
		return ir.Entity{}, fmt.Errorf("ground %q: %w", name, ErrNotFound)
	}
	var lastErr error
	for i, g := range c {
		ent, err := g.Ground(ctx, name)
		if err == nil {
			return ent, nil
		}
		if ctx.Err() != nil {
			return ir.Entity{}, ctx.Err()
		}
		lastErr = err
		if i < len(c)-1 && !IsNotFound(err) {
			slog.Warn("grounder failed, falling back", "name", name, "error", err)
		}
	}
	return ir.Entity{}, lastErr
}

// Table grounds names from a fixed in-memory table. Lookups are exact first,
// then by the upper-cased name.
type Table struct {
	entries map[string]ir.Entity
}

// NewTable builds a table from entities, indexed by name.
func NewTable(entities ...ir.Entity) *Table {
	t := &Table{entries: make(map[string]ir.Entity, len(entities))}
	for _, e := range entities {
		t.add(e.Name, e)
	}
	return t
}

func (t *Table) add(name string, e ir.Entity) {
	if _, exists := t.entries[name]; !exists {
		t.entries[name] = e
	}
}

// Ground implements Grounder.
func (t *Table) Ground(_ context.Context, name string) (ir.Entity, error) {
	if e, ok := t.entries[name]; ok {
		return e, nil
	}
	upper := strings.ToUpper(name)
	if e, ok := t.entries[upper]; ok {
		return e, nil
	}
	return ir.Entity{}, fmt.Errorf("ground %q: %w", name, ErrNotFound)
}

// Len returns the number of indexed names, synonyms included.
func (t *Table) Len() int {
	return len(t.entries)
}
