package query

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/vigil/internal/grounding"
	"github.com/roach88/vigil/internal/ir"
)

// ParseSelection validates a raw JSON selection.
func (m *Manager) ParseSelection(data []byte) (ir.Selection, error) {
	return m.validator.Parse(data)
}

// BuildQuery validates sel and grounds its subject and object into a
// path-property query. A name that cannot be grounded is invalid input.
func (m *Manager) BuildQuery(ctx context.Context, sel ir.Selection) (ir.Query, error) {
	data, err := json.Marshal(sel)
	if err != nil {
		return ir.Query{}, fmt.Errorf("build query: %w", err)
	}
	if _, err := m.validator.Parse(data); err != nil {
		return ir.Query{}, err
	}

	subj, err := m.ground(ctx, "subjectSelection", sel.Subject)
	if err != nil {
		return ir.Query{}, err
	}
	obj, err := m.ground(ctx, "objectSelection", sel.Object)
	if err != nil {
		return ir.Query{}, err
	}
	return ir.NewPathQuery(sel.Type, subj, obj), nil
}

func (m *Manager) ground(ctx context.Context, field, name string) (ir.Entity, error) {
	if m.grounder == nil {
		return ir.Entity{Name: name, DBRefs: map[string]string{"TEXT": name}}, nil
	}
	ent, err := m.grounder.Ground(ctx, name)
	if grounding.IsNotFound(err) {
		return ir.Entity{}, &ValidationError{Field: field, Message: fmt.Sprintf("invalid entity %q", name)}
	}
	if err != nil {
		return ir.Entity{}, fmt.Errorf("ground %q: %w", name, err)
	}
	return ent, nil
}
