package ir

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// KindPathProperty is the only query kind currently answered: find a
// mechanistic path in the model that satisfies the query statement.
const KindPathProperty = "path_property"

// ErrInvalidQuery is returned when a serialized query has the wrong shape.
var ErrInvalidQuery = errors.New("invalid query")

// Entity is a grounded entity referenced by a query or a model statement.
// DBRefs maps a namespace (HGNC, CHEBI, MESH, TEXT, ...) to an identifier.
type Entity struct {
	Name   string            `json:"name" yaml:"name"`
	DBRefs map[string]string `json:"db_refs" yaml:"db_refs"`
}

// Key returns the identity of an entity for matching: its first grounding in
// namespace order, falling back to the upper-cased name.
func (e Entity) Key() string {
	if len(e.DBRefs) > 0 {
		ns := make([]string, 0, len(e.DBRefs))
		for k := range e.DBRefs {
			if k != "TEXT" {
				ns = append(ns, k)
			}
		}
		if len(ns) > 0 {
			sort.Strings(ns)
			return ns[0] + ":" + e.DBRefs[ns[0]]
		}
	}
	return "TEXT:" + strings.ToUpper(e.Name)
}

func (e Entity) value() map[string]any {
	refs := make(map[string]any, len(e.DBRefs))
	for k, v := range e.DBRefs {
		refs[k] = v
	}
	return map[string]any{
		"name":    e.Name,
		"db_refs": refs,
	}
}

func (e Entity) String() string {
	return e.Name + "()"
}

// Statement is a typed relationship between two entities, e.g.
// Activation(subject, object).
type Statement struct {
	Type    string `json:"type" yaml:"type"`
	Subject Entity `json:"subj" yaml:"subj"`
	Object  Entity `json:"obj" yaml:"obj"`
}

func (s Statement) value() map[string]any {
	return map[string]any{
		"type": s.Type,
		"subj": s.Subject.value(),
		"obj":  s.Object.value(),
	}
}

func (s Statement) String() string {
	return fmt.Sprintf("%s(%s, %s)", s.Type, s.Subject, s.Object)
}

// EntityConstraints lists entities a path must include or must avoid.
type EntityConstraints struct {
	Include []Entity `json:"include,omitempty"`
	Exclude []Entity `json:"exclude,omitempty"`
}

// RelationConstraints lists statement types a path must include or avoid.
type RelationConstraints struct {
	Include []string
	Exclude []string
}

// Query is a standing, model-independent question. Two queries with the same
// content are the same query regardless of how they were constructed.
type Query struct {
	Kind      string
	Path      Statement
	Entities  EntityConstraints
	Relations RelationConstraints
}

// NewPathQuery builds a path-property query for stmtType(subject, object).
func NewPathQuery(stmtType string, subject, object Entity) Query {
	return Query{
		Kind: KindPathProperty,
		Path: Statement{Type: stmtType, Subject: subject, Object: object},
	}
}

// Value returns the nested map serialization used for hashing and storage.
// Only map[string]any, []any and string appear in the result.
func (q Query) Value() map[string]any {
	ec := map[string]any{}
	if len(q.Entities.Include) > 0 {
		ec["include"] = entityList(q.Entities.Include)
	}
	if len(q.Entities.Exclude) > 0 {
		ec["exclude"] = entityList(q.Entities.Exclude)
	}

	rc := map[string]any{}
	if len(q.Relations.Include) > 0 {
		rc["include"] = relationList(q.Relations.Include)
	}
	if len(q.Relations.Exclude) > 0 {
		rc["exclude"] = relationList(q.Relations.Exclude)
	}

	return map[string]any{
		"type":                     q.Kind,
		"path":                     q.Path.value(),
		"entity_constraints":       ec,
		"relationship_constraints": rc,
	}
}

func entityList(ents []Entity) []any {
	out := make([]any, len(ents))
	for i, e := range ents {
		out[i] = e.value()
	}
	return out
}

func relationList(rels []string) []any {
	out := make([]any, len(rels))
	for i, r := range rels {
		out[i] = map[string]any{"type": r}
	}
	return out
}

// HashWithModel returns the content identity of this query on modelID.
func (q Query) HashWithModel(modelID string) (QueryHash, error) {
	return HashWithModel(q.Value(), modelID)
}

// MarshalJSON implements json.Marshaler using the canonical storage form.
func (q Query) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(q.Value())
}

type queryJSON struct {
	Type                    string            `json:"type"`
	Path                    *Statement        `json:"path"`
	EntityConstraints       EntityConstraints `json:"entity_constraints"`
	RelationshipConstraints struct {
		Include []relationJSON `json:"include"`
		Exclude []relationJSON `json:"exclude"`
	} `json:"relationship_constraints"`
}

type relationJSON struct {
	Type string `json:"type"`
}

// UnmarshalJSON implements json.Unmarshaler for the stored query form.
func (q *Query) UnmarshalJSON(data []byte) error {
	var raw queryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if raw.Type != KindPathProperty {
		return fmt.Errorf("%w: unknown query type %q", ErrInvalidQuery, raw.Type)
	}
	if raw.Path == nil || raw.Path.Type == "" {
		return fmt.Errorf("%w: missing path statement", ErrInvalidQuery)
	}

	*q = Query{
		Kind:     raw.Type,
		Path:     *raw.Path,
		Entities: raw.EntityConstraints,
	}
	for _, r := range raw.RelationshipConstraints.Include {
		q.Relations.Include = append(q.Relations.Include, r.Type)
	}
	for _, r := range raw.RelationshipConstraints.Exclude {
		q.Relations.Exclude = append(q.Relations.Exclude, r.Type)
	}
	return nil
}

// ParseQuery decodes a stored query serialization.
func ParseQuery(data []byte) (Query, error) {
	var q Query
	if err := q.UnmarshalJSON(data); err != nil {
		return Query{}, err
	}
	return q, nil
}

// String renders a human-readable description, used in reports and logs.
//
// Example: PathPropertyQuery(stmt=Activation(EGFR(), ERK())). Exclude entities: PI3K().
func (q Query) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "PathPropertyQuery(stmt=%s).", q.Path)
	if len(q.Entities.Include) > 0 {
		fmt.Fprintf(&b, " Include entities: %s.", joinEntities(q.Entities.Include))
	}
	if len(q.Entities.Exclude) > 0 {
		fmt.Fprintf(&b, " Exclude entities: %s.", joinEntities(q.Entities.Exclude))
	}
	if len(q.Relations.Include) > 0 {
		fmt.Fprintf(&b, " Include relations: %s.", strings.Join(q.Relations.Include, ", "))
	}
	if len(q.Relations.Exclude) > 0 {
		fmt.Fprintf(&b, " Exclude relations: %s.", strings.Join(q.Relations.Exclude, ", "))
	}
	return b.String()
}

func joinEntities(ents []Entity) string {
	parts := make([]string, len(ents))
	for i, e := range ents {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// Selection is the flat form the web layer submits and displays.
type Selection struct {
	Type    string `json:"typeSelection"`
	Subject string `json:"subjectSelection"`
	Object  string `json:"objectSelection"`
}

// Selection returns the simple display form of the query.
func (q Query) Selection() Selection {
	return Selection{
		Type:    q.Path.Type,
		Subject: q.Path.Subject.Name,
		Object:  q.Path.Object.Name,
	}
}
