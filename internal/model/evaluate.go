package model

import (
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"

	"github.com/roach88/vigil/internal/ir"
)

// Checker types produced by Evaluator.
const (
	// CheckerDirect matches a single statement of the queried type.
	CheckerDirect = "direct"
	// CheckerUnsignedGraph finds paths over statements of any type.
	CheckerUnsignedGraph = "unsigned_graph"
)

const (
	defaultMaxPathLength = 4
	defaultMaxPaths      = 5
)

// Evaluator answers path-property queries against a Handle.
// The zero value uses default bounds.
type Evaluator struct {
	// MaxPathLength bounds the number of edges in a graph path.
	MaxPathLength int
	// MaxPaths bounds the number of paths reported per query.
	MaxPaths int
}

// Evaluate runs every checker against h. Each checker yields one result,
// with an empty payload when it finds nothing.
func (e Evaluator) Evaluate(ctx context.Context, q ir.Query, h *Handle) ([]ir.CheckerResult, error) {
	if q.Kind != ir.KindPathProperty {
		return nil, fmt.Errorf("evaluate: unsupported query kind %q", q.Kind)
	}
	if h == nil {
		return nil, fmt.Errorf("evaluate: nil model handle")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	direct := e.direct(q, h)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	graph := e.unsignedGraph(q, h)

	return []ir.CheckerResult{
		{CheckerType: CheckerDirect, Payload: direct},
		{CheckerType: CheckerUnsignedGraph, Payload: graph},
	}, nil
}

func (e Evaluator) direct(q ir.Query, h *Handle) ir.Payload {
	subj, obj := q.Path.Subject.Key(), q.Path.Object.Key()
	var evidence []ir.Evidence
	for _, a := range h.Statements {
		if a.Type == q.Path.Type && a.Subject.Key() == subj && a.Object.Key() == obj {
			evidence = append(evidence, a.Evidence())
		}
	}
	if len(evidence) == 0 {
		return ir.Payload{}
	}
	return ir.Payload{pathKey([]string{subj, obj}): evidence}
}

type edge struct {
	to        string
	assertion Assertion
}

func (e Evaluator) unsignedGraph(q ir.Query, h *Handle) ir.Payload {
	maxLen := e.MaxPathLength
	if maxLen <= 0 {
		maxLen = defaultMaxPathLength
	}
	maxPaths := e.MaxPaths
	if maxPaths <= 0 {
		maxPaths = defaultMaxPaths
	}

	excluded := entityKeys(q.Entities.Exclude)
	required := entityKeys(q.Entities.Include)
	allowed := func(stmtType string) bool {
		if slices.Contains(q.Relations.Exclude, stmtType) {
			return false
		}
		return len(q.Relations.Include) == 0 || slices.Contains(q.Relations.Include, stmtType)
	}

	adj := make(map[string][]edge)
	for _, a := range h.Statements {
		if !allowed(a.Type) {
			continue
		}
		from := a.Subject.Key()
		adj[from] = append(adj[from], edge{to: a.Object.Key(), assertion: a})
	}

	src, dst := q.Path.Subject.Key(), q.Path.Object.Key()
	if excluded[src] || excluded[dst] {
		return ir.Payload{}
	}

	type path struct {
		nodes []string
		edges []Assertion
	}
	var found []path

	// Depth-first enumeration of simple paths up to maxLen edges.
	var walk func(node string, nodes []string, edges []Assertion, onPath map[string]bool)
	walk = func(node string, nodes []string, edges []Assertion, onPath map[string]bool) {
		if node == dst && len(edges) > 0 {
			if coversAll(nodes, required) {
				found = append(found, path{
					nodes: slices.Clone(nodes),
					edges: slices.Clone(edges),
				})
			}
			return
		}
		if len(edges) == maxLen {
			return
		}
		for _, ed := range adj[node] {
			if onPath[ed.to] || excluded[ed.to] {
				continue
			}
			onPath[ed.to] = true
			walk(ed.to, append(nodes, ed.to), append(edges, ed.assertion), onPath)
			delete(onPath, ed.to)
		}
	}
	walk(src, []string{src}, nil, map[string]bool{src: true})

	slices.SortStableFunc(found, func(a, b path) int {
		if d := len(a.edges) - len(b.edges); d != 0 {
			return d
		}
		return strings.Compare(strings.Join(a.nodes, "|"), strings.Join(b.nodes, "|"))
	})

	payload := ir.Payload{}
	for _, p := range found {
		if len(payload) == maxPaths {
			break
		}
		key := pathKey(p.nodes)
		if _, dup := payload[key]; dup {
			// Parallel statements between the same nodes form the same answer.
			continue
		}
		evidence := make([]ir.Evidence, len(p.edges))
		for i, a := range p.edges {
			evidence[i] = a.Evidence()
		}
		payload[key] = evidence
	}
	return payload
}

func entityKeys(ents []ir.Entity) map[string]bool {
	keys := make(map[string]bool, len(ents))
	for _, e := range ents {
		keys[e.Key()] = true
	}
	return keys
}

func coversAll(nodes []string, required map[string]bool) bool {
	for k := range required {
		if !slices.Contains(nodes, k) {
			return false
		}
	}
	return true
}

// pathKey is the answer identity of a node sequence.
func pathKey(nodes []string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.Join(nodes, "|")))
	return fmt.Sprintf("%08x", h.Sum32())
}
