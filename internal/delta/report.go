package delta

import (
	"context"
	"fmt"

	"github.com/roach88/vigil/internal/ir"
	"github.com/roach88/vigil/internal/store"
)

// Resolver looks up the order-th most recent result per (hash, checker type).
// *store.Store implements it.
type Resolver interface {
	Resolve(ctx context.Context, hashes []ir.QueryHash, order int) ([]store.Result, error)
}

// Report is the classified outcome for one (model, query, checker type).
type Report struct {
	ModelID     string
	Query       ir.Query
	CheckerType string
	Kind        Kind
	Current     ir.Payload
	// Previous is nil when Kind is First.
	Previous ir.Payload
}

type reportKey struct {
	hash    ir.QueryHash
	checker string
}

// Build classifies every (model, query, checker type) in batch against its
// previous result. Each triple is reported once; the first occurrence in
// batch wins.
//
// stored tells Build whether batch is already in the ledger. If so the
// previous result is the second most recent (order 2), otherwise the most
// recent (order 1).
func Build(ctx context.Context, r Resolver, batch []store.Result, stored bool) ([]Report, error) {
	order := 1
	if stored {
		order = 2
	}

	type item struct {
		key reportKey
		res store.Result
	}
	var (
		items  []item
		seen   = make(map[reportKey]bool)
		hashes []ir.QueryHash
		hashed = make(map[ir.QueryHash]bool)
	)
	for _, res := range batch {
		h := res.Hash
		if h == 0 {
			var err error
			if h, err = res.Query.HashWithModel(res.ModelID); err != nil {
				return nil, fmt.Errorf("build reports: %w", err)
			}
		}
		key := reportKey{hash: h, checker: res.CheckerType}
		if seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, item{key: key, res: res})
		if !hashed[h] {
			hashed[h] = true
			hashes = append(hashes, h)
		}
	}

	previous := make(map[reportKey]ir.Payload)
	if len(hashes) > 0 {
		prior, err := r.Resolve(ctx, hashes, order)
		if err != nil {
			return nil, fmt.Errorf("build reports: %w", err)
		}
		for _, p := range prior {
			previous[reportKey{hash: p.Hash, checker: p.CheckerType}] = p.Payload
		}
	}

	reports := make([]Report, 0, len(items))
	for _, it := range items {
		prev, ok := previous[it.key]
		rep := Report{
			ModelID:     it.res.ModelID,
			Query:       it.res.Query,
			CheckerType: it.res.CheckerType,
			Kind:        Classify(it.res.Payload, prev, ok),
			Current:     it.res.Payload,
		}
		if ok {
			rep.Previous = prev
		}
		reports = append(reports, rep)
	}
	return reports, nil
}
