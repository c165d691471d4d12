package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/vigil/internal/artifact"
	"github.com/roach88/vigil/internal/config"
	"github.com/roach88/vigil/internal/grounding"
	"github.com/roach88/vigil/internal/model"
	"github.com/roach88/vigil/internal/modelcache"
	"github.com/roach88/vigil/internal/query"
	"github.com/roach88/vigil/internal/store"
)

// app is the wired service stack shared by the commands.
type app struct {
	store     *store.Store
	artifacts artifact.Store
	cache     *modelcache.Cache
	mgr       *query.Manager

	closers []func() error
}

// openArtifacts selects the artifact store named by cfg.
func openArtifacts(ctx context.Context, cfg config.ArtifactsConfig) (artifact.Store, func() error, error) {
	switch {
	case cfg.Bucket != "":
		gcs, err := artifact.NewGCS(ctx, cfg.Bucket, cfg.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return gcs, gcs.Close, nil
	case cfg.Dir != "":
		return artifact.NewDir(cfg.Dir), nil, nil
	default:
		return nil, nil, errors.New("no artifact store configured: set artifacts.bucket or artifacts.dir")
	}
}

// newGrounder chains the grounding service before the local table. Nil
// when neither is configured.
func newGrounder(cfg config.GroundingConfig) (grounding.Grounder, error) {
	var chain grounding.Chain
	if cfg.URL != "" {
		chain = append(chain, grounding.NewService(cfg.URL, cfg.Timeout))
	}
	if cfg.Table != "" {
		table, err := grounding.LoadTable(cfg.Table)
		if err != nil {
			return nil, err
		}
		chain = append(chain, table)
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain, nil
}

// openApp opens the ledger and wires the query manager from cfg.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	arts, closeArts, err := openArtifacts(ctx, cfg.Artifacts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open artifacts", err)
	}
	a := &app{artifacts: arts}
	if closeArts != nil {
		a.closers = append(a.closers, closeArts)
	}

	grounder, err := newGrounder(cfg.Grounding)
	if err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "load grounding table", err)
	}

	st, err := store.Open(cfg.DB)
	if err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open database %s", cfg.DB), err)
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	a.cache = modelcache.New(arts,
		modelcache.WithMaxEntries(cfg.Cache.MaxEntries),
		modelcache.WithFetchTimeout(cfg.Artifacts.FetchTimeout),
		modelcache.WithLogger(logger),
	)

	opts := []query.Option{
		query.WithLogger(logger),
		query.WithFindDelta(cfg.Sweep.FindDelta),
	}
	if grounder != nil {
		opts = append(opts, query.WithGrounder(grounder))
	}
	a.mgr, err = query.NewManager(st, a.cache, model.Evaluator{}, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
