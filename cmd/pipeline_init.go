package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/andre-sav/HADES-sub001/internal/budget"
	"github.com/andre-sav/HADES-sub001/internal/dedup"
	"github.com/andre-sav/HADES-sub001/internal/pipeline"
	"github.com/andre-sav/HADES-sub001/internal/scoring"
	"github.com/andre-sav/HADES-sub001/internal/store"
)

// pipelineEnv holds the store, engines, and pipeline shared by the qualify
// and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Budget   *budget.Controller
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config, opens and migrates the store, and wires the
// scoring, dedup, and budget components into a Pipeline. Callers should
// defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("qualify"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	bc := budget.NewController(st, cfg.Budget)
	p := pipeline.New(cfg, scoring.New(cfg.Scoring), dedup.New(cfg.Dedup), bc, st)

	return &pipelineEnv{
		Store:    st,
		Budget:   bc,
		Pipeline: p,
	}, nil
}
