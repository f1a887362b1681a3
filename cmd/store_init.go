package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/andre-sav/HADES-sub001/internal/store"
)

// initStore opens the configured persistence backend. SQLite is the default
// driver so the CLI works with zero infrastructure; Postgres is for shared
// deployments.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "hades.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
