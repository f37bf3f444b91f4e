package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/roach88/folio/internal/compiler"
	"github.com/roach88/folio/internal/config"
	"github.com/roach88/folio/internal/engine"
	"github.com/roach88/folio/internal/model"
	"github.com/roach88/folio/internal/outbox"
	"github.com/roach88/folio/internal/remote"
	"github.com/roach88/folio/internal/store"
)

// runtime is the set of local components a command works with.
type runtime struct {
	cfg     *config.Config
	store   *store.Store
	outbox  *outbox.Outbox
	remote  *remote.Client
	catalog *model.Catalog
	engine  *engine.Engine
	log     zerolog.Logger
}

// openRuntime opens the local database and wires the engine to the
// configured backend. Close releases the database.
func openRuntime(ctx context.Context, opts *RootOptions) (*runtime, error) {
	cfg := opts.Config
	log := opts.Log

	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load form catalog", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create database directory", err)
	}
	log.Debug().Str("path", cfg.DBPath).Msg("opening database")
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	remoteOpts := []remote.Option{
		remote.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		remote.WithLogger(log),
	}
	if cfg.SessionCookie != "" {
		remoteOpts = append(remoteOpts, remote.WithSessionCookie(cfg.SessionCookie))
	}
	rc, err := remote.New(cfg.BackendURL, remoteOpts...)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "invalid backend url", err)
	}

	ob := outbox.New(st)
	eng := engine.New(st, ob, rc, catalog,
		engine.WithLogger(log),
		engine.WithSyncInterval(cfg.SyncInterval),
		engine.WithProbeInterval(cfg.ProbeInterval),
	)
	eng.RefreshPending(ctx)

	return &runtime{
		cfg:     cfg,
		store:   st,
		outbox:  ob,
		remote:  rc,
		catalog: catalog,
		engine:  eng,
		log:     log,
	}, nil
}

// Close releases the database.
func (r *runtime) Close() {
	if err := r.store.Close(); err != nil {
		r.log.Error().Err(err).Msg("error closing database")
	}
}

// loadCatalog returns the built-in form catalog, or the one declared in dir.
func loadCatalog(dir string) (*model.Catalog, error) {
	if dir == "" {
		return compiler.DefaultCatalog()
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("catalog directory not found: %s", dir)
	}
	return compiler.LoadCatalogDir(dir)
}
