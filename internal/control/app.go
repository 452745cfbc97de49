// Package control wires the application together: database, cache, retry
// executor, HTTP server, and background workers.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ddvo/chorelist/internal/chores"
	"github.com/ddvo/chorelist/internal/core/config"
	"github.com/ddvo/chorelist/internal/core/worker"
	"github.com/ddvo/chorelist/internal/infra/cache"
	"github.com/ddvo/chorelist/internal/infra/storage/postgres"
	"github.com/ddvo/chorelist/internal/server"
	"github.com/ddvo/chorelist/internal/txretry"
)

// App owns the process-level components and their shutdown order.
type App struct {
	cfg    *config.AppConfig
	db     *postgres.DB
	cache  *cache.ListCache
	svc    *chores.Service
	server *server.Server
	pruner *worker.Pruner
	cancel context.CancelFunc
}

// NewApp connects to the dependencies and assembles the service.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	var listCache *cache.ListCache
	var svcCache chores.ListCache
	if cfg.Cache.URL != "" {
		listCache, err = cache.New(cfg.Cache)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		svcCache = listCache
	}

	exec := txretry.New(db, cfg.Retry.Budget(),
		txretry.WithClassifier(postgres.Classifier{}))
	svc := chores.NewService(exec, postgres.Items, svcCache)

	checks := map[string]server.HealthCheck{
		"database": db.PingContext,
	}
	if listCache != nil {
		checks["cache"] = listCache.Ping
	}

	return &App{
		cfg:    cfg,
		db:     db,
		cache:  listCache,
		svc:    svc,
		server: server.New(svc, checks, cfg.Server.Port),
		pruner: worker.NewPruner(cfg.Retention, svc),
	}, nil
}

// Service exposes the wired shopping list service, used by CLI commands.
func (a *App) Service() *chores.Service {
	return a.svc
}

// DB exposes the database handle, used by CLI commands.
func (a *App) DB() *postgres.DB {
	return a.db
}

// Start launches the HTTP server and background workers.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
		}
	}()
	go a.pruner.Start(runCtx)

	slog.Info("chorelist started", "port", a.cfg.Server.Port)
	return nil
}

// Stop shuts everything down, HTTP first so in-flight requests drain.
func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	err := a.server.Stop(ctx)
	if a.cache != nil {
		_ = a.cache.Close()
	}
	_ = a.db.Close()
	return err
}

// Close releases connections without going through the server lifecycle.
// Used by one-shot CLI commands.
func (a *App) Close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	_ = a.db.Close()
}
