// Package app wires the engine together: database pool, schema registry,
// session store, rate gate, aggregation cache, data clients, export spool,
// and the dispatcher that fronts them. Both the HTTP server and the MCP
// server are built on top of one App.
package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cityair/conductor/internal/cache"
	"github.com/cityair/conductor/internal/config"
	"github.com/cityair/conductor/internal/dispatch"
	"github.com/cityair/conductor/internal/docsearch"
	"github.com/cityair/conductor/internal/export"
	"github.com/cityair/conductor/internal/gate"
	"github.com/cityair/conductor/internal/log"
	"github.com/cityair/conductor/internal/schema"
	"github.com/cityair/conductor/internal/session"
)

const shutdownTimeout = 5 * time.Second

// App is the assembled engine.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool       *pgxpool.Pool
	Registry   *schema.Registry
	Catalog    []schema.ToolSchema
	Sessions   *session.Store
	Gate       *gate.Gate
	Cache      *cache.Cache
	Documents  *docsearch.Adapter
	Exports    *export.Spool
	Dispatcher *dispatch.Dispatcher

	// stop terminates the background sweeps (session expiry, export spool).
	stop         chan struct{}
	otelShutdown func(context.Context) error
}

// Close stops background sweeps, flushes telemetry, and closes the pool.
func (a *App) Close() error {
	a.Logger.Info("shutting down")

	if a.stop != nil {
		close(a.stop)
		a.stop = nil
	}

	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Logger.Warn("shutting down tracer provider", "error", err)
		}
		a.otelShutdown = nil
	}

	if a.Pool != nil {
		a.Pool.Close()
		a.Pool = nil
		a.Logger.Info("database pool closed")
	}

	return nil
}
