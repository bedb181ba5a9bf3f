package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cityair/conductor/internal/cache"
	"github.com/cityair/conductor/internal/config"
	"github.com/cityair/conductor/internal/database"
	"github.com/cityair/conductor/internal/dispatch"
	"github.com/cityair/conductor/internal/docsearch"
	"github.com/cityair/conductor/internal/export"
	"github.com/cityair/conductor/internal/gate"
	"github.com/cityair/conductor/internal/log"
	"github.com/cityair/conductor/internal/observability"
	"github.com/cityair/conductor/internal/sensordata"
	"github.com/cityair/conductor/internal/session"
)

// Background sweep intervals.
const (
	sessionSweepInterval = time.Minute
	exportSweepInterval  = 5 * time.Minute
)

// Setup builds the full engine from configuration. Call Close on the
// returned App to release everything; on error, anything already
// initialized has been cleaned up.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			AgentHost:   cfg.Telemetry.AgentHost,
			Environment: cfg.Telemetry.Environment,
			ServiceName: cfg.Telemetry.ServiceName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
		a.otelShutdown = shutdown
	}

	pool, err := providePool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	registry, err := dispatch.BuildRegistry()
	if err != nil {
		return nil, fmt.Errorf("building tool registry: %w", err)
	}
	a.Registry = registry
	a.Catalog = registry.Catalog()

	a.stop = make(chan struct{})

	a.Sessions = session.NewStore(
		cfg.HistorySize,
		time.Duration(cfg.SessionIdleMinutes)*time.Minute,
		logger.With("component", "session"),
	)
	go a.Sessions.Sweep(sessionSweepInterval, a.stop)

	a.Gate = gate.New(cfg.RatePerMinute, cfg.AdminCallers, logger.With("component", "gate"))
	a.Cache = cache.New(
		time.Duration(cfg.CacheTTLSeconds)*time.Second,
		logger.With("component", "cache"),
	)

	sensors, err := sensordata.NewClient(pool, logger.With("component", "sensordata"))
	if err != nil {
		return nil, fmt.Errorf("creating sensor data client: %w", err)
	}

	documents, err := provideDocumentSearch(ctx, cfg, pool, logger)
	if err != nil {
		return nil, err
	}
	a.Documents = documents

	spool, err := export.NewSpool(
		cfg.ExportDir,
		time.Duration(cfg.ExportTTLMinutes)*time.Minute,
		logger.With("component", "export"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating export spool: %w", err)
	}
	a.Exports = spool
	go spool.Run(exportSweepInterval, a.stop)

	dispatcher, err := dispatch.New(dispatch.Deps{
		Registry:  registry,
		Sessions:  a.Sessions,
		Gate:      a.Gate,
		Cache:     a.Cache,
		Sensors:   sensors,
		Documents: documents,
		Exports:   spool,
	}, dispatch.Options{
		Timeout:       time.Duration(cfg.ToolTimeoutSeconds) * time.Second,
		MaxExportRows: cfg.ExportMaxRows,
	}, logger.With("component", "dispatch"))
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	a.Dispatcher = dispatcher

	return a, nil
}

// providePool runs migrations and opens the connection pool.
func providePool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := database.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	return pool, nil
}

// provideDocumentSearch assembles the pgvector chunk store behind the Gemini
// embedder.
func provideDocumentSearch(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger log.Logger) (*docsearch.Adapter, error) {
	embedder, err := docsearch.NewGeminiEmbedder(ctx, cfg.EmbedderModel, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	store, err := docsearch.NewPGStore(pool)
	if err != nil {
		return nil, fmt.Errorf("creating chunk store: %w", err)
	}

	return docsearch.NewAdapter(store, embedder, logger.With("component", "docsearch"))
}
