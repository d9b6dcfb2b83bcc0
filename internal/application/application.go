// Package application wires configuration, storage and the external clients
// into a core.Service. The HTTP server and the CLI share it.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/JonMunkholm/reviewflow/internal/config"
	"github.com/JonMunkholm/reviewflow/internal/core"
	"github.com/JonMunkholm/reviewflow/internal/database"
	"github.com/JonMunkholm/reviewflow/internal/enum"
	"github.com/JonMunkholm/reviewflow/internal/normalize"
	"github.com/JonMunkholm/reviewflow/internal/services/catalog"
	"github.com/JonMunkholm/reviewflow/internal/services/forms"
	"github.com/jackc/pgx/v5/pgxpool"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config  *config.Config
	Pool    *database.Pool
	Service *core.Service
}

// Open connects to the database and builds the service. Clients whose
// configuration is absent are left out, which disables their stage.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	aliases, err := enum.NewAliases(normalize.DefaultAliases())
	if err != nil {
		pool.Raw().Close()
		return nil, fmt.Errorf("default aliases: %w", err)
	}

	opts := core.Options{
		Aliases:           aliases,
		BatchSize:         cfg.Pipeline.BatchSize,
		PageSize:          cfg.Forms.PageSize,
		CacheTTL:          cfg.Pipeline.CacheTTL,
		ProgressInterval:  cfg.Pipeline.ProgressInterval,
		MaxConcurrentRuns: cfg.Pipeline.MaxConcurrentRuns,
		RunWaitTime:       cfg.Pipeline.RunWaitTime,
	}

	// Assign through typed variables only when configured so a nil client
	// never becomes a non-nil interface.
	if cfg.Forms.Enabled() {
		fc, err := forms.New(cfg.Forms.BaseURL, cfg.Forms.FormID, cfg.Forms.Token,
			forms.WithHTTPClient(&http.Client{Timeout: cfg.Forms.Timeout}))
		if err != nil {
			pool.Raw().Close()
			return nil, fmt.Errorf("forms client: %w", err)
		}
		opts.Forms = fc
	} else {
		slog.Warn("forms API not configured, ingest disabled")
	}

	if cfg.Catalog.Enabled() {
		cc, err := catalog.New(cfg.Catalog.BaseURL, cfg.Catalog.Token,
			catalog.WithAPIVersion(cfg.Catalog.APIVersion),
			catalog.WithHTTPClient(&http.Client{Timeout: cfg.Catalog.Timeout}))
		if err != nil {
			pool.Raw().Close()
			return nil, fmt.Errorf("catalog client: %w", err)
		}
		opts.Catalog = cc
	} else {
		slog.Warn("catalog API not configured, product matching disabled")
	}

	return &App{
		Config:  cfg,
		Pool:    pool,
		Service: core.NewService(pool, opts),
	}, nil
}

func connect(ctx context.Context, cfg config.DatabaseConfig) (*database.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return database.NewPool(pool, cfg.AcquireTimeout), nil
}

// Migrate applies the schema.
func (a *App) Migrate(ctx context.Context) error {
	return database.Migrate(ctx, a.Pool.Raw())
}

// ImportRulesFile loads path and makes it the active rule set. An empty
// path is a no-op.
func (a *App) ImportRulesFile(ctx context.Context, path string) (*core.ImportResult, error) {
	if path == "" {
		return nil, nil
	}
	f, err := normalize.LoadFile(path)
	if err != nil {
		return nil, err
	}
	res, err := a.Service.ImportRules(ctx, f)
	if err != nil {
		return nil, err
	}
	slog.Info("title rules imported",
		"file", path,
		"rules", res.Rules,
		"exceptions", res.Exceptions,
		"aliases", res.Aliases,
	)
	return res, nil
}

// Close releases the database pool.
func (a *App) Close() {
	a.Pool.Raw().Close()
}
