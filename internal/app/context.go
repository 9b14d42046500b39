// Package app wires a workspace: configuration, database, engine and notification outbox.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"staffline/internal/config"
	"staffline/internal/db"
	"staffline/internal/engine"
	"staffline/internal/jobs"
	"staffline/internal/migrate"
	"staffline/internal/notify"
)

type Options struct {
	Workspace string
	// ConfigPath overrides <workspace>/staffline.yml.
	ConfigPath string
	// Driver and DSN override the database section of the config file.
	Driver string
	DSN    string
	Logger *slog.Logger
}

// Workspace is an opened, migrated workspace ready to serve commands.
type Workspace struct {
	Config     *config.Config
	Conn       *db.Conn
	Engine     engine.Engine
	Dispatcher *notify.Dispatcher
	Logger     *slog.Logger
}

// Open loads configuration, opens and migrates the database, seeds the catalog and
// attaches the notification dispatcher so every commit wakes it up.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	dbCfg := db.Config{Workspace: opts.Workspace, Driver: cfg.Database.Driver, DSN: cfg.Database.DSN}
	if strings.TrimSpace(opts.Driver) != "" {
		dbCfg.Driver = opts.Driver
	}
	if strings.TrimSpace(opts.DSN) != "" {
		dbCfg.DSN = opts.DSN
	}
	conn, err := db.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	e := engine.New(conn, cfg)
	e.Logger = logger
	if _, err := e.SeedCatalog(ctx, cfg.Catalog); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed catalog: %w", err)
	}

	// Notifications cover what happens from now on; older events stay in the log.
	latest, err := e.Repo.LatestEventID(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	d := notify.NewDispatcher(e.Repo, notify.WithLogger(logger), notify.WithCursor(latest))
	if err := notify.Configure(d, cfg.Notifications, logger); err != nil {
		conn.Close()
		return nil, err
	}
	e.AfterCommit = d.Kick

	return &Workspace{Config: cfg, Conn: conn, Engine: e, Dispatcher: d, Logger: logger}, nil
}

func loadConfig(opts Options) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.FromFile(opts.ConfigPath)
	}
	return config.LoadOptional(opts.Workspace)
}

// Sweeper returns the offer-expiry job configured for this workspace.
func (w *Workspace) Sweeper() *jobs.Sweeper {
	return jobs.NewSweeper(w.Engine, w.Config.Booking.OfferTTLDuration(), w.Config.Booking.SweepIntervalDuration(), w.Logger)
}

// Flush delivers pending notifications once. CLI commands call it before exiting.
func (w *Workspace) Flush(ctx context.Context) {
	if w.Dispatcher.Len() > 0 {
		w.Dispatcher.DispatchOnce(ctx)
	}
}

func (w *Workspace) Close() error {
	return w.Conn.Close()
}
