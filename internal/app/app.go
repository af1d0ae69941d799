// Package app assembles a runnable engine from a workspace: database,
// configuration, AI backends, archive and connectivity monitor.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"foodbridge/internal/archive"
	"foodbridge/internal/config"
	"foodbridge/internal/db"
	"foodbridge/internal/engine"
	"foodbridge/internal/logger"
	"foodbridge/internal/migrate"
	"foodbridge/internal/netwatch"
	"foodbridge/internal/vision"
)

// Runtime owns everything opened for one workspace.
type Runtime struct {
	DB      *sql.DB
	Config  *config.Config
	Engine  engine.Engine
	Monitor *netwatch.Monitor
}

// Open prepares the workspace, migrates the database and loads
// foodbridge.yml, falling back to the built-in defaults.
func Open(ctx context.Context, workspace string, log *logger.Logger) (*Runtime, error) {
	if log == nil {
		log = logger.Discard()
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e, mon, err := Build(ctx, conn, cfg, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Runtime{DB: conn, Config: cfg, Engine: e, Monitor: mon}, nil
}

// Build wires the engine's collaborators from cfg. The monitor is returned
// unstarted.
func Build(ctx context.Context, conn *sql.DB, cfg *config.Config, log *logger.Logger) (engine.Engine, *netwatch.Monitor, error) {
	e := engine.New(conn, cfg)
	e.Log = log

	mon := netwatch.New(cfg.Connectivity.ProbeAddr,
		time.Duration(cfg.Connectivity.IntervalSeconds)*time.Second,
		time.Duration(cfg.Connectivity.TimeoutSeconds)*time.Second,
		log)

	key := cfg.APIKey()
	if key == "" {
		log.Warn("%s is not set; classification will fail until it is", cfg.AI.APIKeyEnv)
	}
	gen, err := vision.NewGenerator(cfg.AI, key, log)
	if err != nil {
		return engine.Engine{}, nil, err
	}
	timeout := time.Duration(cfg.AI.TimeoutSeconds) * time.Second
	e.Classifier = vision.NewClassifier(gen, cfg.Prompts.ClassifySystem, cfg.Prompts.ClassifyUser, mon, timeout, log)
	if cfg.Matching.Scorer == config.ScorerAI {
		e.Scorer = vision.NewScorer(gen, cfg.Prompts.MatchSystem, mon, timeout, log)
	}

	store, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		return engine.Engine{}, nil, err
	}
	e.Archive = store
	return e, mon, nil
}

// Close stops background work and releases the database.
func (r *Runtime) Close() error {
	r.Engine.StopAll()
	if r.Monitor != nil {
		r.Monitor.Stop()
	}
	return r.DB.Close()
}
