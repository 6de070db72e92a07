package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/michaelbrown/cmdbox/internal/config"
	"github.com/michaelbrown/cmdbox/internal/engine"
	"github.com/michaelbrown/cmdbox/internal/metrics"
	"github.com/michaelbrown/cmdbox/internal/sandbox"
	"github.com/michaelbrown/cmdbox/internal/storage"
	"github.com/michaelbrown/cmdbox/internal/storage/sqlite"
	"github.com/michaelbrown/cmdbox/internal/tutorial"
)

// app bundles everything a command needs. Close releases the store.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *engine.Engine
	store   storage.Store // nil when history is disabled
	metrics *metrics.Collector
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// setup loads configuration and builds the engine. Logs go to logOut.
func setup(logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger, err := config.NewLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}

	ws, err := sandbox.NewWorkspace(cfg.Sandbox.Root)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}

	policy := cfg.Policy()
	var runner sandbox.Runner
	switch cfg.Sandbox.Backend {
	case "docker":
		runner = sandbox.NewDockerRunner(policy, sandbox.DockerConfig{
			Image:   cfg.Sandbox.Docker.Image,
			Memory:  cfg.Sandbox.Docker.Memory,
			Network: cfg.Sandbox.Docker.Network,
		}, ws.Root(), logger)
	default:
		runner = sandbox.NewShellRunner(policy, logger)
	}

	steps := tutorial.DefaultSteps(ws.Root())
	if cfg.Tutorial.StepsFile != "" {
		steps, err = tutorial.LoadSteps(cfg.Tutorial.StepsFile, ws.Root())
		if err != nil {
			return nil, err
		}
	}
	machine, err := tutorial.New(steps)
	if err != nil {
		return nil, err
	}

	var store storage.Store
	if cfg.Storage.History {
		store, err = openStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	collector := metrics.New()
	eng := engine.New(ws, runner, policy, machine, engine.Options{
		Store:   store,
		Metrics: collector,
		Logger:  logger,
	})

	logger.Info("sandbox ready",
		slog.String("root", ws.Root()),
		slog.String("backend", cfg.Sandbox.Backend),
		slog.Bool("history", store != nil),
		slog.Int("tutorial_steps", len(steps)),
	)

	return &app{cfg: cfg, logger: logger, engine: eng, store: store, metrics: collector}, nil
}

// openStore opens the history database, creating its directory if needed.
func openStore(cfg *config.Config) (*sqlite.SQLiteStore, error) {
	if !cfg.Storage.History {
		return nil, errors.New("history is disabled (storage.history: false)")
	}
	if cfg.Storage.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}
