package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"taskboard/internal/config"
	"taskboard/internal/configstore"
	"taskboard/internal/storage"
	"taskboard/internal/storage/mongodb"
	"taskboard/internal/storage/postgres"
	"taskboard/internal/storage/sqlite"
	"taskboard/internal/tasks"
)

var errFileBackend = errors.New("command needs a document store; backend is file")

type app struct {
	configPath string
}

// env is everything a command needs, opened from the configuration.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	store  storage.Store
	file   *configstore.Store
	repo   *tasks.Repository
}

func (a *app) open(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	store, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	file := configstore.New(cfg.DataFile, logger)
	return &env{
		cfg:    cfg,
		logger: logger,
		store:  store,
		file:   file,
		repo:   tasks.New(store, file, logger),
	}, nil
}

func (e *env) Close() {
	if e.store == nil {
		return
	}
	if err := e.store.Close(); err != nil {
		e.logger.Warn("closing store failed", slog.String("error", err.Error()))
	}
}

// openStore returns nil for the file backend.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)
	switch cfg.Backend {
	case config.BackendFile:
		return nil, nil
	case config.BackendSQLite:
		store, err = sqlite.Open(cfg.SQLitePath, logger)
	case config.BackendPostgres:
		ctx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		store, err = postgres.Open(ctx, cfg.PostgresDSN, logger)
	case config.BackendMongo:
		ctx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		store, err = mongodb.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	logger.Info("document store opened", slog.String("backend", cfg.Backend))
	return storage.WithTimeout(store, cfg.StoreTimeout), nil
}
