package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"taskboard/internal/migration"
	"taskboard/internal/scheduler"
	"taskboard/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			return serve(cmd.Context(), e)
		},
	}
}

func serve(ctx context.Context, e *env) error {
	logger := e.logger
	logger.Info("taskboard starting", slog.String("backend", e.repo.Backend()), slog.String("data_file", e.cfg.DataFile))

	if e.cfg.AutoMigrate && e.store != nil {
		res, err := e.repo.Migrate(ctx)
		switch {
		case errors.Is(err, migration.ErrNoSourceData):
			logger.Info("startup migration skipped, data file is empty")
		case err != nil:
			logger.Error("startup migration failed", slog.String("error", err.Error()))
		case !res.Skipped:
			logger.Info("startup migration done", slog.Int("categories", res.CategoriesMigrated), slog.Int("tasks", res.TasksMigrated))
		}
	}

	jobs := scheduler.New(logger, e.cfg.SnapshotInterval)
	if e.cfg.SnapshotInterval > 0 && e.store != nil {
		if _, err := jobs.Every(e.cfg.SnapshotInterval, "snapshot-sync", e.repo.SyncFile); err != nil {
			return err
		}
		jobs.RunNow("snapshot-sync", e.repo.SyncFile)
		jobs.Start()
		defer jobs.Stop()
		logger.Info("snapshot sync scheduled", slog.Duration("interval", e.cfg.SnapshotInterval))
	}

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(e.repo, logger, e.cfg.StaticDir)
	httpServer := &http.Server{
		Addr:              e.cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
			return err
		}
	case <-quit:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
	return nil
}
