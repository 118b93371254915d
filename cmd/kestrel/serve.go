package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/drift"
	"github.com/opensource-finance/kestrel/internal/modelstore"
	"github.com/opensource-finance/kestrel/internal/profile"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/train"
	"github.com/opensource-finance/kestrel/internal/worker"
)

func serveCmd() *cobra.Command {
	var retrain bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve classifications over HTTP",
		Long: `Loads the latest model artifacts and serves POST /predict and
POST /predict/batch. With --retrain, also runs the retraining
scheduler in-process, picking up labeling completion events.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			slog.Info("starting kestrel",
				"version", Version,
				"repository", cfg.Repository.Driver,
				"cache", cfg.Cache.Type,
				"eventbus", cfg.EventBus.Type,
				"modelstore", cfg.ModelStore.Backend,
			)

			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return fmt.Errorf("failed to initialize repository: %w", err)
			}
			defer repo.Close()

			cacheImpl, err := cache.New(cfg.Cache)
			if err != nil {
				return fmt.Errorf("failed to initialize cache: %w", err)
			}
			defer cacheImpl.Close()

			eventBus, err := bus.New(cfg.EventBus)
			if err != nil {
				return fmt.Errorf("failed to initialize event bus: %w", err)
			}
			defer eventBus.Close()

			store, err := modelstore.New(ctx, cfg.ModelStore)
			if err != nil {
				return fmt.Errorf("failed to initialize model store: %w", err)
			}

			profiles := profile.NewService(repo, cacheImpl, cfg.Cache.LocalTTL)

			predictor, err := api.NewPredictor(store, profiles, cfg.Labeling)
			if err != nil {
				return fmt.Errorf("failed to initialize predictor: %w", err)
			}
			if err := predictor.Reload(ctx); err != nil {
				// Serve /health and /ready anyway; reload via the API
				// once a training run has produced artifacts.
				slog.Warn("no models loaded yet", "error", err)
			}

			if retrain {
				orchestrator := train.NewOrchestrator(
					repo, store, eventBus,
					drift.NewMonitor(cfg.Drift),
					train.NewStateStore(cfg.Training.StatePath),
					train.NewTrainingLog(cfg.Training.LogPath),
					cfg.Training,
					slog.Default(),
				)
				sched := worker.NewScheduler(eventBus, orchestrator, 0, slog.Default())
				if err := sched.Start(); err != nil {
					return fmt.Errorf("failed to start scheduler: %w", err)
				}
				defer sched.Stop()
			}

			srv := api.NewServer(cfg.Server, repo, cacheImpl, store, predictor, Version)

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			slog.Info("kestrel is ready",
				"host", cfg.Server.Host,
				"port", cfg.Server.Port,
				"models_loaded", predictor.Ready(),
			)

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("server forced to shutdown", "error", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&retrain, "retrain", false, "run the retraining scheduler in-process")
	return cmd
}
