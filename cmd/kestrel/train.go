package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/drift"
	"github.com/opensource-finance/kestrel/internal/modelstore"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/train"
	"github.com/opensource-finance/kestrel/internal/worker"
)

func trainCmd() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run the retraining orchestrator",
		Long: `Checks the new-row watermark, evaluates drift, trains the
candidate roster for both targets, versions the winners and advances
the watermark. With --watch, keeps running and retrains whenever a
labeling run completes or the interval elapses.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return fmt.Errorf("failed to initialize repository: %w", err)
			}
			defer repo.Close()

			store, err := modelstore.New(ctx, cfg.ModelStore)
			if err != nil {
				return fmt.Errorf("failed to initialize model store: %w", err)
			}

			eventBus, err := bus.New(cfg.EventBus)
			if err != nil {
				return fmt.Errorf("failed to initialize event bus: %w", err)
			}
			defer eventBus.Close()

			orchestrator := train.NewOrchestrator(
				repo, store, eventBus,
				drift.NewMonitor(cfg.Drift),
				train.NewStateStore(cfg.Training.StatePath),
				train.NewTrainingLog(cfg.Training.LogPath),
				cfg.Training,
				slog.Default(),
			)

			if watch {
				sched := worker.NewScheduler(eventBus, orchestrator, interval, slog.Default())
				if err := sched.Start(); err != nil {
					return fmt.Errorf("failed to start scheduler: %w", err)
				}
				defer sched.Stop()

				<-ctx.Done()
				return nil
			}

			result, err := orchestrator.Run(ctx)
			if err != nil {
				return fmt.Errorf("retraining run failed: %w", err)
			}
			if result.Skipped {
				fmt.Printf("skipped: %d new rows below threshold %d\n",
					result.NewRows, cfg.Training.MinNewRows)
				return nil
			}

			fmt.Printf("trained %s on %d rows\n", result.Version, result.TrainedRows)
			for target, mv := range result.Models {
				fmt.Printf("  %s: %s (f1_macro=%.4f accuracy=%.4f)\n",
					target, mv.ModelName, mv.Metrics.F1Macro, mv.Metrics.Accuracy)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and retrain on labeling events")
	cmd.Flags().DurationVar(&interval, "interval", 0, "additional fixed retraining interval with --watch (0 = event-driven only)")
	return cmd
}
