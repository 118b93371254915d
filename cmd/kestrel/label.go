package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/label"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func labelCmd() *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "label",
		Short: "Run one labeling pass over the source table",
		Long: `Reads raw transactions, derives features, scores them with the
rule scorer and the isolation forest, and wholesale-replaces the
labeled table. Publishes a completion event on the bus.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if limit > 0 {
				cfg.Labeling.MaxRows = limit
			}

			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return fmt.Errorf("failed to initialize repository: %w", err)
			}
			defer repo.Close()

			eventBus, err := bus.New(cfg.EventBus)
			if err != nil {
				return fmt.Errorf("failed to initialize event bus: %w", err)
			}
			defer eventBus.Close()

			pipeline, err := label.NewPipeline(repo, eventBus, cfg.Labeling, cfg.Anomaly, slog.Default())
			if err != nil {
				return err
			}

			result, err := pipeline.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("labeling run failed: %w", err)
			}

			fmt.Printf("labeled %d rows in %dms (by level: %v)\n",
				result.Rows, result.DurationMs, result.ByLevel)
			return nil
		},
	}

	cmd.Flags().Int64Var(&limit, "limit", 0, "cap on source rows read (0 = config default)")
	return cmd
}
