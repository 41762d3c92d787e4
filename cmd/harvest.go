package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-harvester/internal/app"
	"github.com/JakeFAU/review-harvester/internal/scheduler"
)

const closeTimeout = 15 * time.Second

func newHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest reviews for every pending venue",
		Long: `Loads the venue list, skips venues that already have a workbook, and
walks the rest on a bounded worker pool. Ctrl-C stops new venues from
starting; venues already in flight are finished and saved.`,
		Args: cobra.NoArgs,
		RunE: runHarvest,
	}
	cmd.Flags().Int("concurrency", scheduler.DefaultConcurrency, "venues harvested in parallel")
	cmd.Flags().Int("max-pages", 0, "stop each venue after this many pages (0 = no limit)")
	cmd.Flags().String("metrics-addr", "", "serve /metrics and /healthz on this address")
	cmd.Flags().Bool("headless", false, "render script-only pages with headless Chrome")
	return cmd
}

func runHarvest(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}

	a, err := app.Build(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), closeTimeout)
		defer cancel()
		if cerr := a.Close(ctx); cerr != nil {
			rt.logger.Warn("shutdown incomplete", zap.Error(cerr))
		}
	}()

	stats, err := a.Run(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(),
		"run %s: %d targets, %d skipped, %d done, %d empty, %d failed, %d not started\n",
		stats.RunID, stats.Total, stats.Skipped, stats.Done, stats.Empty, stats.Failed,
		stats.Pending-stats.Completed(),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run harvest: %w", err)
	}
	if err != nil {
		rt.logger.Warn("harvest interrupted; rerun to resume", zap.Error(err))
	}
	return nil
}
