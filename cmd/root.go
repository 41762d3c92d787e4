// Package cmd defines the review-harvester command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-harvester/internal/config"
	"github.com/JakeFAU/review-harvester/internal/logging"
)

type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// runtime is what PersistentPreRunE hands to subcommands.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"input":        "harvest.input_path",
	"output":       "harvest.output_root",
	"concurrency":  "harvest.concurrency",
	"max-pages":    "harvest.max_pages",
	"metrics-addr": "metrics.addr",
	"headless":     "headless.enabled",
	"log-level":    "logging.level",
}

// newLogger is swapped in tests.
var newLogger = func(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "review-harvester",
		Short: "Harvests paginated guest reviews into per-venue workbooks.",
		Long: `review-harvester reads a CSV of venues (CITY, NAME, REVIEW), walks every
review page of each venue that has no workbook yet, and writes one
workbook per venue under the output root. Re-running resumes where the
previous run stopped.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var overrides []config.Override
			for name, key := range flagKeys {
				if flag := cmd.Flags().Lookup(name); flag != nil {
					overrides = append(overrides, config.BindFlag(key, flag))
				}
			}
			cfg, err := config.Load(cfgFile, overrides...)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, &runtime{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, err := resolveRuntime(cmd.Context()); err == nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().String("input", "", "CSV listing CITY, NAME and REVIEW columns")
	cmd.PersistentFlags().String("output", "", "output root for workbooks and failure reports")
	cmd.PersistentFlags().String("log-level", "", "minimum log level")

	cmd.AddCommand(newHarvestCmd(), newStatusCmd())
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	if ctx == nil {
		return nil, errors.New("command context is not set")
	}
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration was not loaded")
	}
	return rt, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
