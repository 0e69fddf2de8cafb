// Package cmd defines and implements the channelrank CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-rank-crawler/internal/analytics"
	"github.com/JakeFAU/creator-rank-crawler/internal/api"
	"github.com/JakeFAU/creator-rank-crawler/internal/app"
	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
	"github.com/JakeFAU/creator-rank-crawler/internal/config"
	"github.com/JakeFAU/creator-rank-crawler/internal/logging"
	"github.com/JakeFAU/creator-rank-crawler/internal/pipeline"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the set of services commands use. *app.App satisfies it; tests
// supply their own factory.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Store() channel.SnapshotStore
	PrepareStore(ctx context.Context) error
	AnalyticsOptions() analytics.Options
	Pipeline() (*pipeline.Pipeline, error)
	Server() *api.Server
}

// AppFactory builds the App for one command invocation.
type AppFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error)

func defaultAppFactory(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newRootCmd creates the root command. Config is loaded and the App is built
// in PersistentPreRunE so every subcommand shares the same wiring.
func newRootCmd(newApp AppFactory) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "channelrank",
		Short: "Scrapes a ranked creator-channel listing, enriches it, and reports market structure.",
		Long: `channelrank collects the top channel ranking from a JavaScript-rendered
listing, normalizes its counts, persists snapshots idempotently, enriches each
channel from its detail page, and computes inequality, segmentation, and
regression statistics over the result.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the CHANNELRANK_ prefix")

	cmd.AddCommand(
		newRunCmd(),
		newAcquireCmd(),
		newEnrichCmd(),
		newServeCmd(),
		newReportCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute runs the CLI and exits non-zero on any fatal error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(defaultAppFactory).ExecuteContext(ctx)
	stop()
	if err != nil {
		zap.L().Error("command failed", zap.Error(err))
		_ = zap.L().Sync()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
