package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-rank-crawler/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs acquisition then enrichment",
		Long: `Waits for the store, scrapes and persists the listing, writes the
checkpoint, then enriches the first --limit checkpointed channels (all when 0).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPhase(cmd, "run", func(ctx context.Context, p *pipeline.Pipeline) (pipeline.Summary, error) {
				return p.Run(ctx, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "enrich only the first N checkpointed channels (0 = all)")
	return cmd
}

func newAcquireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "acquire",
		Short: "Runs acquisition only and writes the checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPhase(cmd, pipeline.PhaseAcquire, func(ctx context.Context, p *pipeline.Pipeline) (pipeline.Summary, error) {
				return p.Acquire(ctx)
			})
		},
	}
}

func newEnrichCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Enriches channels from the existing checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPhase(cmd, pipeline.PhaseEnrich, func(ctx context.Context, p *pipeline.Pipeline) (pipeline.Summary, error) {
				return p.Enrich(ctx, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "enrich only the first N checkpointed channels (0 = all)")
	return cmd
}

func runPhase(
	cmd *cobra.Command,
	name string,
	fn func(context.Context, *pipeline.Pipeline) (pipeline.Summary, error),
) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if limit, err := cmd.Flags().GetInt("limit"); err == nil && limit < 0 {
		return errors.New("--limit must be >= 0")
	}
	if err := appInstance.PrepareStore(cmd.Context()); err != nil {
		return err
	}
	p, err := appInstance.Pipeline()
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	sum, err := fn(cmd.Context(), p)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	appInstance.Logger().Info("command finished",
		zap.String("command", name),
		zap.String("run_id", sum.RunID),
		zap.Int("acquired", sum.Acquired),
		zap.Int("enriched", sum.Enriched),
		zap.Int("failed", sum.Failed),
		zap.Duration("elapsed", sum.FinishedAt.Sub(sum.StartedAt)),
	)
	return nil
}
