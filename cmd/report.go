package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/creator-rank-crawler/internal/analytics"
	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
	"github.com/JakeFAU/creator-rank-crawler/internal/report"
)

func newReportCmd() *cobra.Command {
	var (
		collection string
		top        int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Prints the analytics report for the stored channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			c := channel.Collection(collection)
			if !c.Valid() {
				return fmt.Errorf("unknown collection %q", collection)
			}
			if err := appInstance.PrepareStore(cmd.Context()); err != nil {
				return err
			}
			snaps, err := appInstance.Store().FindSorted(cmd.Context(), c, channel.Query{Field: channel.SortByRank})
			if err != nil {
				return fmt.Errorf("read %s: %w", c, err)
			}
			r := analytics.Compute(snaps, appInstance.AnalyticsOptions())
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}
			report.Render(cmd.OutOrStdout(), r, top)
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", string(channel.CollectionTop), "collection to analyze")
	cmd.Flags().IntVar(&top, "top", 10, "number of channels to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
