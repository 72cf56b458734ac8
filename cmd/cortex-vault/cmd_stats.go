package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/cortex-vault/internal/models"
	"github.com/ajitpratap0/cortex-vault/internal/projection"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show memory collection statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			client := newClient(logger)
			creds := credentials()

			var (
				stats   *models.CollectionStats
				records []models.Memory
			)
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				var err error
				stats, err = client.Stats(ctx, creds)
				return err
			})
			g.Go(func() error {
				var err error
				records, err = client.ListMemories(ctx, creds)
				return err
			})
			if err := g.Wait(); err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			summary := projection.Summarize(records)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Total memories:     %d\n", stats.TotalMemories)
			fmt.Fprintf(w, "Average confidence: %.2f\n\n", summary.AverageConfidence)

			fmt.Fprintln(w, "By type:")
			printCounts(w, stats.ByType)

			fmt.Fprintln(w, "\nBy status:")
			printCounts(w, stats.ByStatus)
			return nil
		},
	}
}

func printCounts(w io.Writer, counts map[string]int64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-12s %d\n", k, counts[k])
	}
}
