package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func searchCmd() *cobra.Command {
	var (
		limit      int
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Semantic search through the Cortex API",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			q := strings.Join(args, " ")

			if limit <= 0 {
				limit = cfg.View.SearchLimit
			}
			results, err := newClient(logger).SearchMemories(ctx, credentials(), q, limit)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if outputJSON {
				out, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return fmt.Errorf("search: marshaling JSON: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}

			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching memories.")
				return nil
			}
			for i := range results {
				r := &results[i]
				score := "-"
				switch {
				case r.RerankScore != nil:
					score = fmt.Sprintf("%.3f (rerank)", *r.RerankScore)
				case r.HybridScore != nil:
					score = fmt.Sprintf("%.3f (hybrid)", *r.HybridScore)
				case r.Similarity != nil:
					score = fmt.Sprintf("%.3f", *r.Similarity)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%d] [%s] %s\n", i+1, r.Type, truncate(r.Text, 100))
				fmt.Fprintf(cmd.OutOrStdout(), "    ID: %s | Score: %s | Confidence: %.2f\n", r.ID, score, r.Confidence)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "max results (default from config)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}
