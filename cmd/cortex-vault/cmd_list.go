package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/cortex-vault/internal/metrics"
	"github.com/ajitpratap0/cortex-vault/internal/models"
	"github.com/ajitpratap0/cortex-vault/internal/query"
)

func listCmd() *cobra.Command {
	var (
		search     string
		types      []string
		sortBy     string
		limit      int
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, filtered and sorted locally",
		Long: `Fetches every memory and shows them filtered by --search (case-insensitive
substring of the text) and --type, sorted newest first or by --sort.

--type toggles a type in the filter, so passing the same type twice cancels it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			v := newVault(newClient(logger), metrics.New(), logger)

			v.SetSearch(search)
			for _, raw := range types {
				mt, err := models.ParseMemoryType(raw)
				if err != nil {
					return fmt.Errorf("list: %w", err)
				}
				v.ToggleType(mt)
			}
			if cmd.Flags().Changed("sort") {
				k, err := query.ParseSortKey(sortBy)
				if err != nil {
					return fmt.Errorf("list: %w", err)
				}
				v.SetSortBy(k)
			}

			if err := v.Load(ctx); err != nil {
				return fmt.Errorf("list: %s", v.Err())
			}

			memories := v.Projection()
			if limit > 0 && len(memories) > limit {
				memories = memories[:limit]
			}

			if outputJSON {
				out, err := json.MarshalIndent(memories, "", "  ")
				if err != nil {
					return fmt.Errorf("list: marshaling JSON: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}

			if len(memories) == 0 {
				if len(v.Records()) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No memories yet.")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "No memories match the current filters.")
				}
				return nil
			}
			printMemories(cmd.OutOrStdout(), memories)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d memories\n", len(memories), len(v.Records()))
			return nil
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "case-insensitive text filter")
	cmd.Flags().StringArrayVar(&types, "type", nil, "toggle a type filter: identity, fact, preference, event, context (repeatable)")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort key: date, confidence or access (default from config)")
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many memories (0 = all)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}

func printMemories(w io.Writer, memories []*models.Memory) {
	for i, m := range memories {
		fmt.Fprintf(w, "[%d] [%s] %s\n", i+1, m.Type, truncate(m.Text, 100))
		fmt.Fprintf(w, "    ID: %s | Confidence: %.2f | Accesses: %d | Created: %s\n",
			m.ID, m.Confidence, m.AccessCount, m.CreatedAt.Format("2006-01-02"))
		if cat := m.CategoryValue(); cat != "" {
			fmt.Fprintf(w, "    Category: %s\n", cat)
		}
	}
}
