package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/cortex-vault/internal/backend"
)

func getCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "get [memory-id]",
		Short: "Retrieve a single memory by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			mem, err := newClient(logger).GetMemory(ctx, credentials(), args[0])
			if err != nil {
				if errors.Is(err, backend.ErrNotFound) {
					return fmt.Errorf("get: memory %s not found", args[0])
				}
				return fmt.Errorf("get: %w", err)
			}

			if outputJSON {
				out, err := json.MarshalIndent(mem, "", "  ")
				if err != nil {
					return fmt.Errorf("get: marshaling JSON: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ID:         %s\n", mem.ID)
			fmt.Fprintf(w, "Type:       %s\n", mem.Type)
			fmt.Fprintf(w, "Status:     %s\n", mem.Status)
			fmt.Fprintf(w, "Confidence: %.2f\n", mem.Confidence)
			fmt.Fprintf(w, "Category:   %s\n", mem.CategoryValue())
			fmt.Fprintf(w, "Entities:   %s\n", strings.Join(mem.Entities, ", "))
			fmt.Fprintf(w, "Created:    %s\n", mem.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(w, "Updated:    %s\n", mem.UpdatedAt.Format("2006-01-02 15:04:05"))
			if mem.LastAccessedAt != nil {
				fmt.Fprintf(w, "Accessed:   %s\n", mem.LastAccessedAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintf(w, "Accesses:   %d\n", mem.AccessCount)
			fmt.Fprintf(w, "\nText:\n%s\n", mem.Text)
			if mem.SourceText != "" {
				fmt.Fprintf(w, "\nSource:\n%s\n", mem.SourceText)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}
