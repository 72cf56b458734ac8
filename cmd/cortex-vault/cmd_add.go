package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/cortex-vault/internal/models"
)

func addCmd() *cobra.Command {
	var (
		role           string
		conversationID string
		outputJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "add [text]",
		Short: "Submit text for fact extraction and storage",
		Long: `Sends the text as a conversation turn to the Cortex API, which extracts
facts from it and decides whether to add, update or skip each one.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return fmt.Errorf("add: text must not be empty")
			}
			if conversationID == "" {
				conversationID = uuid.NewString()
			}

			messages := []models.Message{{Role: role, Content: text}}
			result, err := newClient(logger).AddMemory(ctx, credentials(), messages, conversationID)
			if err != nil {
				return fmt.Errorf("add: %w", err)
			}

			if outputJSON {
				out, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("add: marshaling JSON: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Extracted %d fact(s), stored %d\n", result.ExtractedCount, result.StoredCount)
			for _, item := range result.Memories {
				if item.Memory == nil {
					fmt.Fprintf(w, "  %-8s %s\n", item.Action, item.Reasoning)
					continue
				}
				fmt.Fprintf(w, "  %-8s [%s] %s (%s)\n", item.Action, item.Memory.Type, truncate(item.Memory.Text, 80), item.Memory.ID)
			}
			if result.Message != "" {
				fmt.Fprintln(w, result.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "user", "conversation role of the text")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation ID (default: a new UUID)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}
