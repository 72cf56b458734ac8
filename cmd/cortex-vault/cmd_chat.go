package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/cortex-vault/internal/backend"
)

func chatCmd() *cobra.Command {
	var (
		conversationID string
		retrieveK      int
		skipExtraction bool
		debug          bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with memory-augmented context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			if conversationID == "" {
				conversationID = uuid.NewString()
			}
			result, err := newClient(logger).Chat(ctx, credentials(), strings.Join(args, " "), backend.ChatOptions{
				ConversationID: conversationID,
				RetrieveK:      retrieveK,
				SkipExtraction: skipExtraction,
			})
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, result.Response)
			if !debug {
				return nil
			}

			d := result.Debug
			fmt.Fprintf(w, "\n--- conversation %s ---\n", conversationID)
			fmt.Fprintf(w, "Tokens: %d in / %d out | Latency: %.0fms | Cost: $%.5f\n", d.TokensIn, d.TokensOut, d.LatencyMS, d.Cost)
			if len(d.RetrievedMemories) > 0 {
				fmt.Fprintln(w, "Retrieved:")
				for i := range d.RetrievedMemories {
					fmt.Fprintf(w, "  [%s] %s\n", d.RetrievedMemories[i].Type, truncate(d.RetrievedMemories[i].Text, 80))
				}
			}
			if len(d.ExtractedFacts) > 0 {
				fmt.Fprintln(w, "Extracted:")
				for _, f := range d.ExtractedFacts {
					fmt.Fprintf(w, "  [%s %.2f] %s\n", f.Type, f.Confidence, truncate(f.Text, 80))
				}
			}
			if len(d.Decisions) > 0 {
				fmt.Fprintln(w, "Decisions:")
				for _, dec := range d.Decisions {
					fmt.Fprintf(w, "  %-8s %s\n", dec.Action, dec.Reason)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation ID (default: a new UUID)")
	cmd.Flags().IntVar(&retrieveK, "retrieve-k", backend.DefaultRetrieveK, "memories to retrieve as context")
	cmd.Flags().BoolVar(&skipExtraction, "no-extract", false, "do not extract memories from this exchange")
	cmd.Flags().BoolVar(&debug, "debug", false, "show tokens, retrieved memories and extraction decisions")
	return cmd
}
