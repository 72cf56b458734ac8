package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func forgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget [memory-id...]",
		Short: "Delete memories by ID",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			client := newClient(logger)
			failed := 0
			for _, id := range args {
				if err := client.DeleteMemory(ctx, credentials(), id); err != nil {
					logger.Error("forget: delete failed", "id", id, "error", err)
					fmt.Fprintf(cmd.ErrOrStderr(), "Failed to delete %s: %v\n", id, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted memory %s\n", id)
			}
			if failed > 0 {
				return fmt.Errorf("forget: %d of %d deletes failed", failed, len(args))
			}
			return nil
		},
	}
}
