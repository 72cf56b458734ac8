package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the Cortex API, saved session and keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			allOK := true

			client := newClient(logger)
			if status, err := client.Health(ctx); err != nil {
				fmt.Fprintf(w, "Cortex API (%s): FAIL (%v)\n", client.BaseURL(), err)
				allOK = false
			} else {
				fmt.Fprintf(w, "Cortex API (%s): OK (%s)\n", client.BaseURL(), status)
			}

			if cfg.Session.LoggedIn() {
				fmt.Fprintf(w, "Session: OK (%s)\n", sessionState())
			} else {
				fmt.Fprintln(w, "Session: FAIL (run `cortex-vault login`)")
				allOK = false
			}

			if credentials().Complete() {
				fmt.Fprintln(w, "API keys: OK")
			} else {
				fmt.Fprintln(w, "API keys: FAIL (run `cortex-vault keys set`)")
				allOK = false
			}

			if !allOK {
				return errors.New("one or more health checks failed")
			}
			return nil
		},
	}
}
