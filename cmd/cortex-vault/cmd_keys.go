package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the provider keys sent with memory requests",
	}
	cmd.AddCommand(keysSetCmd(), keysShowCmd(), keysClearCmd())
	return cmd
}

func keysSetCmd() *cobra.Command {
	var openai, supabaseURL, supabaseKey, cohere string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Save provider keys; omitted flags keep their current value",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("openai-key") && !flags.Changed("supabase-url") &&
				!flags.Changed("supabase-key") && !flags.Changed("cohere-key") {
				return errors.New("keys set: pass at least one of --openai-key, --supabase-url, --supabase-key, --cohere-key")
			}
			if flags.Changed("openai-key") {
				cfg.Credentials.OpenAIKey = openai
			}
			if flags.Changed("supabase-url") {
				cfg.Credentials.SupabaseURL = supabaseURL
			}
			if flags.Changed("supabase-key") {
				cfg.Credentials.SupabaseKey = supabaseKey
			}
			if flags.Changed("cohere-key") {
				cfg.Credentials.CohereKey = cohere
			}
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("keys set: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", cfg.Credentials, cfg.Path())
			if !credentials().Complete() {
				fmt.Fprintln(cmd.OutOrStdout(), "Still missing: OpenAI key, Supabase URL and Supabase key are all required.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&openai, "openai-key", "", "OpenAI API key")
	cmd.Flags().StringVar(&supabaseURL, "supabase-url", "", "Supabase project URL")
	cmd.Flags().StringVar(&supabaseKey, "supabase-key", "", "Supabase service key")
	cmd.Flags().StringVar(&cohere, "cohere-key", "", "Cohere API key (optional, enables reranking)")
	return cmd
}

func keysShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the saved keys, masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Credentials)
			state := "incomplete"
			if credentials().Complete() {
				state = "complete"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Keys: %s | Session: %s\n", state, sessionState())
			return nil
		},
	}
}

func keysClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the saved keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.ClearCredentials()
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("keys clear: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Keys cleared.")
			return nil
		},
	}
}

func sessionState() string {
	if !cfg.Session.LoggedIn() {
		return "logged out"
	}
	if cfg.Session.Email != "" {
		return "logged in as " + cfg.Session.Email
	}
	return "logged in"
}
