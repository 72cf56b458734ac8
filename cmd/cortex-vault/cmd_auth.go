package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/cortex-vault/internal/models"
)

// readPassword returns flagValue, or the first line of r when the flag is
// empty.
func readPassword(r io.Reader, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("password is required (use --password or pipe it on stdin)")
	}
	return pw, nil
}

// storeSession saves a session returned by signup, login or refresh.
func storeSession(s *models.AuthSession) error {
	if s.AccessToken != "" {
		cfg.Session.AccessToken = s.AccessToken
	}
	if s.RefreshToken != "" {
		cfg.Session.RefreshToken = s.RefreshToken
	}
	if s.UserID != "" {
		cfg.Session.UserID = s.UserID
	}
	if s.Email != "" {
		cfg.Session.Email = s.Email
	}
	return cfg.Save()
}

func signupCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a Cortex account",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			pw, err := readPassword(cmd.InOrStdin(), password)
			if err != nil {
				return fmt.Errorf("signup: %w", err)
			}

			session, err := newClient(logger).Signup(cmd.Context(), email, pw)
			if err != nil {
				return fmt.Errorf("signup: %w", err)
			}
			if err := storeSession(session); err != nil {
				return fmt.Errorf("signup: %w", err)
			}

			if session.Message != "" {
				fmt.Fprintln(cmd.OutOrStdout(), session.Message)
			}
			if session.AccessToken != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Signed up and logged in as %s\n", email)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Account created. Confirm your email, then run `cortex-vault login`.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (read from stdin if omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			pw, err := readPassword(cmd.InOrStdin(), password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}

			session, err := newClient(logger).Login(cmd.Context(), email, pw)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			if session.AccessToken == "" {
				return errors.New("login: backend returned no access token")
			}
			if session.Email == "" {
				session.Email = email
			}
			if err := storeSession(session); err != nil {
				return fmt.Errorf("login: %w", err)
			}

			logger.Info("logged in", "email", cfg.Session.Email, "config", cfg.Path())
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", cfg.Session.Email)
			if !credentials().Complete() {
				fmt.Fprintln(cmd.OutOrStdout(), "No API keys configured yet. Run `cortex-vault keys set` before listing memories.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (read from stdin if omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.ClearSession()
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Session.RefreshToken == "" {
				return errors.New("refresh: no refresh token saved; run `cortex-vault login`")
			}
			session, err := newClient(newLogger()).Refresh(cmd.Context(), cfg.Session.RefreshToken)
			if err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			if err := storeSession(session); err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Session refreshed.")
			return nil
		},
	}
}
