package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/cortex-vault/internal/backend"
	"github.com/ajitpratap0/cortex-vault/internal/config"
	"github.com/ajitpratap0/cortex-vault/internal/metrics"
	"github.com/ajitpratap0/cortex-vault/internal/models"
	"github.com/ajitpratap0/cortex-vault/internal/query"
	"github.com/ajitpratap0/cortex-vault/internal/vault"
)

// version is set via ldflags at build time
var version = "dev"

var (
	cfg        *config.Config
	configPath string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:     "cortex-vault",
		Short:   "Cortex Vault: browse, search and prune your Cortex memories",
		Long:    "Cortex Vault is a client for the Cortex memory API. It keeps a local view of your memories that can be filtered, sorted and pruned from the terminal, over HTTP or through MCP.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadFile(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.cortex-vault/config.yaml)")

	rootCmd.AddCommand(
		signupCmd(),
		loginCmd(),
		logoutCmd(),
		refreshCmd(),
		keysCmd(),
		listCmd(),
		searchCmd(),
		getCmd(),
		forgetCmd(),
		addCmd(),
		chatCmd(),
		statsCmd(),
		exportCmd(),
		healthCmd(),
		serveCmd(),
		mcpCmd(),
	)

	err := fang.Execute(ctx, rootCmd, fang.WithVersion(version))
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newClient builds a backend client carrying the saved session token.
func newClient(logger *slog.Logger) *backend.Client {
	c := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger)
	c.SetAccessToken(cfg.Session.AccessToken)
	return c
}

func credentials() models.Credentials {
	return cfg.Credentials.Credentials()
}

// newVault builds the view-model over client with the configured defaults.
func newVault(client vault.Backend, m *metrics.Metrics, logger *slog.Logger) *vault.Vault {
	sortBy, err := query.ParseSortKey(cfg.View.SortBy)
	if err != nil {
		sortBy = query.SortByDate
	}
	return vault.New(client, vault.Options{
		Credentials:  credentials(),
		DeletePolicy: vault.DeletePolicy(cfg.View.DeletePolicy),
		SearchLimit:  cfg.View.SearchLimit,
		SortBy:       sortBy,
		Metrics:      m,
	}, logger)
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}
