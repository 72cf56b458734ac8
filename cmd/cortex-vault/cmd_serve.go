package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/cortex-vault/internal/api"
	"github.com/ajitpratap0/cortex-vault/internal/metrics"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the memory view over HTTP/JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			if addr == "" {
				addr = cfg.Server.ListenAddr
			}

			m := metrics.New()
			v := newVault(newClient(logger), m, logger)
			if err := v.Load(cmd.Context()); err != nil {
				// The server still starts; clients see the error and can refresh.
				logger.Warn("serve: initial load failed", "error", err, "display", v.Err())
			}

			srv := api.NewServer(v, m, logger, api.Options{
				AuthToken:   cfg.Server.AuthToken,
				CORSOrigins: cfg.Server.CORSOrigins,
			})

			if cfg.Server.AuthToken == "" {
				logger.Warn("HTTP API: auth is DISABLED; set CORTEX_VAULT_SERVER_AUTH_TOKEN or server.auth_token for shared hosts")
			}

			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      2 * cfg.Backend.Timeout,
				IdleTimeout:       120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("HTTP API server starting", "addr", addr, "backend", cfg.Backend.BaseURL)
				if listenErr := httpSrv.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
					errCh <- fmt.Errorf("serve: HTTP server: %w", listenErr)
				}
				close(errCh)
			}()

			select {
			case <-cmd.Context().Done():
				logger.Info("shutting down")
			case startErr := <-errCh:
				if startErr != nil {
					return startErr
				}
				return nil
			}

			const shutdownTimeout = 10 * time.Second
			if shutdownErr := api.Shutdown(httpSrv, shutdownTimeout); shutdownErr != nil {
				return fmt.Errorf("serve: graceful shutdown: %w", shutdownErr)
			}

			// Drain the errCh in case ListenAndServe returned after Shutdown.
			if startErr := <-errCh; startErr != nil {
				return startErr
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
