package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	cortexmcp "github.com/ajitpratap0/cortex-vault/internal/mcp"
	"github.com/ajitpratap0/cortex-vault/internal/metrics"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  list_memories    list the held collection with optional search, type and sort
  search_memories  semantic search through the Cortex API
  forget_memory    delete a memory by ID
  memory_summary   totals and breakdowns for the held collection

If the Cortex API is unreachable at startup the server still starts;
individual tool calls will return MCP error responses on failure.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			v := newVault(newClient(logger), metrics.New(), logger)
			if err := v.Load(cmd.Context()); err != nil {
				logger.Error("mcp: initial load failed; list_memories will be empty until refreshed",
					"error", err)
			}

			srv := cortexmcp.NewServer(v, version, logger)

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: cortex-vault MCP server starting", "transport", "stdio")

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	return cmd
}
