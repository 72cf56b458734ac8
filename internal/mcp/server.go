// Package mcp implements the Model Context Protocol server for cortex-vault.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ajitpratap0/cortex-vault/internal/models"
	"github.com/ajitpratap0/cortex-vault/internal/query"
	"github.com/ajitpratap0/cortex-vault/internal/vault"
	"github.com/ajitpratap0/cortex-vault/pkg/tokenizer"
)

// Server wraps an MCPServer around a memory view.
type Server struct {
	mcp    *mcpserver.MCPServer
	vault  *vault.Vault
	logger *slog.Logger
}

// NewServer creates a new MCP server. If v is nil, every tool call returns
// an error response instead of panicking.
func NewServer(v *vault.Vault, version string, logger *slog.Logger) *Server {
	s := &Server{
		vault:  v,
		logger: logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"cortex-vault",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildListTool(), s.handleList)
	mcpSrv.AddTool(buildSearchTool(), s.handleSearch)
	mcpSrv.AddTool(buildForgetTool(), s.handleForget)
	mcpSrv.AddTool(buildSummaryTool(), s.handleSummary)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleList is the exported handler for the "list_memories" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleList(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleList(ctx, req)
}

// HandleSearch is the exported handler for the "search_memories" tool.
func (s *Server) HandleSearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleSearch(ctx, req)
}

// HandleForget is the exported handler for the "forget_memory" tool.
func (s *Server) HandleForget(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleForget(ctx, req)
}

// HandleSummary is the exported handler for the "memory_summary" tool.
func (s *Server) HandleSummary(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleSummary(ctx, req)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// parseTypes splits a comma-separated type list. Blank entries are skipped.
func parseTypes(raw string) ([]models.MemoryType, error) {
	var out []models.MemoryType
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		mt, err := models.ParseMemoryType(part)
		if err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, nil
}

// --- tool definitions ---

func buildListTool() mcpgo.Tool {
	return mcpgo.NewTool("list_memories",
		mcpgo.WithDescription("List the user's memories, filtered and sorted locally. Newest first unless another sort is given."),
		mcpgo.WithString("search",
			mcpgo.Description("Case-insensitive substring to match against memory text"),
		),
		mcpgo.WithString("types",
			mcpgo.Description("Comma-separated memory types to include: identity, fact, preference, event, context (default: all)"),
		),
		mcpgo.WithString("sort",
			mcpgo.Description("Sort key: date, confidence or access (default: the view's current sort)"),
		),
		mcpgo.WithBoolean("refresh",
			mcpgo.Description("Reload the collection from the Cortex API before listing"),
		),
		mcpgo.WithNumber("budget",
			mcpgo.Description("Approximate token budget for the returned memories; the list is cut once it is spent (default: unlimited)"),
		),
	)
}

func buildSearchTool() mcpgo.Tool {
	return mcpgo.NewTool("search_memories",
		mcpgo.WithDescription("Semantic search through the Cortex API. Replaces the held collection with the results."),
		mcpgo.WithString("query",
			mcpgo.Required(),
			mcpgo.Description("The query to search for"),
		),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of results (default: the configured search limit)"),
		),
	)
}

func buildForgetTool() mcpgo.Tool {
	return mcpgo.NewTool("forget_memory",
		mcpgo.WithDescription("Delete a memory by ID."),
		mcpgo.WithString("id",
			mcpgo.Required(),
			mcpgo.Description("The ID of the memory to delete"),
		),
	)
}

func buildSummaryTool() mcpgo.Tool {
	return mcpgo.NewTool("memory_summary",
		mcpgo.WithDescription("Summarise the held collection: total, average confidence, breakdown by type and status."),
	)
}

// --- tool handlers ---

// handleList projects the held collection. Arguments override the held
// query for this call only.
func (s *Server) handleList(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.vault == nil {
		return mcpgo.NewToolResultError("memory view is unavailable"), nil
	}

	held := s.vault.Query()
	search := req.GetString("search", held.Search)
	types := held.SelectedTypes
	if raw := req.GetString("types", ""); raw != "" {
		parsed, err := parseTypes(raw)
		if err != nil {
			return mcpgo.NewToolResultError(err.Error()), nil
		}
		types = parsed
	}
	sortBy := held.SortBy
	if raw := req.GetString("sort", ""); raw != "" {
		k, err := query.ParseSortKey(raw)
		if err != nil {
			return mcpgo.NewToolResultError(err.Error()), nil
		}
		sortBy = k
	}

	if req.GetBool("refresh", false) {
		if err := s.vault.Load(ctx); err != nil {
			return mcpgo.NewToolResultErrorf("refresh failed: %s", vault.DisplayError(err)), nil
		}
	}

	list := s.vault.ProjectWith(query.NewSnapshot(search, types, sortBy))
	matched := len(list)
	if budget := req.GetInt("budget", 0); budget > 0 {
		texts := make([]string, len(list))
		for i, m := range list {
			texts[i] = m.Text
		}
		list = list[:tokenizer.FitCount(texts, budget)]
	}
	result := map[string]any{
		"memories": list,
		"count":    len(list),
		"matched":  matched,
		"total":    len(s.vault.Records()),
	}
	if msg := s.vault.Err(); msg != "" {
		result["error"] = msg
	}
	return toolResultJSON(result)
}

// handleSearch runs a remote search and returns the scored results in rank
// order.
func (s *Server) handleSearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.vault == nil {
		return mcpgo.NewToolResultError("memory view is unavailable"), nil
	}

	q := req.GetString("query", "")
	if strings.TrimSpace(q) == "" {
		return mcpgo.NewToolResultError("query is required and must not be empty"), nil
	}
	limit := req.GetInt("limit", 0)

	results, err := s.vault.RemoteSearch(ctx, q, limit)
	if err != nil {
		return mcpgo.NewToolResultErrorf("search failed: %s", vault.DisplayError(err)), nil
	}

	return toolResultJSON(map[string]any{
		"results": results,
		"count":   len(results),
	})
}

// handleForget deletes a memory by ID.
func (s *Server) handleForget(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.vault == nil {
		return mcpgo.NewToolResultError("memory view is unavailable"), nil
	}

	id := req.GetString("id", "")
	if strings.TrimSpace(id) == "" {
		return mcpgo.NewToolResultError("id is required and must not be empty"), nil
	}

	if err := s.vault.Delete(ctx, id); err != nil {
		return mcpgo.NewToolResultErrorf("delete failed: %s", vault.DisplayError(err)), nil
	}

	s.logger.Info("mcp: forget deleted memory", "id", id)
	return toolResultJSON(map[string]any{"deleted": true})
}

// handleSummary returns the header figures for the held collection.
func (s *Server) handleSummary(_ context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.vault == nil {
		return mcpgo.NewToolResultError("memory view is unavailable"), nil
	}
	return toolResultJSON(s.vault.Summary())
}
