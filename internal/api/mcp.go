package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/froglabs/folio/internal/search"
)

// NewMCPServer creates an MCP server exposing the knowledge base to local
// agent tooling over stdio.
func NewMCPServer(searcher Searcher, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"folio",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("folio — semantic search over the portfolio site's knowledge base."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_docs",
			mcp.WithDescription("Semantically search the site's document corpus and return relevant snippets with attribution."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("mode", mcp.Description("Relevance mode: standard (default) or focused")),
		),
		mcpSearchDocs(searcher),
	)

	return s
}

func mcpSearchDocs(searcher Searcher) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		mode, err := search.ParseMode(req.GetString("mode", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("invalid mode: %v", err)), nil
		}

		result := searcher.Search(ctx, query, mode)
		if len(result.Sources) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(result.Sources)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
