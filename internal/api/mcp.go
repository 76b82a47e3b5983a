package api

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/cinesense/internal/discover"
	"github.com/kalambet/cinesense/internal/sitesearch"
)

// MCPRecommender computes or returns cached discovery lists.
type MCPRecommender interface {
	GetRecommendations(ctx context.Context, username string) ([]discover.Result, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Discover    MCPRecommender
	Assistant   Answerer
	Douban      Suggester
	Profiles    ProfileReader
	DefaultUser string
}

// NewMCPServer creates an MCP server exposing discovery, the assistant and
// Douban search as tools, and the taste profile as a resource.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"cinesense",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("cinesense: personalized movie and TV discovery based on viewing history."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("discover",
			mcp.WithDescription("Return personalized movie and TV recommendations for a user."),
			mcp.WithString("user", mcp.Description("Username (defaults to the server's default user)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 25)")),
		),
		mcpDiscover(deps),
	)

	s.AddTool(
		mcp.NewTool("assistant",
			mcp.WithDescription("Find titles matching a free-text request, falling back to taste-aware catalog suggestions."),
			mcp.WithString("query", mcp.Description("What the user is looking for"), mcp.Required()),
			mcp.WithString("user", mcp.Description("Username (defaults to the server's default user)")),
		),
		mcpAssistant(deps),
	)

	s.AddTool(
		mcp.NewTool("search_douban",
			mcp.WithDescription("Look up movie and TV titles on Douban."),
			mcp.WithString("query", mcp.Description("Title or keyword"), mcp.Required()),
		),
		mcpSearchDouban(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"user://taste-profile",
			"Taste Profile",
			mcp.WithResourceDescription("The default user's inferred taste profile as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	return s
}

func (d MCPDeps) user(req mcp.CallToolRequest) string {
	if u := req.GetString("user", ""); u != "" {
		return u
	}
	return d.DefaultUser
}

func mcpDiscover(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 25)
		if limit <= 0 || limit > 100 {
			limit = 25
		}

		list, err := deps.Discover.GetRecommendations(ctx, deps.user(req))
		if err != nil {
			return mcpError(fmt.Sprintf("discover failed: %v", err)), nil
		}
		return mcpJSON(discover.Paginate(list, 0, limit).List)
	}
}

func mcpAssistant(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		results := []sitesearch.Result{}
		err = deps.Assistant.Answer(ctx, deps.user(req), query, func(r sitesearch.Result) error {
			results = append(results, r)
			return nil
		})
		if err != nil {
			return mcpError(fmt.Sprintf("assistant failed: %v", err)), nil
		}
		return mcpJSON(results)
	}
}

func mcpSearchDouban(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		items, err := deps.Douban.Suggest(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("douban search failed: %v", err)), nil
		}
		return mcpJSON(items)
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, err := deps.Profiles.Get(ctx, deps.DefaultUser)
		if err != nil {
			return nil, fmt.Errorf("failed to get taste profile: %w", err)
		}

		text := "null"
		if p != nil {
			b, err := json.Marshal(p)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal taste profile: %w", err)
			}
			text = string(b)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     text,
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
