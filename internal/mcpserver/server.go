// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Interlink tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/interlink/internal/linkservice"
)

const mappingFormatURI = "interlink://mapping-format"

// Server wraps the MCP server with Interlink tools.
type Server struct {
	mcp *server.MCPServer
	svc *linkservice.Service
}

// New creates a new MCP server with all Interlink tools registered.
func New(svc *linkservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Interlink",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_keywords",
		mcp.WithDescription("List every registry keyword with its category and target URL, in registry order. "+
			"Order decides which keywords win when a document's link budget runs out."),
	), s.listKeywords)

	s.mcp.AddTool(mcp.NewTool("add_keyword",
		mcp.WithDescription("Add a keyword to a category of the link registry. "+
			"A keyword may appear in one category only. Read the contract first via "+
			"the get_mapping_contract tool or the "+mappingFormatURI+" resource."),
		mcp.WithString("category", mcp.Required(), mcp.Description("Category name (created if missing)")),
		mcp.WithString("keyword", mcp.Required(), mcp.Description("Exact text to link")),
		mcp.WithString("url", mcp.Required(), mcp.Description("Absolute URL the keyword links to")),
	), s.addKeyword)

	s.mcp.AddTool(mcp.NewTool("remove_keyword",
		mcp.WithDescription("Remove a keyword from the registry. Its existing links are removed "+
			"from every document on the next reconciliation."),
		mcp.WithString("keyword", mcp.Required(), mcp.Description("Keyword to remove")),
	), s.removeKeyword)

	s.mcp.AddTool(mcp.NewTool("toggle_link",
		mcp.WithDescription("Mark a keyword as linked or unlinked in one article. "+
			"The change reaches the article on the next reconciliation."),
		mcp.WithString("keyword", mcp.Required(), mcp.Description("Registry keyword")),
		mcp.WithString("article_id", mcp.Required(), mcp.Description("Article id")),
		mcp.WithBoolean("on", mcp.Description("true to link (default), false to unlink")),
	), s.toggleLink)

	s.mcp.AddTool(mcp.NewTool("preview_links",
		mcp.WithDescription("Show how an article body would be rewritten by reconciliation, "+
			"without touching any article. Returns the new text and what was linked or unlinked."),
		mcp.WithString("body", mcp.Required(), mcp.Description("Article HTML body")),
		mcp.WithString("article_id", mcp.Description("Article id whose ledger entries apply")),
	), s.previewLinks)

	s.mcp.AddTool(mcp.NewTool("detect_usage",
		mcp.WithDescription("Count the links to each registry keyword's URL in an HTML body."),
		mcp.WithString("html", mcp.Required(), mcp.Description("HTML to scan")),
	), s.detectUsage)

	s.mcp.AddTool(mcp.NewTool("search_articles",
		mcp.WithDescription("Search collected articles by title or URL."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchArticles)

	s.mcp.AddTool(mcp.NewTool("get_mapping_contract",
		mcp.WithDescription("Returns the link registry and usage ledger format contract. "+
			"Call this before editing keywords to ensure correct structure."),
	), s.getMappingContract)

	// Resource: mapping format contract.
	s.mcp.AddResource(
		mcp.NewResource(mappingFormatURI, "Mapping Format Contract",
			mcp.WithResourceDescription("Format of the keyword registry and usage ledger snapshots."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readMappingFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listKeywords(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := s.svc.Registry(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if r.Len() == 0 {
		return mcp.NewToolResultText("no keywords registered"), nil
	}
	return jsonResult(r.Entries()), nil
}

func (s *Server) addKeyword(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	keyword, err := req.RequireString("keyword")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	url, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.AddKeyword(ctx, category, keyword, url); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added: %s -> %s", keyword, url)), nil
}

func (s *Server) removeKeyword(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keyword, err := req.RequireString("keyword")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.RemoveKeyword(ctx, keyword); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed: %s", keyword)), nil
}

func (s *Server) toggleLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keyword, err := req.RequireString("keyword")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("article_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	on := req.GetBool("on", true)
	if err := s.svc.ToggleLink(ctx, keyword, id, on); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state := "linked"
	if !on {
		state = "unlinked"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s in %s", state, keyword, id)), nil
}

func (s *Server) previewLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body, err := req.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Preview(ctx, req.GetString("article_id", ""), body)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) detectUsage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	html, err := req.RequireString("html")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	counts, err := s.svc.DetectIn(ctx, html)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(counts), nil
}

func (s *Server) searchArticles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.SearchArticles(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getMappingContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MappingFormatContract), nil
}

func (s *Server) readMappingFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      mappingFormatURI,
			MIMEType: "text/markdown",
			Text:     MappingFormatContract,
		},
	}, nil
}
