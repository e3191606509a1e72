// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Quarry collections to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quarry/internal/catalog"
	"github.com/starford/quarry/internal/models"
	"github.com/starford/quarry/internal/query"
)

const grammarURI = "quarry://query-grammar"

// Server wraps the MCP server with Quarry tools.
type Server struct {
	mcp *server.MCPServer
	svc *catalog.Service
}

// New creates a new MCP server with all Quarry tools registered.
func New(svc *catalog.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Quarry",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List the configured content collections with item counts and availability."),
	), s.listCollections)

	s.mcp.AddTool(mcp.NewTool("query_collection",
		mcp.WithDescription("Query the items of a collection. Read the grammar first via "+
			"the get_query_grammar tool or the "+grammarURI+" resource."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithString("filter", mcp.Description("Filter expression, e.g. tag eq 'tutorial' and draft eq false")),
		mcp.WithString("orderby", mcp.Description("Sort keys, e.g. publishDate desc, title")),
		mcp.WithNumber("top", mcp.Description("Page size")),
		mcp.WithNumber("skip", mcp.Description("Number of matching items to skip")),
		mcp.WithString("select", mcp.Description("Comma separated fields to return; include body for the content")),
	), s.queryCollection)

	s.mcp.AddTool(mcp.NewTool("get_item",
		mcp.WithDescription("Get one item of a collection by identifier, including its body."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item identifier")),
	), s.getItem)

	s.mcp.AddTool(mcp.NewTool("validate_item",
		mcp.WithDescription("Check metadata against a collection schema without storing anything."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithString("metadata", mcp.Required(), mcp.Description("Metadata as a JSON object, e.g. {\"title\": \"Hello\"}")),
	), s.validateItem)

	s.mcp.AddTool(mcp.NewTool("search_items",
		mcp.WithDescription("Full-text search through item bodies and text fields of a collection."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
	), s.searchItems)

	s.mcp.AddTool(mcp.NewTool("get_query_grammar",
		mcp.WithDescription("Returns the query language accepted by query_collection."),
	), s.getQueryGrammar)

	s.mcp.AddResource(
		mcp.NewResource(grammarURI, "Query Grammar",
			mcp.WithResourceDescription("Filter, ordering and paging syntax for collection queries."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGrammarResource,
	)

	return s
}

// Serve speaks MCP over in and out until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
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

func errorResult(err error) *mcp.CallToolResult {
	var pe *query.ParseError
	if errors.As(err, &pe) {
		return mcp.NewToolResultError(pe.Error() + "\nSee get_query_grammar for the syntax.")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listCollections(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Collections(ctx)), nil
}

func (s *Server) queryCollection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p := query.Params{
		Filter:  req.GetString("filter", ""),
		OrderBy: req.GetString("orderby", ""),
		Select:  req.GetString("select", ""),
	}
	args := req.GetArguments()
	if _, ok := args["top"]; ok {
		p.Top = numberArg(req, "top")
	}
	if _, ok := args["skip"]; ok {
		p.Skip = numberArg(req, "skip")
	}
	page, err := s.svc.Query(ctx, name, p)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(page), nil
}

// numberArg renders a numeric argument back into query syntax so the
// parser applies its own bounds checks.
func numberArg(req mcp.CallToolRequest, key string) string {
	raw, _ := json.Marshal(req.GetArguments()[key])
	return string(raw)
}

func (s *Server) getItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	it, err := s.svc.Get(ctx, name, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(it), nil
}

func (s *Server) validateItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("metadata")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var meta models.Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return mcp.NewToolResultError("metadata must be a JSON object: " + err.Error()), nil
	}
	res, err := s.svc.Validate(ctx, name, meta)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) searchItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.svc.Search(ctx, name, q, req.GetInt("limit", 0))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(hits), nil
}

func (s *Server) getQueryGrammar(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(QueryGrammar), nil
}

func (s *Server) readGrammarResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      grammarURI,
			MIMEType: "text/markdown",
			Text:     QueryGrammar,
		},
	}, nil
}
