package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/quarry/internal/catalog"
	"github.com/starford/quarry/internal/query"
	"github.com/starford/quarry/internal/search"
	"github.com/starford/quarry/internal/store"
	"github.com/starford/quarry/internal/testutil"
)

const postSchema = `
required: [title]
properties:
  title:
    type: string
  tag:
    type: string
`

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir, fsys := testutil.TestCollection(t)
	testutil.WriteFile(t, dir, "a.md", "---\ntitle: Alpha\ntag: go\n---\nalpha content\n")
	testutil.WriteFile(t, dir, "b.md", "---\ntitle: Beta\ntag: web\n---\nbeta content\n")

	reg := store.NewRegistry(logger)
	t.Cleanup(reg.Close)
	db, err := search.Open()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	ix := search.NewIndexer(db, search.RegistrySnapshots(reg), logger)
	reg.Subscribe(ix.Handle)

	err = reg.Apply(context.Background(), map[string]store.Definition{
		"posts": {Config: store.Config{Schema: testutil.Schema(t, postSchema), Source: fsys}, Fingerprint: "1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	ix.Flush()
	return New(catalog.NewService(reg, ix, nil, query.Options{}), "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are
	// called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_collections":
		result, err = srv.listCollections(ctx, req)
	case "query_collection":
		result, err = srv.queryCollection(ctx, req)
	case "get_item":
		result, err = srv.getItem(ctx, req)
	case "validate_item":
		result, err = srv.validateItem(ctx, req)
	case "search_items":
		result, err = srv.searchItems(ctx, req)
	case "get_query_grammar":
		result, err = srv.getQueryGrammar(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListCollections(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "list_collections", map[string]any{})
	var got []catalog.CollectionSummary
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Name != "posts" || got[0].Items != 2 {
		t.Errorf("collections = %+v", got)
	}
}

func TestQueryCollection(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "query_collection", map[string]any{
		"collection": "posts",
		"filter":     "tag eq 'go'",
		"top":        float64(5),
	})
	if r.IsError {
		t.Fatalf("query failed: %s", resultText(r))
	}
	var page struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
		TotalCount int `json:"total_count"`
		Top        int `json:"top"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &page); err != nil {
		t.Fatal(err)
	}
	if page.TotalCount != 1 || page.Items[0].ID != "a" || page.Top != 5 {
		t.Errorf("page = %+v", page)
	}
}

func TestQueryCollection_ParseError(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "query_collection", map[string]any{
		"collection": "posts",
		"filter":     "tag eq",
	})
	if !r.IsError || !strings.Contains(resultText(r), "get_query_grammar") {
		t.Errorf("result = %q", resultText(r))
	}

	r = callTool(t, srv, "query_collection", map[string]any{"collection": "posts", "top": 2.5})
	if !r.IsError {
		t.Error("fractional top should be rejected")
	}
}

func TestGetItem(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_item", map[string]any{"collection": "posts", "id": "b"})
	if r.IsError || !strings.Contains(resultText(r), "beta content") {
		t.Errorf("get_item = %q", resultText(r))
	}
	r = callTool(t, srv, "get_item", map[string]any{"collection": "posts", "id": "nope"})
	if !r.IsError {
		t.Error("expected error for missing item")
	}
	r = callTool(t, srv, "get_item", map[string]any{"collection": "posts"})
	if !r.IsError {
		t.Error("expected error for missing id")
	}
}

func TestValidateItem(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "validate_item", map[string]any{
		"collection": "posts",
		"metadata":   `{"tag": "go"}`,
	})
	if r.IsError {
		t.Fatalf("validate failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "required-field-missing") {
		t.Errorf("result = %s", resultText(r))
	}

	r = callTool(t, srv, "validate_item", map[string]any{"collection": "posts", "metadata": `not json`})
	if !r.IsError {
		t.Error("expected error for bad metadata")
	}
}

func TestSearchItems(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "search_items", map[string]any{"collection": "posts", "query": "alpha"})
	var hits []search.Hit
	if err := json.Unmarshal([]byte(resultText(r)), &hits); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if len(hits) != 1 || hits[0].ID != "a" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestQueryGrammar(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_query_grammar", map[string]any{})
	if !strings.Contains(resultText(r), "startswith") {
		t.Error("grammar text incomplete")
	}
	contents, err := srv.readGrammarResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != grammarURI {
		t.Errorf("resource contents = %+v", contents[0])
	}
	if srv.MCPServer() == nil {
		t.Error("nil MCP server")
	}
}
