package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/api"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/engine"
)

const testGraph = `{
	"rootId": "R",
	"vertices": [
		{"id": "R", "type": "SOAR_ID", "outEdges": [{"name": "io", "toId": "IO"}]},
		{"id": "IO", "type": "SOAR_ID", "outEdges": [{"name": "input-link", "toId": "IL"}]},
		{"id": "IL", "type": "SOAR_ID", "outEdges": [{"name": "mode", "toId": "M"}]},
		{"id": "M", "type": "ENUMERATION", "choices": ["auto", "manual"]}
	]
}`

// newDaemon serves a read-only API over the test graph.
func newDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	g, err := datamap.ParseDocument([]byte(testGraph))
	require.NoError(t, err)

	proj := engine.NewGraphProjection()
	proj.LoadState(g, engine.Position{Seq: 1})

	ts := httptest.NewServer(api.NewServer(api.Options{Graph: proj}).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestMCPServer_PathTools(t *testing.T) {
	s := NewServer(newDaemon(t).URL)
	ctx := context.Background()

	res, err := s.handlePathExists(ctx, toolRequest("path_exists", map[string]any{"path": "io.input-link"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "exists")
	assert.NotContains(t, resultText(t, res), "does not")

	res, err = s.handleFirstInvalidSegment(ctx, toolRequest("first_invalid_segment", map[string]any{"path": "io.output-link"}))
	require.NoError(t, err)
	assert.Equal(t, `Segment "output-link" is invalid after "io" (vertex IO).`, resultText(t, res))

	res, err = s.handlePathExists(ctx, toolRequest("path_exists", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError, "missing path must be a tool error")
}

func TestMCPServer_StructuredTools(t *testing.T) {
	s := NewServer(newDaemon(t).URL)
	ctx := context.Background()

	res, err := s.handleResolveTargets(ctx, toolRequest("resolve_targets", map[string]any{
		"starts": []any{"R"},
		"path":   "io.input-link",
	}))
	require.NoError(t, err)
	var targets struct {
		Targets []string `json:"targets"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &targets))
	assert.Equal(t, []string{"IL"}, targets.Targets)

	res, err = s.handleFindEnumerations(ctx, toolRequest("find_enumerations", map[string]any{"path": "mode"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"manual"`)

	res, err = s.handleEdgeMetadata(ctx, toolRequest("edge_metadata", map[string]any{
		"parent": "IO", "name": "input-link", "target": "IL",
	}))
	require.NoError(t, err)
	var md api.EdgeMetadataResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &md))
	assert.True(t, md.Found)
	assert.Equal(t, "IO", md.OwnerParentID)

	res, err = s.handleEdgeMetadata(ctx, toolRequest("edge_metadata", map[string]any{"parent": "IO"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleInboundReferences(ctx, toolRequest("inbound_references", map[string]any{"id": "IL"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"parent_id":"IO"`)

	res, err = s.handleResolveBindings(ctx, toolRequest("resolve_bindings", map[string]any{
		"root_variable": "s",
		"assignments": []any{
			map[string]any{"owner": "s", "path": "io", "bound": "io"},
			map[string]any{"owner": "io", "path": "input-link.mode", "bound": "m"},
		},
	}))
	require.NoError(t, err)
	var b struct {
		Bindings map[string][]string `json:"bindings"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &b))
	assert.Equal(t, []string{"M"}, b.Bindings["m"])
	assert.Equal(t, []string{"R"}, b.Bindings["s"])
}

func TestMCPServer_Owner(t *testing.T) {
	s := NewServer(newDaemon(t).URL)
	ctx := context.Background()

	tests := []struct {
		id   string
		want string
	}{
		{"IL", "Vertex IL is owned by IO."},
		{"R", "Vertex R is the root."},
		{"ghost", "Vertex ghost has no owner."},
	}
	for _, tt := range tests {
		res, err := s.handleOwner(ctx, toolRequest("owner", map[string]any{"id": tt.id}))
		require.NoError(t, err)
		assert.Equal(t, tt.want, resultText(t, res))
	}
}

func TestMCPServer_Resources(t *testing.T) {
	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/graph":
			w.Write([]byte(testGraph))
		case "/v1/events":
			w.Write([]byte(`[{"seq": 1, "event_id": "e1", "event_type": "graph_loaded"}]`))
		default:
			http.NotFound(w, r)
		}
	})
	ts := httptest.NewServer(apiHandler)
	defer ts.Close()

	s := NewServer(ts.URL)

	result, err := s.handleReadGraph(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: graphURI},
	})
	require.NoError(t, err)
	require.Len(t, result, 1)
	content, ok := result[0].(mcp.TextResourceContents)
	require.True(t, ok, "expected TextResourceContents")
	assert.Equal(t, "application/json", content.MIMEType)
	assert.Contains(t, content.Text, `"rootId": "R"`)

	result, err = s.handleReadEvents(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: eventsURI},
	})
	require.NoError(t, err)
	content = result[0].(mcp.TextResourceContents)
	var events []map[string]any
	require.NoError(t, json.Unmarshal([]byte(content.Text), &events))
	assert.Len(t, events, 1)
}

func TestMCPServer_Unavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"missing_required_fields"}`))
	}))
	defer ts.Close()

	s := NewServer(ts.URL)
	res, err := s.handlePathExists(context.Background(), toolRequest("path_exists", map[string]any{"path": "io"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.True(t, strings.HasPrefix(resultText(t, res), "API error"))
}

func TestMCPServer_Prompt(t *testing.T) {
	s := NewServer("")

	res, err := s.handleGetPrompt(context.Background(), mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{Name: promptName},
	})
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)

	_, err = s.handleGetPrompt(context.Background(), mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{Name: "other"},
	})
	assert.Error(t, err)
}
