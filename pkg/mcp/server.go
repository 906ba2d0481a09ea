// Package mcp exposes the datamap queries to agents and editors over the Model
// Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/binding"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/client"
)

const (
	graphURI  = "datamap://graph"
	eventsURI = "datamap://events"

	promptName = "datamap-aware"
)

// Server adapts datamap-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server that forwards every call to the daemon at
// apiURL.
func NewServer(apiURL string, opts ...client.Option) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"datamap",
			"1.0.0",
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
			server.WithPromptCapabilities(false),
			server.WithRecovery(),
		),
		apiClient: client.NewClient(apiURL, opts...),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(
		graphURI,
		"Datamap Graph",
		mcp.WithResourceDescription("The full attribute graph as a snapshot document"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadGraph)

	s.mcpServer.AddResource(mcp.NewResource(
		eventsURI,
		"Datamap Edit Journal",
		mcp.WithResourceDescription("The most recent structural edits applied to the graph"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadEvents)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"path_exists",
		mcp.WithDescription("Check whether a dotted attribute path (e.g. 'io.input-link') exists anywhere in the datamap."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Dotted attribute path")),
	), s.handlePathExists)

	s.mcpServer.AddTool(mcp.NewTool(
		"first_invalid_segment",
		mcp.WithDescription("Explain where a dotted attribute path stops resolving."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Dotted attribute path")),
	), s.handleFirstInvalidSegment)

	s.mcpServer.AddTool(mcp.NewTool(
		"resolve_targets",
		mcp.WithDescription("Follow a dotted path from the given start vertices and list the vertices it reaches."),
		mcp.WithArray("starts", mcp.Required(), mcp.WithStringItems(), mcp.Description("Start vertex ids")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Dotted attribute path")),
	), s.handleResolveTargets)

	s.mcpServer.AddTool(mcp.NewTool(
		"find_enumerations",
		mcp.WithDescription("List the enumeration vertices, with their allowed values, that a path reaches."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Dotted attribute path")),
	), s.handleFindEnumerations)

	s.mcpServer.AddTool(mcp.NewTool(
		"edge_metadata",
		mcp.WithDescription("Classify an edge: owner, inbound count, link and cycle flags."),
		mcp.WithString("parent", mcp.Required(), mcp.Description("Parent vertex id")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Attribute name")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target vertex id")),
	), s.handleEdgeMetadata)

	s.mcpServer.AddTool(mcp.NewTool(
		"owner",
		mcp.WithDescription("Return the parent vertex that structurally owns a vertex."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Vertex id")),
	), s.handleOwner)

	s.mcpServer.AddTool(mcp.NewTool(
		"inbound_references",
		mcp.WithDescription("List every edge pointing at a vertex."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Vertex id")),
	), s.handleInboundReferences)

	s.mcpServer.AddTool(mcp.NewTool(
		"resolve_bindings",
		mcp.WithDescription("Compute which vertices each rule variable may denote, given the variable bound to the state and the variable assignments of the rule conditions."),
		mcp.WithString("root_variable", mcp.Required(), mcp.Description("Variable bound to the root state, e.g. 's'")),
		mcp.WithArray("assignments", mcp.Required(), mcp.Description("Objects {owner, path, bound} in rule order"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"owner": map[string]any{"type": "string"},
					"path":  map[string]any{"type": "string"},
					"bound": map[string]any{"type": "string"},
				},
				"required": []string{"owner", "path"},
			}),
		),
	), s.handleResolveBindings)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		promptName,
		mcp.WithPromptDescription("Provides context about datamap concepts (vertices, paths, links, ownership)"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadGraph(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	doc, err := s.apiClient.Graph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch graph: %w", err)
	}
	return jsonResource(request.Params.URI, doc)
}

func (s *Server) handleReadEvents(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	events, err := s.apiClient.GetEvents(ctx, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	return jsonResource(request.Params.URI, events)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handlePathExists(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	exists, err := s.apiClient.PathExists(ctx, path)
	if err != nil {
		return mcp.NewToolResultErrorf("API error: %v", err), nil
	}
	if exists {
		return mcp.NewToolResultText(fmt.Sprintf("Path %q exists.", path)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Path %q does not exist.", path)), nil
}

func (s *Server) handleFirstInvalidSegment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.apiClient.FirstInvalidSegment(ctx, path)
	if err != nil {
		return mcp.NewToolResultErrorf("API error: %v", err), nil
	}
	if resp.Valid {
		return mcp.NewToolResultText(fmt.Sprintf("Path %q is valid.", path)), nil
	}
	msg := fmt.Sprintf("Segment %q is invalid", resp.Segment)
	if resp.LastValidParent != "" {
		msg += fmt.Sprintf(" after %q (vertex %s)", resp.LastValidParent, resp.LastValidVertex)
	}
	return mcp.NewToolResultText(msg + "."), nil
}

func (s *Server) handleResolveTargets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	starts, err := request.RequireStringSlice("starts")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	targets, err := s.apiClient.ResolveTargets(ctx, starts, path)
	if err != nil {
		return mcp.NewToolResultErrorf("API error: %v", err), nil
	}
	return jsonResult(map[string]any{"targets": targets})
}

func (s *Server) handleFindEnumerations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	matches, err := s.apiClient.FindEnumerations(ctx, path)
	if err != nil {
		return mcp.NewToolResultErrorf("API error: %v", err), nil
	}
	return jsonResult(map[string]any{"matches": matches})
}

func (s *Server) handleEdgeMetadata(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var key struct {
		Parent string `json:"parent"`
		Name   string `json:"name"`
		Target string `json:"target"`
	}
	if err := request.BindArguments(&key); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if key.Parent == "" || key.Name == "" || key.Target == "" {
		return mcp.NewToolResultError("parent, name and target are required"), nil
	}
	md, err := s.apiClient.EdgeMetadata(ctx, key.Parent, key.Name, key.Target)
	if err != nil {
		return mcp.NewToolResultErrorf("API error: %v", err), nil
	}
	return jsonResult(md)
}

func (s *Server) handleOwner(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.apiClient.Owner(ctx, id)
	if err != nil {
		return mcp.NewToolResultErrorf("API error: %v", err), nil
	}
	switch {
	case !resp.Found:
		return mcp.NewToolResultText(fmt.Sprintf("Vertex %s has no owner.", id)), nil
	case resp.OwnerParentID == "":
		return mcp.NewToolResultText(fmt.Sprintf("Vertex %s is the root.", id)), nil
	default:
		return mcp.NewToolResultText(fmt.Sprintf("Vertex %s is owned by %s.", id, resp.OwnerParentID)), nil
	}
}

func (s *Server) handleInboundReferences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	refs, err := s.apiClient.InboundReferences(ctx, id)
	if err != nil {
		return mcp.NewToolResultErrorf("API error: %v", err), nil
	}
	return jsonResult(map[string]any{"references": refs})
}

func (s *Server) handleResolveBindings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		RootVariable string               `json:"root_variable"`
		Assignments  []binding.Assignment `json:"assignments"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.RootVariable == "" {
		return mcp.NewToolResultError("root_variable is required"), nil
	}
	bindings, err := s.apiClient.ResolveBindings(ctx, args.RootVariable, args.Assignments)
	if err != nil {
		return mcp.NewToolResultErrorf("API error: %v", err), nil
	}
	return jsonResult(map[string]any{"bindings": bindings})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	res, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return res, nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != promptName {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are working with a Soar datamap: a graph describing which working memory
structures a Soar agent may create.

Concepts:
- Vertex: a node of the graph. SOAR_ID vertices have named outgoing edges; ENUMERATION,
  STRING, INTEGER and FLOAT vertices are leaves.
- Path: a dotted attribute chain such as 'io.input-link.mode'. A path starting with
  'superstate' is resolved from the root state.
- Owner: the parent that first reaches a vertex from the root; other parents only link to it.
- Link: an extra edge to a vertex owned elsewhere. Cycle: an edge whose target points back.

Before suggesting a rule condition, check its attribute paths with 'path_exists' and
explain failures with 'first_invalid_segment'. Use 'find_enumerations' to list the
allowed constant values and 'resolve_bindings' to see what rule variables denote.
`

	return mcp.NewGetPromptResult(
		promptName,
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
