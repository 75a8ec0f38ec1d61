package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/boblangley/artifact-forge/internal/applier"
	"github.com/boblangley/artifact-forge/internal/config"
	"github.com/boblangley/artifact-forge/internal/parser"
	"github.com/boblangley/artifact-forge/internal/version"
)

// MCPServer provides the MCP interface to the artifact pipeline.
type MCPServer struct {
	server   *mcp.Server
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(p *Pipeline) *MCPServer {
	server := mcp.NewServer(
		&mcp.Implementation{Name: version.Name, Version: version.Version},
		nil,
	)

	m := &MCPServer{
		server:   server,
		pipeline: p,
		logger:   p.logger(),
	}
	m.registerTools()
	return m
}

// HTTPHandler returns an http.Handler that serves the MCP protocol over HTTP
// using the streamable HTTP transport.
func (m *MCPServer) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return m.server
		},
		&mcp.StreamableHTTPOptions{
			JSONResponse: true,
			Logger:       m.logger,
		},
	)
}

func (m *MCPServer) registerTools() {
	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "parse_artifact",
		Description: "Extract the File: header and first fenced code block from generator text",
	}, m.handleParseArtifact)

	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "apply_artifact",
		Description: "Write a parsed artifact under app/, or inline app/components files into the home page",
	}, m.handleApplyArtifact)

	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "split_blocks",
		Description: "Split text into ordered prose and code segments",
	}, m.handleSplitBlocks)

	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "render_preview",
		Description: "Build a self-contained HTML preview document for a JSX snippet",
	}, m.handleRenderPreview)

	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "render_module_preview",
		Description: "Build an HTML preview document that mounts a whole component module",
	}, m.handleRenderModulePreview)

	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "publish_preview",
		Description: "Publish a snippet to the preview channel watched by renderer views",
	}, m.handlePublishPreview)

	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "list_applies",
		Description: "List recent successful applies, newest first",
	}, m.handleListApplies)

	mcp.AddTool(m.server, &mcp.Tool{
		Name:        "get_prompt",
		Description: "Return the configured system prompt (code or decision)",
	}, m.handleGetPrompt)
}

// Tool result helper
func toolResult(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, nil
}

// Error result helper
func errorResult(err error) (*mcp.CallToolResult, error) {
	return toolResult(map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

type contentInput struct {
	Content string `json:"content" jsonschema:"Raw generator text"`
}

func (m *MCPServer) handleParseArtifact(ctx context.Context, req *mcp.CallToolRequest, input contentInput) (*mcp.CallToolResult, any, error) {
	artifact, err := parser.ParseArtifact(input.Content)
	if err != nil {
		res, _ := errorResult(err)
		return res, nil, nil
	}
	res, _ := toolResult(map[string]any{
		"success":  true,
		"artifact": artifact,
	})
	return res, nil, nil
}

func (m *MCPServer) handleApplyArtifact(ctx context.Context, req *mcp.CallToolRequest, input contentInput) (*mcp.CallToolResult, any, error) {
	result, err := m.pipeline.Applier.Apply(ctx, input.Content)
	if err != nil {
		m.logger.Warn("apply_artifact failed", "error", err)
		var ae *applier.Error
		if !errors.As(err, &ae) {
			res, _ := errorResult(err)
			return res, nil, nil
		}
		res, _ := toolResult(map[string]any{
			"success": false,
			"error":   ae.Message,
			"kind":    ae.Kind.String(),
			"details": ae.Details(),
		})
		return res, nil, nil
	}
	res, _ := toolResult(map[string]any{
		"success": true,
		"result":  result,
	})
	return res, nil, nil
}

func (m *MCPServer) handleSplitBlocks(ctx context.Context, req *mcp.CallToolRequest, input contentInput) (*mcp.CallToolResult, any, error) {
	res, _ := toolResult(map[string]any{
		"success": true,
		"blocks":  parser.SplitBlocks(input.Content),
	})
	return res, nil, nil
}

type renderPreviewInput struct {
	Code    string `json:"code" jsonschema:"Snippet, usually ending in return ( ... )"`
	Loading bool   `json:"loading,omitempty" jsonschema:"Show the thinking overlay"`
}

func (m *MCPServer) handleRenderPreview(ctx context.Context, req *mcp.CallToolRequest, input renderPreviewInput) (*mcp.CallToolResult, any, error) {
	res, _ := toolResult(map[string]any{
		"success": true,
		"html":    m.pipeline.Renderer.Render(input.Code, input.Loading),
	})
	return res, nil, nil
}

type renderModuleInput struct {
	Code     string `json:"code,omitempty" jsonschema:"Component module source"`
	FilePath string `json:"file_path,omitempty" jsonschema:"Module path, used to name an unexported component"`
	Content  string `json:"content,omitempty" jsonschema:"Generator text to parse an artifact from when code is empty"`
}

func (m *MCPServer) handleRenderModulePreview(ctx context.Context, req *mcp.CallToolRequest, input renderModuleInput) (*mcp.CallToolResult, any, error) {
	html, err := m.pipeline.RenderModule(ModuleRequest{
		Code:     input.Code,
		FilePath: input.FilePath,
		Content:  input.Content,
	})
	if err != nil {
		res, _ := errorResult(err)
		return res, nil, nil
	}
	res, _ := toolResult(map[string]any{
		"success": true,
		"html":    html,
	})
	return res, nil, nil
}

type publishPreviewInput struct {
	Code     string `json:"code,omitempty" jsonschema:"Snippet to preview"`
	FilePath string `json:"file_path,omitempty" jsonschema:"Originating file path"`
	Loading  bool   `json:"loading,omitempty" jsonschema:"Show the thinking overlay"`
	Content  string `json:"content,omitempty" jsonschema:"Assistant message to extract a snippet from when code is empty"`
	Channel  string `json:"channel,omitempty" jsonschema:"Channel name (default ai-preview)"`
}

func (m *MCPServer) handlePublishPreview(ctx context.Context, req *mcp.CallToolRequest, input publishPreviewInput) (*mcp.CallToolResult, any, error) {
	msg, err := m.pipeline.Publish(input.Channel, PreviewRequest{
		Code:     input.Code,
		FilePath: input.FilePath,
		Loading:  input.Loading,
		Content:  input.Content,
	})
	if err != nil {
		res, _ := errorResult(err)
		return res, nil, nil
	}
	res, _ := toolResult(map[string]any{
		"success": true,
		"channel": m.pipeline.channel(input.Channel),
		"seq":     msg.Seq,
	})
	return res, nil, nil
}

type listAppliesInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum entries to return (default 50)"`
}

func (m *MCPServer) handleListApplies(ctx context.Context, req *mcp.CallToolRequest, input listAppliesInput) (*mcp.CallToolResult, any, error) {
	applies, err := m.pipeline.ListApplies(ctx, input.Limit)
	if err != nil {
		m.logger.Error("list_applies failed", "error", err)
		res, _ := errorResult(err)
		return res, nil, nil
	}
	res, _ := toolResult(map[string]any{
		"success": true,
		"applies": applies,
	})
	return res, nil, nil
}

type getPromptInput struct {
	Type string `json:"type,omitempty" jsonschema:"code or decision (default code)"`
}

func (m *MCPServer) handleGetPrompt(ctx context.Context, req *mcp.CallToolRequest, input getPromptInput) (*mcp.CallToolResult, any, error) {
	t := config.ParsePromptType(input.Type)
	res, _ := toolResult(map[string]any{
		"success": true,
		"type":    string(t),
		"prompt":  m.pipeline.Prompts.Get(t),
	})
	return res, nil, nil
}
