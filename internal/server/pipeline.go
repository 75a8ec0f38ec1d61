// Package server exposes the artifact pipeline over HTTP, WebSocket and MCP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/boblangley/artifact-forge/internal/applier"
	"github.com/boblangley/artifact-forge/internal/config"
	"github.com/boblangley/artifact-forge/internal/parser"
	"github.com/boblangley/artifact-forge/internal/patcher"
	"github.com/boblangley/artifact-forge/internal/preview"
	"github.com/boblangley/artifact-forge/internal/sandbox"
	"github.com/boblangley/artifact-forge/internal/types"
)

// ErrNoSnippet is returned when a preview request carries neither code nor a
// fenced block to extract.
var ErrNoSnippet = errors.New("no code block found")

// ApplyLister reads the apply ledger.
type ApplyLister interface {
	ListApplies(ctx context.Context, limit int) ([]types.ApplyRecord, error)
}

// RouteLister is implemented by ledgers that track page routes.
type RouteLister interface {
	Routes(ctx context.Context) ([]string, error)
}

// Pipeline bundles the components every surface serves.
type Pipeline struct {
	Applier  *applier.Applier
	Snippets *parser.SnippetExtractor
	Renderer *sandbox.Renderer
	Hub      *preview.Hub
	Prompts  *config.Prompts

	// Ledger is optional.
	Ledger ApplyLister

	// HostPage is the absolute host page path, for block listing.
	HostPage string

	// Channel is the default preview channel.
	Channel string

	Logger *slog.Logger
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Pipeline) channel(name string) string {
	if name != "" {
		return name
	}
	if p.Channel != "" {
		return p.Channel
	}
	return preview.DefaultChannel
}

// PreviewRequest is a publish request. Content is only consulted when Code
// is empty.
type PreviewRequest struct {
	Code     string `json:"code,omitempty"`
	FilePath string `json:"filePath,omitempty"`
	Loading  bool   `json:"loading,omitempty"`
	Content  string `json:"content,omitempty"`
}

// Publish sends req on channel, extracting a snippet from Content when no
// Code is given.
func (p *Pipeline) Publish(channel string, req PreviewRequest) (types.PreviewMessage, error) {
	msg := types.PreviewMessage{Code: req.Code, FilePath: req.FilePath, Loading: req.Loading}
	if msg.Code == "" && req.Content != "" {
		extracted, ok := p.Snippets.Extract(req.Content)
		if !ok {
			return types.PreviewMessage{}, ErrNoSnippet
		}
		msg.Code = extracted.Code
		if msg.FilePath == "" {
			msg.FilePath = extracted.FilePath
		}
	}
	if msg.Code == "" && !msg.Loading {
		return types.PreviewMessage{}, ErrNoSnippet
	}
	return p.Hub.Publish(p.channel(channel), msg), nil
}

// ModuleRequest asks for a whole-module preview. Content is parsed as an
// artifact only when Code is empty.
type ModuleRequest struct {
	Code     string `json:"code,omitempty"`
	FilePath string `json:"filePath,omitempty"`
	Content  string `json:"content,omitempty"`
}

// RenderModule renders the module preview document for req.
func (p *Pipeline) RenderModule(req ModuleRequest) (string, error) {
	code, filePath := req.Code, req.FilePath
	if code == "" && req.Content != "" {
		artifact, err := parser.ParseArtifact(req.Content)
		if err != nil {
			return "", ErrNoSnippet
		}
		code = artifact.Code
		if filePath == "" {
			filePath = artifact.FilePath
		}
	}
	if code == "" {
		return "", ErrNoSnippet
	}
	return p.Renderer.RenderModule(code, filePath), nil
}

// RenderLatest renders the latest message on channel, or an empty preview.
func (p *Pipeline) RenderLatest(channel string) string {
	msg, _ := p.Hub.Latest(p.channel(channel))
	return p.Renderer.Render(msg.Code, msg.Loading)
}

// ListApplies returns recent applies; an absent ledger yields none.
func (p *Pipeline) ListApplies(ctx context.Context, limit int) ([]types.ApplyRecord, error) {
	if p.Ledger == nil {
		return []types.ApplyRecord{}, nil
	}
	return p.Ledger.ListApplies(ctx, limit)
}

// Routes returns the routes served by applied pages. Ledgers without route
// tracking yield none.
func (p *Pipeline) Routes(ctx context.Context) ([]string, error) {
	rl, ok := p.Ledger.(RouteLister)
	if !ok {
		return []string{}, nil
	}
	return rl.Routes(ctx)
}

// HostBlocks lists the blocks currently injected into the host page.
func (p *Pipeline) HostBlocks() ([]types.InjectedBlock, error) {
	content, err := os.ReadFile(p.HostPage)
	if err != nil {
		return nil, fmt.Errorf("read host page: %w", err)
	}
	blocks := patcher.Blocks(string(content))
	if blocks == nil {
		blocks = []types.InjectedBlock{}
	}
	return blocks, nil
}
