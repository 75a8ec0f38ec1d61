// Package types defines the core data structures for artifact-forge.
package types

import "time"

// CodeArtifact is a single file extracted from generator text.
type CodeArtifact struct {
	// FilePath is repo-relative with forward slashes.
	FilePath string `json:"filePath"`

	// Language is the fence tag, or "typescript" when the fence had none.
	Language string `json:"language"`

	// Code is the fenced body without the delimiter lines.
	Code string `json:"code"`
}

// TransformResult is inline-ready source derived from a CodeArtifact.
type TransformResult struct {
	InlineSource  string `json:"inlineSource"`
	UsesTypeAlias bool   `json:"usesTypeAlias"`
}

// InjectedBlock is a named inline component region inside the host document.
type InjectedBlock struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// EmbedResult reports the outcome of inlining a component into the host page.
type EmbedResult struct {
	Embedded   bool   `json:"embedded"`
	ImportName string `json:"importName,omitempty"`
}

// PreviewMessage travels over the cross-view notification channel.
type PreviewMessage struct {
	Code     string `json:"code"`
	FilePath string `json:"filePath,omitempty"`
	Loading  bool   `json:"loading,omitempty"`

	// Seq is assigned by the hub on publish.
	Seq uint64 `json:"seq"`
}

// BlockKind discriminates Block.
type BlockKind string

const (
	BlockCode BlockKind = "code"
	BlockText BlockKind = "text"
)

// Block is one display segment: either code (Language, Code) or prose (Text).
type Block struct {
	Kind     BlockKind `json:"type"`
	Language string    `json:"language,omitempty"`
	Code     string    `json:"code,omitempty"`
	Text     string    `json:"text,omitempty"`
}

// CodeBlock builds a code segment.
func CodeBlock(language, code string) Block {
	return Block{Kind: BlockCode, Language: language, Code: code}
}

// TextBlock builds a prose segment.
func TextBlock(text string) Block {
	return Block{Kind: BlockText, Text: text}
}

// ApplyResult is returned by a successful apply.
type ApplyResult struct {
	FilePath   string `json:"filePath"`
	RoutePath  string `json:"routePath,omitempty"`
	Embedded   *bool  `json:"embedded,omitempty"`
	ImportName string `json:"importName,omitempty"`
}

// ApplyKind classifies how an artifact was applied.
type ApplyKind string

const (
	ApplyPage      ApplyKind = "page"
	ApplyComponent ApplyKind = "component"
	ApplyFile      ApplyKind = "file"
)

// ApplyRecord is one ledger entry for a successful apply.
type ApplyRecord struct {
	ID         string    `json:"id"`
	FilePath   string    `json:"file_path"`
	Kind       ApplyKind `json:"kind"`
	Language   string    `json:"language"`
	RoutePath  string    `json:"route_path,omitempty"`
	ImportName string    `json:"import_name,omitempty"`
	Embedded   bool      `json:"embedded"`
	AppliedAt  time.Time `json:"applied_at"`
}
