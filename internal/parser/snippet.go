package parser

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/boblangley/artifact-forge/internal/types"
)

// SnippetExtractor picks the block to auto-preview from an assistant message.
type SnippetExtractor struct {
	md goldmark.Markdown
}

// NewSnippetExtractor creates a new extractor.
func NewSnippetExtractor() *SnippetExtractor {
	return &SnippetExtractor{md: goldmark.New()}
}

var defaultExtractor = NewSnippetExtractor()

// ExtractSnippet runs Extract with a shared extractor.
func ExtractSnippet(content string) (types.PreviewMessage, bool) {
	return defaultExtractor.Extract(content)
}

type fencedSnippet struct {
	language string
	code     string
}

// Extract returns the first tsx/jsx fenced block, or the first fenced block
// of any language. FilePath comes from a File: header when one exists.
func (e *SnippetExtractor) Extract(content string) (types.PreviewMessage, bool) {
	source := []byte(content)
	reader := text.NewReader(source)
	doc := e.md.Parser().Parse(reader)

	var first, jsx *fencedSnippet
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		node, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		snippet := &fencedSnippet{
			language: string(node.Language(source)),
			code:     fencedBody(node, source),
		}
		if first == nil {
			first = snippet
		}
		if snippet.language == "tsx" || snippet.language == "jsx" {
			jsx = snippet
			return ast.WalkStop, nil
		}
		return ast.WalkSkipChildren, nil
	})

	picked := jsx
	if picked == nil {
		picked = first
	}
	if picked == nil || picked.code == "" {
		return types.PreviewMessage{}, false
	}

	msg := types.PreviewMessage{Code: picked.code}
	if filePath, ok := FindFilePath(content); ok {
		msg.FilePath = filePath
	}
	return msg, true
}

func fencedBody(node *ast.FencedCodeBlock, source []byte) string {
	var sb strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		sb.Write(line.Value(source))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
