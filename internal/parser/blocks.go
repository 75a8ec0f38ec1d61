package parser

import (
	"regexp"
	"strings"

	"github.com/boblangley/artifact-forge/internal/types"
)

var (
	fenceLinePattern = regexp.MustCompile("^\\s*```\\s*([\\w+\\-]*)\\s*$")
	htmlCodePattern  = regexp.MustCompile(`(?s)<pre><code(?: class="language-([\w+\-]+)")?>(.*?)</code></pre>|<code(?: class="language-([\w+\-]+)")?>(.*?)</code>`)

	entityReplacer = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", `"`,
		"&#39;", "'",
	)
)

// SplitBlocks segments text into alternating prose and code blocks. An
// unterminated fence at end of input is still emitted as code.
func SplitBlocks(content string) []types.Block {
	var blocks []types.Block
	for _, b := range splitFences(content) {
		if b.Kind == types.BlockText {
			blocks = append(blocks, splitHTMLCode(b.Text)...)
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks
}

func splitFences(content string) []types.Block {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	var (
		blocks    []types.Block
		inCode    bool
		codeLang  string
		codeLines []string
		textLines []string
	)

	flushText := func() {
		if len(textLines) > 0 {
			blocks = append(blocks, types.TextBlock(strings.Join(textLines, "\n")))
			textLines = nil
		}
	}
	flushCode := func() {
		lang := codeLang
		if lang == "" {
			lang = DefaultLanguage
		}
		blocks = append(blocks, types.CodeBlock(lang, strings.Join(codeLines, "\n")))
		codeLines = nil
		codeLang = ""
	}

	for _, line := range strings.Split(content, "\n") {
		if m := fenceLinePattern.FindStringSubmatch(line); m != nil {
			if !inCode {
				inCode = true
				codeLang = m[1]
				flushText()
			} else {
				inCode = false
				flushCode()
			}
			continue
		}

		if inCode {
			codeLines = append(codeLines, line)
		} else {
			textLines = append(textLines, line)
		}
	}

	if inCode && len(codeLines) > 0 {
		flushCode()
	}
	flushText()

	return blocks
}

// splitHTMLCode pulls <pre><code> and <code> elements out of a prose block.
func splitHTMLCode(text string) []types.Block {
	matches := htmlCodePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []types.Block{types.TextBlock(text)}
	}

	var blocks []types.Block
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > last {
			blocks = append(blocks, types.TextBlock(text[last:start]))
		}

		lang := group(text, m, 1)
		if lang == "" {
			lang = group(text, m, 3)
		}
		if lang == "" {
			lang = DefaultLanguage
		}
		body := group(text, m, 2)
		if m[4] < 0 {
			body = group(text, m, 4)
		}
		blocks = append(blocks, types.CodeBlock(lang, UnescapeEntities(strings.TrimSpace(body))))

		last = end
	}
	if last < len(text) {
		blocks = append(blocks, types.TextBlock(text[last:]))
	}
	return blocks
}

func group(s string, loc []int, n int) string {
	if loc[2*n] < 0 {
		return ""
	}
	return s[loc[2*n]:loc[2*n+1]]
}

// UnescapeEntities reverses the HTML escapes produced by code renderers.
func UnescapeEntities(s string) string {
	return entityReplacer.Replace(s)
}
