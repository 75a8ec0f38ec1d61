// Package patcher inlines generated components into the host page source.
package patcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/boblangley/artifact-forge/internal/materialize"
	"github.com/boblangley/artifact-forge/internal/transform"
	"github.com/boblangley/artifact-forge/internal/types"
)

const (
	// UsageMarker is the comment after which usages are inserted.
	UsageMarker = "{/* You can add your main content here */}"

	// PreviewLabel is passed to components that declare a string label prop.
	PreviewLabel = "Preview"

	typeAliasImport = "import type { FC } from 'react';\n"
)

var (
	homeAnchorPattern = regexp.MustCompile(`\nexport\s+default\s+function\s+Home\s*\(`)
	mainClosePattern  = regexp.MustCompile(`</main>`)
	reactNamedPattern = regexp.MustCompile(`import\s*(type\s+)?\{([^}]*)\}(\s*from\s*['"]react['"]\s*;?)`)
	fcTokenPattern    = regexp.MustCompile(`^(?:type\s+)?FC$`)
	labelPropPattern  = regexp.MustCompile(`\blabel\s*:\s*string\b`)
	blockBeginPattern = regexp.MustCompile(`(?m)^// BEGIN INLINE COMPONENT: ([A-Za-z0-9_$]+)$`)
	scriptExtPattern  = regexp.MustCompile(`\.(t|j)sx?$`)

	bracePadding = regexp.MustCompile(`\{\s+`)
	closePadding = regexp.MustCompile(`\s+\}`)
)

// Patcher owns read-modify-write of a single host document. Embed calls are
// serialized; other processes writing the same file are not coordinated.
type Patcher struct {
	hostPath   string
	projectDir string
	logger     *slog.Logger

	mu sync.Mutex
}

// Config holds patcher configuration.
type Config struct {
	// HostPath is the absolute path of the host page file.
	HostPath string

	// ProjectDir is the directory component paths are relative to.
	ProjectDir string

	Logger *slog.Logger
}

// New creates a new patcher.
func New(cfg Config) *Patcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Patcher{
		hostPath:   cfg.HostPath,
		projectDir: cfg.ProjectDir,
		logger:     logger,
	}
}

// HostPath returns the host document location.
func (p *Patcher) HostPath() string {
	return p.hostPath
}

// Embed inlines source for componentRelPath into the host document. It
// returns Embedded=false without error when the host file does not exist.
// Re-embedding the same file base name replaces the earlier block and usage.
func (p *Patcher) Embed(componentRelPath, source string) (types.EmbedResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw, err := os.ReadFile(p.hostPath)
	if err != nil {
		if os.IsNotExist(err) {
			p.logger.Warn("host page missing, component not embedded", "host", p.hostPath, "component", componentRelPath)
			return types.EmbedResult{Embedded: false}, nil
		}
		return types.EmbedResult{}, fmt.Errorf("read host page: %w", err)
	}

	name := transform.GeneratedName(componentRelPath)
	content := p.Apply(string(raw), componentRelPath, name, source)

	if err := os.WriteFile(p.hostPath, []byte(content), 0644); err != nil {
		return types.EmbedResult{}, fmt.Errorf("%w: host page: %w", materialize.ErrWriteFailed, err)
	}

	p.logger.Info("embedded component", "host", p.hostPath, "component", componentRelPath, "name", name)
	return types.EmbedResult{Embedded: true, ImportName: name}, nil
}

// Apply performs the document rewrite without touching the file system.
func (p *Patcher) Apply(content, componentRelPath, name, source string) string {
	result := transform.Inline(source, name)

	if result.UsesTypeAlias {
		content = EnsureTypeAlias(content)
	}

	content = RemoveModuleImport(content, p.ImportPath(componentRelPath))
	content = UpsertBlock(content, name, result.InlineSource)

	content, ok := UpsertUsage(content, name, labelPropPattern.MatchString(source))
	if !ok {
		p.logger.Warn("no usage site in host page", "marker", UsageMarker, "name", name)
	}
	return content
}

// ImportPath is the module specifier the host page would use to import the
// component: relative to the host directory, forward slashes, no extension.
func (p *Patcher) ImportPath(componentRelPath string) string {
	abs := filepath.Join(p.projectDir, filepath.FromSlash(componentRelPath))
	rel, err := filepath.Rel(filepath.Dir(p.hostPath), abs)
	if err != nil {
		rel = componentRelPath
	}
	rel = filepath.ToSlash(rel)
	return scriptExtPattern.ReplaceAllString(rel, "")
}

// EnsureTypeAlias makes FC importable from react in content.
func EnsureTypeAlias(content string) string {
	matches := reactNamedPattern.FindAllStringSubmatchIndex(content, -1)
	for _, m := range matches {
		if listHasFC(content[m[4]:m[5]]) {
			return content
		}
	}

	for _, m := range matches {
		if m[2] >= 0 {
			continue // type-only list
		}
		list := strings.TrimSpace(content[m[4]:m[5]])
		list = strings.TrimSuffix(list, ",")
		newList := "FC"
		if list != "" {
			newList = list + ", FC"
		}
		replaced := content[m[0]:m[4]] + " " + newList + " " + content[m[5]:m[1]]
		return content[:m[0]] + normalizeBraces(replaced) + content[m[1]:]
	}

	insertAt := 0
	if i := strings.Index(content, "\n"); i >= 0 {
		insertAt = i + 1
	}
	return content[:insertAt] + typeAliasImport + content[insertAt:]
}

func listHasFC(list string) bool {
	for _, part := range strings.Split(list, ",") {
		if fcTokenPattern.MatchString(strings.TrimSpace(part)) {
			return true
		}
	}
	return false
}

func normalizeBraces(stmt string) string {
	stmt = bracePadding.ReplaceAllString(stmt, "{ ")
	return closePadding.ReplaceAllString(stmt, " }")
}

// RemoveModuleImport drops import lines whose specifier is importPath, with
// or without a leading "./" and a script extension.
func RemoveModuleImport(content, importPath string) string {
	specifier := strings.TrimPrefix(importPath, "./")
	pattern := regexp.MustCompile(`^\s*import\s[^\n]*?from\s*['"](?:\./)?` + regexp.QuoteMeta(specifier) + `(?:\.(?:t|j)sx?)?['"]\s*;?\s*$`)

	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if pattern.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func blockPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?ms)^` + regexp.QuoteMeta(transform.BeginMarker(name)) + `$.*?^` + regexp.QuoteMeta(transform.EndMarker(name)) + `$`)
}

// UpsertBlock replaces the injected block called name, or inserts block
// before the Home component (appending when there is no Home anchor).
func UpsertBlock(content, name, block string) string {
	if loc := blockPattern(name).FindStringIndex(content); loc != nil {
		return content[:loc[0]] + strings.Trim(block, "\n") + content[loc[1]:]
	}

	if loc := homeAnchorPattern.FindStringIndex(content); loc != nil {
		return content[:loc[0]] + "\n" + block + content[loc[0]:]
	}
	return content + block
}

// Blocks lists the injected blocks in content in document order.
func Blocks(content string) []types.InjectedBlock {
	var blocks []types.InjectedBlock
	for _, m := range blockBeginPattern.FindAllStringSubmatch(content, -1) {
		name := m[1]
		loc := blockPattern(name).FindStringIndex(content)
		if loc == nil {
			continue
		}
		body := content[loc[0]:loc[1]]
		body = strings.TrimPrefix(body, transform.BeginMarker(name))
		body = strings.TrimSuffix(body, transform.EndMarker(name))
		blocks = append(blocks, types.InjectedBlock{Name: name, Source: strings.Trim(body, "\n")})
	}
	return blocks
}

// UsageElement renders the element instantiating name.
func UsageElement(name string, withLabel bool) string {
	if withLabel {
		return fmt.Sprintf(`<%s label="%s" />`, name, PreviewLabel)
	}
	return fmt.Sprintf(`<%s />`, name)
}

// UpsertUsage rewrites an existing <name .../> element or inserts a new usage
// after the marker comment, else before the host's </main>. It reports false when no
// usage site was found.
func UpsertUsage(content, name string, withLabel bool) (string, bool) {
	element := UsageElement(name, withLabel)

	existing := regexp.MustCompile(`<` + regexp.QuoteMeta(name) + `(?:\s[^<>]*)?/>`)
	if loc := existing.FindStringIndex(content); loc != nil {
		return content[:loc[0]] + element + content[loc[1]:], true
	}

	usage := "\n        <div className=\"mt-8\">" + element + "</div>\n"
	if i := strings.Index(content, UsageMarker); i >= 0 {
		end := i + len(UsageMarker)
		return content[:end] + "\n" + usage + content[end:], true
	}
	if i := hostMainClose(content); i >= 0 {
		return content[:i] + usage + "      " + content[i:], true
	}
	return content, false
}

// hostMainClose finds the first </main> that belongs to the host page rather
// than to an injected component, or -1.
func hostMainClose(content string) int {
	var blocks [][]int
	for _, m := range blockBeginPattern.FindAllStringSubmatch(content, -1) {
		if loc := blockPattern(m[1]).FindStringIndex(content); loc != nil {
			blocks = append(blocks, loc)
		}
	}

next:
	for _, loc := range mainClosePattern.FindAllStringIndex(content, -1) {
		for _, b := range blocks {
			if loc[0] >= b[0] && loc[0] < b[1] {
				continue next
			}
		}
		return loc[0]
	}
	return -1
}
