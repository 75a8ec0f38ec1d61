package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// PromptType selects a system prompt.
type PromptType string

const (
	PromptCode     PromptType = "code"
	PromptDecision PromptType = "decision"
)

// Fallback prompts used when a prompt file is missing or has no
// <system_prompt> element.
const (
	DefaultCodePrompt     = "You are a helpful AI coding assistant."
	DefaultDecisionPrompt = "You are an intelligent code generation orchestrator."
)

var systemPromptPattern = regexp.MustCompile(`(?s)<system_prompt>(.*?)</system_prompt>`)

// ParsePromptType maps a request value to a PromptType. Unknown values mean
// PromptCode.
func ParsePromptType(s string) PromptType {
	if PromptType(strings.ToLower(strings.TrimSpace(s))) == PromptDecision {
		return PromptDecision
	}
	return PromptCode
}

// FileName is the prompt file read for t.
func (t PromptType) FileName() string {
	if t == PromptDecision {
		return "decision-prompt.xml"
	}
	return "code-prompt.xml"
}

// Fallback is the prompt returned for t when its file is unusable.
func (t PromptType) Fallback() string {
	if t == PromptDecision {
		return DefaultDecisionPrompt
	}
	return DefaultCodePrompt
}

// ExtractSystemPrompt returns the trimmed <system_prompt> body.
func ExtractSystemPrompt(xml string) (string, bool) {
	m := systemPromptPattern.FindStringSubmatch(xml)
	if m == nil {
		return "", false
	}
	prompt := strings.TrimSpace(m[1])
	return prompt, prompt != ""
}

// Prompts caches system prompts read from a directory.
type Prompts struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[PromptType]string
}

// NewPrompts creates a prompt store reading from dir.
func NewPrompts(dir string, logger *slog.Logger) *Prompts {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prompts{
		dir:    dir,
		logger: logger,
		cache:  make(map[PromptType]string),
	}
}

// Dir returns the prompt directory.
func (p *Prompts) Dir() string {
	return p.dir
}

// Get returns the prompt for t, loading it on first use.
func (p *Prompts) Get(t PromptType) string {
	p.mu.RLock()
	prompt, ok := p.cache[t]
	p.mu.RUnlock()
	if ok {
		return prompt
	}
	return p.Reload(t)
}

// Reload rereads the prompt file for t and caches the result.
func (p *Prompts) Reload(t PromptType) string {
	prompt, err := p.read(t)
	if err != nil {
		p.logger.Warn("using fallback prompt", "type", t, "error", err)
		prompt = t.Fallback()
	}

	p.mu.Lock()
	p.cache[t] = prompt
	p.mu.Unlock()
	return prompt
}

// ReloadFile reloads whichever prompt is stored at path. It reports false
// when path is not a prompt file.
func (p *Prompts) ReloadFile(path string) bool {
	base := filepath.Base(path)
	for _, t := range []PromptType{PromptCode, PromptDecision} {
		if base == t.FileName() {
			p.Reload(t)
			p.logger.Info("reloaded prompt", "type", t, "path", path)
			return true
		}
	}
	return false
}

func (p *Prompts) read(t PromptType) (string, error) {
	path := filepath.Join(p.dir, t.FileName())
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	prompt, ok := ExtractSystemPrompt(string(data))
	if !ok {
		return "", fmt.Errorf("%s: no <system_prompt> element", path)
	}
	return prompt, nil
}
