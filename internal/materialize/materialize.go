// Package materialize writes artifacts into a sandboxed project tree.
package materialize

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrOutsideRoot is returned when a path resolves outside the sandbox root.
	ErrOutsideRoot = errors.New("path resolves outside sandbox root")

	// ErrWriteFailed wraps any storage failure during Write.
	ErrWriteFailed = errors.New("write failed")
)

// Sandbox resolves and writes files under a single root directory.
type Sandbox struct {
	projectDir string
	root       string
	logger     *slog.Logger
}

// Config holds sandbox configuration.
type Config struct {
	// ProjectDir is the base that relative artifact paths are resolved against.
	ProjectDir string

	// Root is the directory writes must stay inside. Relative roots are
	// resolved against ProjectDir.
	Root string

	Logger *slog.Logger
}

// New creates a sandbox. Both directories are made absolute.
func New(cfg Config) (*Sandbox, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	projectDir, err := filepath.Abs(cfg.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}

	root := cfg.Root
	if !filepath.IsAbs(root) {
		root = filepath.Join(projectDir, root)
	}
	root = filepath.Clean(root)

	return &Sandbox{
		projectDir: projectDir,
		root:       root,
		logger:     logger,
	}, nil
}

// ProjectDir returns the absolute project directory.
func (s *Sandbox) ProjectDir() string {
	return s.projectDir
}

// Root returns the absolute sandbox root.
func (s *Sandbox) Root() string {
	return s.root
}

// Resolve maps a repo-relative path to an absolute target. A single leading
// slash is ignored. The returned relative path uses forward slashes.
func (s *Sandbox) Resolve(relPath string) (abs, rel string, err error) {
	relPath = strings.TrimPrefix(strings.ReplaceAll(relPath, `\`, "/"), "/")
	if relPath == "" {
		return "", "", fmt.Errorf("empty path: %w", ErrOutsideRoot)
	}

	abs = filepath.Clean(filepath.Join(s.projectDir, filepath.FromSlash(relPath)))
	if !s.Contains(abs) {
		return "", "", fmt.Errorf("%s: %w", relPath, ErrOutsideRoot)
	}

	r, err := filepath.Rel(s.projectDir, abs)
	if err != nil {
		return "", "", fmt.Errorf("relativize %s: %w", relPath, err)
	}
	return abs, filepath.ToSlash(r), nil
}

// Contains reports whether abs lies strictly inside the sandbox root.
func (s *Sandbox) Contains(abs string) bool {
	return strings.HasPrefix(filepath.Clean(abs), s.root+string(filepath.Separator))
}

// Write creates missing parent directories and overwrites abs with content.
// abs must have come from Resolve.
func (s *Sandbox) Write(abs, content string) error {
	if !s.Contains(abs) {
		return fmt.Errorf("%s: %w", abs, ErrOutsideRoot)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("%w: create directory: %w", ErrWriteFailed, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	s.logger.Info("wrote file", "path", abs, "bytes", len(content))
	return nil
}
