// Package watcher reacts to edits of the host page and the prompt files.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/boblangley/artifact-forge/internal/config"
	"github.com/boblangley/artifact-forge/internal/patcher"
	"github.com/boblangley/artifact-forge/internal/types"
)

// HostEvent describes a change to the host page.
type HostEvent struct {
	Path   string
	Exists bool
	Blocks []types.InjectedBlock
}

// Watcher watches the host page and prompt directory.
type Watcher struct {
	hostPage     string
	prompts      *config.Prompts
	onHostChange func(context.Context, HostEvent)
	logger       *slog.Logger

	watcher  *fsnotify.Watcher
	debounce time.Duration
	pending  map[string]time.Time
	mu       sync.Mutex

	// last seen content hash per file
	fileHashes map[string]string
	hashMu     sync.RWMutex
}

// Config holds watcher configuration.
type Config struct {
	// HostPage is the absolute host page path.
	HostPage string

	// Prompts is reloaded when a prompt file changes. Optional.
	Prompts *config.Prompts

	// OnHostChange is called after the host page content changes. Optional.
	OnHostChange func(context.Context, HostEvent)

	Debounce time.Duration
	Logger   *slog.Logger
}

// New creates a new file watcher.
func New(cfg Config) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		hostPage:     filepath.Clean(cfg.HostPage),
		prompts:      cfg.Prompts,
		onHostChange: cfg.OnHostChange,
		logger:       logger,
		watcher:      fsWatcher,
		debounce:     debounce,
		pending:      make(map[string]time.Time),
		fileHashes:   make(map[string]string),
	}, nil
}

// Start watches the host page directory and the prompt directory. Missing
// directories are skipped with a warning.
func (w *Watcher) Start(ctx context.Context) error {
	dirs := []string{filepath.Dir(w.hostPage)}
	if w.prompts != nil {
		dirs = append(dirs, w.prompts.Dir())
	}

	seen := make(map[string]bool)
	for _, dir := range dirs {
		if seen[dir] {
			continue
		}
		seen[dir] = true

		if _, err := os.Stat(dir); err != nil {
			w.logger.Warn("not watching missing directory", "path", dir)
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
	}

	w.updateFileHash(w.hostPage)
	w.logger.Info("started watching", "host", w.hostPage, "dirs", len(seen))

	go w.processEvents(ctx)
	go w.processDebounced(ctx)

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) relevant(path string) bool {
	path = filepath.Clean(path)
	if path == w.hostPage {
		return true
	}
	if w.prompts == nil || filepath.Dir(path) != filepath.Clean(w.prompts.Dir()) {
		return false
	}
	base := filepath.Base(path)
	return base == config.PromptCode.FileName() || base == config.PromptDecision.FileName()
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event.Name) {
				continue
			}

			w.mu.Lock()
			w.pending[filepath.Clean(event.Name)] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.mu.Lock()
			now := time.Now()
			var ready []string
			for path, queued := range w.pending {
				if now.Sub(queued) >= w.debounce {
					ready = append(ready, path)
				}
			}
			for _, path := range ready {
				delete(w.pending, path)
			}
			w.mu.Unlock()

			for _, path := range ready {
				w.handleFileChange(ctx, path)
			}
		}
	}
}

func computeFileHash(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (w *Watcher) hasContentChanged(filePath string) bool {
	current, err := computeFileHash(filePath)
	if err != nil {
		return true
	}

	w.hashMu.RLock()
	stored, exists := w.fileHashes[filePath]
	w.hashMu.RUnlock()

	return !exists || current != stored
}

func (w *Watcher) updateFileHash(filePath string) {
	hash, err := computeFileHash(filePath)
	if err != nil {
		return
	}
	w.hashMu.Lock()
	w.fileHashes[filePath] = hash
	w.hashMu.Unlock()
}

func (w *Watcher) clearFileHash(filePath string) {
	w.hashMu.Lock()
	delete(w.fileHashes, filePath)
	w.hashMu.Unlock()
}

func (w *Watcher) handleFileChange(ctx context.Context, filePath string) {
	_, err := os.Stat(filePath)
	exists := err == nil

	if filePath != w.hostPage {
		if w.prompts != nil {
			w.prompts.ReloadFile(filePath)
		}
		return
	}

	if !exists {
		w.clearFileHash(filePath)
		w.logger.Warn("host page removed", "path", filePath)
		w.notifyHost(ctx, HostEvent{Path: filePath})
		return
	}

	if !w.hasContentChanged(filePath) {
		w.logger.Debug("host page unchanged, skipping", "path", filePath)
		return
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		w.logger.Error("failed to read host page", "path", filePath, "error", err)
		return
	}
	w.updateFileHash(filePath)

	blocks := patcher.Blocks(string(content))
	w.logger.Info("host page changed", "path", filePath, "blocks", len(blocks))
	w.notifyHost(ctx, HostEvent{Path: filePath, Exists: true, Blocks: blocks})
}

func (w *Watcher) notifyHost(ctx context.Context, ev HostEvent) {
	if w.onHostChange != nil {
		w.onHostChange(ctx, ev)
	}
}
