// Package applier routes a parsed artifact to the file materializer or the
// host-page patcher and classifies failures for the boundary layer.
package applier

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/boblangley/artifact-forge/internal/materialize"
	"github.com/boblangley/artifact-forge/internal/parser"
	"github.com/boblangley/artifact-forge/internal/patcher"
	"github.com/boblangley/artifact-forge/internal/types"
)

// Kind classifies an apply failure.
type Kind int

const (
	KindInternal Kind = iota
	KindBadInput
	KindWriteFailed
)

func (k Kind) String() string {
	switch k {
	case KindBadInput:
		return "bad_input"
	case KindWriteFailed:
		return "write_failed"
	default:
		return "internal"
	}
}

// User-facing failure messages.
const (
	MsgMissingContent = "Missing content"
	MsgUnparseable    = "Could not parse single-file code block"
	MsgOutsideApp     = "File path must be under app/"
	MsgWriteFailed    = "Write failed (read-only filesystem?)"
	MsgInternal       = "Internal server error"
)

// Error is returned by Apply. Err holds the underlying cause, when any.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Details returns the raw cause text, or "".
func (e *Error) Details() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// KindOf returns the Kind carried by err, or KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

var (
	pagePattern      = regexp.MustCompile(`^app/(.*)/page\.(t|j)sx?$`)
	componentPattern = regexp.MustCompile(`^app/components/.+\.(t|j)sx?$`)
)

// Embedder inlines components into the host page.
type Embedder interface {
	Embed(componentRelPath, source string) (types.EmbedResult, error)
	HostPath() string
}

// Ledger records successful applies.
type Ledger interface {
	RecordApply(ctx context.Context, rec types.ApplyRecord, hostPage string) (types.ApplyRecord, error)
}

// Applier is the apply boundary operation.
type Applier struct {
	sandbox  *materialize.Sandbox
	embedder Embedder
	ledger   Ledger
	logger   *slog.Logger
}

// Config holds applier configuration.
type Config struct {
	Sandbox *materialize.Sandbox

	// Embedder handles app/components artifacts. Usually a *patcher.Patcher.
	Embedder Embedder

	// Ledger is optional.
	Ledger Ledger

	Logger *slog.Logger
}

var _ Embedder = (*patcher.Patcher)(nil)

// New creates a new applier.
func New(cfg Config) *Applier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		sandbox:  cfg.Sandbox,
		embedder: cfg.Embedder,
		ledger:   cfg.Ledger,
		logger:   logger,
	}
}

// RoutePath maps a page artifact path to its route, or "" when relPath is
// not a page under a route segment.
func RoutePath(relPath string) (string, bool) {
	m := pagePattern.FindStringSubmatch(relPath)
	if m == nil {
		return "", false
	}
	return "/" + strings.TrimSuffix(m[1], "index"), true
}

// Apply parses content and applies the artifact. Validation failures are
// reported before anything is written.
func (a *Applier) Apply(ctx context.Context, content string) (types.ApplyResult, error) {
	if content == "" {
		return types.ApplyResult{}, &Error{Kind: KindBadInput, Message: MsgMissingContent}
	}

	artifact, err := parser.ParseArtifact(content)
	if err != nil {
		return types.ApplyResult{}, &Error{Kind: KindBadInput, Message: MsgUnparseable}
	}

	abs, rel, err := a.sandbox.Resolve(artifact.FilePath)
	if err != nil {
		if errors.Is(err, materialize.ErrOutsideRoot) {
			return types.ApplyResult{}, &Error{Kind: KindBadInput, Message: MsgOutsideApp}
		}
		return types.ApplyResult{}, &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return types.ApplyResult{}, &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
	}

	result := types.ApplyResult{FilePath: rel}
	rec := types.ApplyRecord{FilePath: rel, Language: artifact.Language}

	switch route, isPage := RoutePath(rel); {
	case isPage:
		if err := a.write(abs, artifact.Code); err != nil {
			return types.ApplyResult{}, err
		}
		result.RoutePath = route
		rec.Kind, rec.RoutePath = types.ApplyPage, route

	case componentPattern.MatchString(rel) && a.embedder != nil:
		embed, err := a.embedder.Embed(rel, artifact.Code)
		if err != nil {
			return types.ApplyResult{}, classify(err)
		}
		embedded := embed.Embedded
		result.Embedded = &embedded
		result.ImportName = embed.ImportName
		rec.Kind, rec.Embedded, rec.ImportName = types.ApplyComponent, embedded, embed.ImportName

	default:
		if err := a.write(abs, artifact.Code); err != nil {
			return types.ApplyResult{}, err
		}
		rec.Kind = types.ApplyFile
	}

	a.logger.Info("applied artifact", "path", rel, "kind", rec.Kind, "route", result.RoutePath, "import", result.ImportName)
	a.record(ctx, rec)
	return result, nil
}

func (a *Applier) write(abs, code string) error {
	if err := a.sandbox.Write(abs, code); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, materialize.ErrWriteFailed):
		return &Error{Kind: KindWriteFailed, Message: MsgWriteFailed, Err: err}
	case errors.Is(err, materialize.ErrOutsideRoot):
		return &Error{Kind: KindBadInput, Message: MsgOutsideApp, Err: err}
	default:
		return &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
	}
}

// record is best effort; a ledger failure never fails the apply.
func (a *Applier) record(ctx context.Context, rec types.ApplyRecord) {
	if a.ledger == nil {
		return
	}
	host := ""
	if a.embedder != nil {
		host = a.relHost()
	}
	if _, err := a.ledger.RecordApply(ctx, rec, host); err != nil {
		a.logger.Warn("record apply failed", "path", rec.FilePath, "error", err)
	}
}

func (a *Applier) relHost() string {
	host := a.embedder.HostPath()
	rel, err := filepath.Rel(a.sandbox.ProjectDir(), host)
	if err != nil {
		return host
	}
	return filepath.ToSlash(rel)
}
