package applier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/boblangley/artifact-forge/internal/materialize"
	"github.com/boblangley/artifact-forge/internal/patcher"
	"github.com/boblangley/artifact-forge/internal/types"
)

const componentArtifact = "// File: app/components/Badge.tsx\n```tsx\nexport default function Badge() { return <b/>; }\n```"

type stubEmbedder struct {
	host   string
	err    error
	calls  int
	result types.EmbedResult
}

func (s *stubEmbedder) Embed(_, _ string) (types.EmbedResult, error) {
	s.calls++
	return s.result, s.err
}

func (s *stubEmbedder) HostPath() string { return s.host }

type stubLedger struct {
	records []types.ApplyRecord
	hosts   []string
	err     error
}

func (s *stubLedger) RecordApply(_ context.Context, rec types.ApplyRecord, host string) (types.ApplyRecord, error) {
	s.records = append(s.records, rec)
	s.hosts = append(s.hosts, host)
	return rec, s.err
}

func newTestSandbox(t *testing.T) *materialize.Sandbox {
	t.Helper()
	dir, err := os.MkdirTemp("", "test_project_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	sb, err := materialize.New(materialize.Config{ProjectDir: dir, Root: "app"})
	if err != nil {
		t.Fatalf("Failed to create sandbox: %v", err)
	}
	return sb
}

func TestRoutePath(t *testing.T) {
	tests := []struct {
		path   string
		want   string
		isPage bool
	}{
		{"app/about/page.tsx", "/about", true},
		{"app/a/b/page.jsx", "/a/b", true},
		{"app/index/page.ts", "/", true},
		{"app/blog/index/page.js", "/blog/", true},
		{"app/(marketing)/page.tsx", "/(marketing)", true},
		{"app/page.tsx", "", false},
		{"app/about/page.md", "", false},
		{"app/components/Badge.tsx", "", false},
	}

	for _, tt := range tests {
		got, ok := RoutePath(tt.path)
		if ok != tt.isPage || got != tt.want {
			t.Errorf("RoutePath(%q) = %q, %v; want %q, %v", tt.path, got, ok, tt.want, tt.isPage)
		}
	}
}

func TestApplyValidationFailures(t *testing.T) {
	sb := newTestSandbox(t)
	emb := &stubEmbedder{}
	a := New(Config{Sandbox: sb, Embedder: emb})

	tests := []struct {
		name    string
		content string
		message string
	}{
		{"empty", "", MsgMissingContent},
		{"unparseable", "hello", MsgUnparseable},
		{"traversal", "// File: ../../etc/passwd\n```\nx\n```", MsgOutsideApp},
		{"outside root", "// File: src/index.ts\n```\nx\n```", MsgOutsideApp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Apply(context.Background(), tt.content)
			var ae *Error
			if !errors.As(err, &ae) {
				t.Fatalf("Expected *Error, got %v", err)
			}
			if ae.Kind != KindBadInput || ae.Message != tt.message {
				t.Errorf("Got %s %q, want bad_input %q", ae.Kind, ae.Message, tt.message)
			}
		})
	}

	if emb.calls != 0 {
		t.Error("Embedder must not run for rejected input")
	}
	if entries, _ := os.ReadDir(sb.ProjectDir()); len(entries) != 0 {
		t.Error("Rejected input must not write anything")
	}
}

func TestApplyPageAndFile(t *testing.T) {
	sb := newTestSandbox(t)
	ledger := &stubLedger{}
	a := New(Config{Sandbox: sb, Ledger: ledger})
	ctx := context.Background()

	page, err := a.Apply(ctx, "File: app/docs/page.tsx\n```tsx\nexport default function Docs() {}\n```")
	if err != nil {
		t.Fatalf("Apply page failed: %v", err)
	}
	if page.FilePath != "app/docs/page.tsx" || page.RoutePath != "/docs" || page.Embedded != nil {
		t.Errorf("Unexpected page result: %+v", page)
	}

	// without an embedder a component is an ordinary file
	file, err := a.Apply(ctx, componentArtifact)
	if err != nil {
		t.Fatalf("Apply component failed: %v", err)
	}
	if file.Embedded != nil || file.RoutePath != "" {
		t.Errorf("Unexpected file result: %+v", file)
	}
	if _, err := os.Stat(filepath.Join(sb.ProjectDir(), "app", "components", "Badge.tsx")); err != nil {
		t.Errorf("Component file should exist: %v", err)
	}

	if len(ledger.records) != 2 {
		t.Fatalf("Expected 2 ledger records, got %d", len(ledger.records))
	}
	if ledger.records[0].Kind != types.ApplyPage || ledger.records[0].RoutePath != "/docs" {
		t.Errorf("Unexpected page record: %+v", ledger.records[0])
	}
	if ledger.records[1].Kind != types.ApplyFile || ledger.records[1].Language != "tsx" {
		t.Errorf("Unexpected file record: %+v", ledger.records[1])
	}
}

func TestApplyComponentEmbeds(t *testing.T) {
	sb := newTestSandbox(t)
	host := filepath.Join(sb.ProjectDir(), "app", "page.tsx")
	if err := os.MkdirAll(filepath.Dir(host), 0755); err != nil {
		t.Fatalf("Failed to create app dir: %v", err)
	}
	if err := os.WriteFile(host, []byte("export default function Home() {\n  return (<main></main>);\n}\n"), 0644); err != nil {
		t.Fatalf("Failed to write host: %v", err)
	}

	ledger := &stubLedger{}
	a := New(Config{
		Sandbox:  sb,
		Embedder: patcher.New(patcher.Config{HostPath: host, ProjectDir: sb.ProjectDir()}),
		Ledger:   ledger,
	})

	result, err := a.Apply(context.Background(), componentArtifact)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Embedded == nil || !*result.Embedded || result.ImportName != "Generated_Badge" {
		t.Errorf("Unexpected result: %+v", result)
	}
	if _, err := os.Stat(filepath.Join(sb.ProjectDir(), "app", "components", "Badge.tsx")); !os.IsNotExist(err) {
		t.Error("Embedded component should not be written as a file")
	}
	if len(ledger.hosts) != 1 || ledger.hosts[0] != "app/page.tsx" {
		t.Errorf("Ledger should receive the relative host page, got %v", ledger.hosts)
	}
	if !ledger.records[0].Embedded {
		t.Error("Ledger record should be marked embedded")
	}
}

func TestApplyComponentMissingHost(t *testing.T) {
	sb := newTestSandbox(t)
	host := filepath.Join(sb.ProjectDir(), "app", "page.tsx")
	a := New(Config{
		Sandbox:  sb,
		Embedder: patcher.New(patcher.Config{HostPath: host, ProjectDir: sb.ProjectDir()}),
	})

	result, err := a.Apply(context.Background(), componentArtifact)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Embedded == nil || *result.Embedded {
		t.Errorf("Expected embedded=false, got %+v", result)
	}
}

func TestApplyFailureKinds(t *testing.T) {
	sb := newTestSandbox(t)

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"write failure", fmt.Errorf("%w: host page: denied", materialize.ErrWriteFailed), KindWriteFailed},
		{"other failure", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(Config{Sandbox: sb, Embedder: &stubEmbedder{err: tt.err}})
			_, err := a.Apply(context.Background(), componentArtifact)
			if got := KindOf(err); got != tt.want {
				t.Errorf("KindOf = %s, want %s", got, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Error("Cause should be preserved")
			}
		})
	}
}

func TestApplyLedgerFailureIsIgnored(t *testing.T) {
	sb := newTestSandbox(t)
	a := New(Config{Sandbox: sb, Ledger: &stubLedger{err: errors.New("disk full")}})

	if _, err := a.Apply(context.Background(), "File: app/x.ts\n```ts\nx\n```"); err != nil {
		t.Errorf("Ledger failure should not fail the apply: %v", err)
	}
}

func TestApplyCancelledContext(t *testing.T) {
	sb := newTestSandbox(t)
	a := New(Config{Sandbox: sb})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Apply(ctx, "File: app/x.ts\n```ts\nx\n```")
	if KindOf(err) != KindInternal || !errors.Is(err, context.Canceled) {
		t.Errorf("Expected internal cancellation error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(sb.ProjectDir(), "app", "x.ts")); !os.IsNotExist(err) {
		t.Error("Cancelled apply must not write")
	}
}

func TestErrorDetails(t *testing.T) {
	e := &Error{Kind: KindWriteFailed, Message: MsgWriteFailed, Err: errors.New("EROFS")}
	if e.Error() != MsgWriteFailed+": EROFS" || e.Details() != "EROFS" {
		t.Errorf("Unexpected error text %q / %q", e.Error(), e.Details())
	}
	if (&Error{Message: MsgInternal}).Details() != "" {
		t.Error("Details should be empty without a cause")
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Error("Plain errors are internal")
	}
}
