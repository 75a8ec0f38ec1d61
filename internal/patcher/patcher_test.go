package patcher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const hostPage = `'use client';
import { useState } from 'react';
import Badge from './components/Badge';
import BadgeGroup from './components/BadgeGroup';

export default function Home() {
  const [n] = useState(0);
  return (
    <main className="p-8">
      {/* You can add your main content here */}
    </main>
  );
}
`

const badgeSource = `import React from 'react';

export default function Badge() {
  return (<span>Hi</span>);
}`

func createTempProject(t *testing.T, host string) (projectDir, hostPath string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "test_project_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	hostPath = filepath.Join(dir, "app", "page.tsx")
	if host != "" {
		if err := os.MkdirAll(filepath.Dir(hostPath), 0755); err != nil {
			t.Fatalf("Failed to create app dir: %v", err)
		}
		if err := os.WriteFile(hostPath, []byte(host), 0644); err != nil {
			t.Fatalf("Failed to write host page: %v", err)
		}
	}
	return dir, hostPath
}

func newTestPatcher(t *testing.T, host string) (*Patcher, string) {
	t.Helper()
	projectDir, hostPath := createTempProject(t, host)
	return New(Config{HostPath: hostPath, ProjectDir: projectDir}), hostPath
}

// ==================== Embed Tests ====================

func TestEmbedRewritesHostPage(t *testing.T) {
	p, hostPath := newTestPatcher(t, hostPage)

	result, err := p.Embed("app/components/Badge.tsx", badgeSource)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if !result.Embedded || result.ImportName != "Generated_Badge" {
		t.Errorf("Unexpected result: %+v", result)
	}

	data, err := os.ReadFile(hostPath)
	if err != nil {
		t.Fatalf("Failed to read host page: %v", err)
	}
	content := string(data)

	if strings.Contains(content, "from './components/Badge'") {
		t.Error("Import of the inlined module should be removed")
	}
	if !strings.Contains(content, "from './components/BadgeGroup'") {
		t.Error("Unrelated import should be kept")
	}
	block := strings.Index(content, "// BEGIN INLINE COMPONENT: Generated_Badge")
	home := strings.Index(content, "export default function Home(")
	if block < 0 || home < 0 || block > home {
		t.Errorf("Block should precede Home:\n%s", content)
	}
	if !strings.Contains(content, "function Generated_Badge() {") {
		t.Errorf("Expected renamed declaration:\n%s", content)
	}
	marker := strings.Index(content, UsageMarker)
	usage := strings.Index(content, "<Generated_Badge />")
	if usage < marker {
		t.Errorf("Usage should follow the marker:\n%s", content)
	}
}

func TestEmbedMissingHost(t *testing.T) {
	p, hostPath := newTestPatcher(t, "")

	result, err := p.Embed("app/components/Badge.tsx", badgeSource)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if result.Embedded {
		t.Error("Embedded should be false without a host page")
	}
	if _, err := os.Stat(hostPath); !os.IsNotExist(err) {
		t.Error("Host page should not be created")
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	p, _ := newTestPatcher(t, hostPage)

	once := p.Apply(hostPage, "app/components/Badge.tsx", "Generated_Badge", badgeSource)
	twice := p.Apply(once, "app/components/Badge.tsx", "Generated_Badge", badgeSource)
	if once != twice {
		t.Errorf("Second apply changed the document:\n--- once\n%s\n--- twice\n%s", once, twice)
	}

	updated := strings.Replace(badgeSource, "Hi", "Hello", 1)
	third := p.Apply(twice, "app/components/Badge.tsx", "Generated_Badge", updated)
	if strings.Count(third, "// BEGIN INLINE COMPONENT: Generated_Badge") != 1 {
		t.Errorf("Expected exactly one block:\n%s", third)
	}
	if !strings.Contains(third, "<span>Hello</span>") || strings.Contains(third, "<span>Hi</span>") {
		t.Errorf("Block should be replaced with the new source:\n%s", third)
	}
}

func TestApplyAddsLabelProp(t *testing.T) {
	p, _ := newTestPatcher(t, hostPage)
	source := "export const Chip: FC<{ label: string }> = ({ label }) => <b>{label}</b>;"

	out := p.Apply(hostPage, "app/components/Chip.tsx", "Generated_Chip", source)
	if !strings.Contains(out, `<Generated_Chip label="Preview" />`) {
		t.Errorf("Expected labelled usage:\n%s", out)
	}
	if !strings.Contains(out, "import { useState, FC } from 'react';") {
		t.Errorf("Expected FC added to the react import:\n%s", out)
	}
}

func TestImportPath(t *testing.T) {
	p, _ := newTestPatcher(t, hostPage)

	tests := map[string]string{
		"app/components/Badge.tsx":   "components/Badge",
		"app/components/ui/Card.jsx": "components/ui/Card",
		"app/lib/util.ts":            "lib/util",
	}
	for in, want := range tests {
		if got := p.ImportPath(in); got != want {
			t.Errorf("ImportPath(%q) = %q, want %q", in, got, want)
		}
	}
}

// ==================== Document Rewrite Tests ====================

func TestEnsureTypeAlias(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "append to named import",
			in:   "'use client';\nimport { useState } from 'react';\n",
			want: "'use client';\nimport { useState, FC } from 'react';\n",
		},
		{
			name: "already imported",
			in:   "import { FC, useState } from 'react';\n",
			want: "import { FC, useState } from 'react';\n",
		},
		{
			name: "type-only import",
			in:   "import type { FC } from \"react\";\n",
			want: "import type { FC } from \"react\";\n",
		},
		{
			name: "inline type specifier",
			in:   "import { type FC } from 'react';\n",
			want: "import { type FC } from 'react';\n",
		},
		{
			name: "default import only",
			in:   "'use client';\nimport React from 'react';\n",
			want: "'use client';\nimport type { FC } from 'react';\nimport React from 'react';\n",
		},
		{
			name: "type-only list without FC",
			in:   "'use client';\nimport type { ReactNode } from 'react';\n",
			want: "'use client';\nimport type { FC } from 'react';\nimport type { ReactNode } from 'react';\n",
		},
		{
			name: "other package",
			in:   "'use client';\nimport { FC } from 'preact';\n",
			want: "'use client';\nimport type { FC } from 'react';\nimport { FC } from 'preact';\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EnsureTypeAlias(tt.in); got != tt.want {
				t.Errorf("EnsureTypeAlias:\n got %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestRemoveModuleImport(t *testing.T) {
	content := strings.Join([]string{
		`import Badge from './components/Badge';`,
		`import Badge2 from "components/Badge.tsx"`,
		`import { B } from './components/Badge.jsx';`,
		`import Group from './components/BadgeGroup';`,
		`const x = 1;`,
	}, "\n")

	got := RemoveModuleImport(content, "./components/Badge")
	want := "import Group from './components/BadgeGroup';\nconst x = 1;"
	if got != want {
		t.Errorf("RemoveModuleImport:\n got %q\nwant %q", got, want)
	}
}

func TestUpsertBlockWithoutAnchor(t *testing.T) {
	content := "const a = 1;\n"
	block := "\n// BEGIN INLINE COMPONENT: Generated_X\nconst Generated_X = 1;\n// END INLINE COMPONENT: Generated_X\n"

	got := UpsertBlock(content, "Generated_X", block)
	if got != content+block {
		t.Errorf("Block should be appended, got %q", got)
	}
}

func TestUpsertUsageFallbacks(t *testing.T) {
	noMarker := "<main>\n      </main>"
	got, ok := UpsertUsage(noMarker, "Generated_X", false)
	if !ok {
		t.Fatal("Expected usage before </main>")
	}
	if strings.Index(got, "<Generated_X />") > strings.Index(got, "</main>") {
		t.Errorf("Usage should precede </main>: %q", got)
	}

	if got, ok := UpsertUsage("<div></div>", "Generated_X", false); ok || got != "<div></div>" {
		t.Errorf("Expected no usage site, got %q (%v)", got, ok)
	}

	existing := `<Generated_X label="Old" />`
	if got, _ := UpsertUsage(existing, "Generated_X", false); got != "<Generated_X />" {
		t.Errorf("Existing usage should be rewritten, got %q", got)
	}
}

func TestUpsertUsageSkipsMainInsideInjectedBlocks(t *testing.T) {
	host := `'use client';

export default function Home() {
  return (
    <main className="p-8">
      <h1>Home</h1>
    </main>
  );
}
`
	p, _ := newTestPatcher(t, host)
	source := "export default function Shell() { return (<main>shell</main>); }"
	got := p.Apply(host, "app/components/Shell.tsx", "Generated_Shell", source)

	end := strings.Index(got, "// END INLINE COMPONENT: Generated_Shell")
	usage := strings.Index(got, "<Generated_Shell />")
	if end < 0 || usage < 0 {
		t.Fatalf("Expected block and usage in host page:\n%s", got)
	}
	if usage < end {
		t.Errorf("Usage landed inside the injected block:\n%s", got)
	}
	if usage > strings.LastIndex(got, "</main>") {
		t.Errorf("Usage should precede the host's </main>:\n%s", got)
	}
}

func TestBlocks(t *testing.T) {
	p, _ := newTestPatcher(t, hostPage)
	content := p.Apply(hostPage, "app/components/Badge.tsx", "Generated_Badge", badgeSource)
	content = p.Apply(content, "app/components/Card.tsx", "Generated_Card", "export function Card() { return null; }")

	blocks := Blocks(content)
	if len(blocks) != 2 {
		t.Fatalf("Expected 2 blocks, got %+v", blocks)
	}
	if blocks[0].Name != "Generated_Badge" || blocks[1].Name != "Generated_Card" {
		t.Errorf("Unexpected block order: %+v", blocks)
	}
	if blocks[1].Source != "function Generated_Card() { return null; }" {
		t.Errorf("Unexpected block source: %q", blocks[1].Source)
	}

	if Blocks("// BEGIN INLINE COMPONENT: Orphan\nno end") != nil {
		t.Error("Unterminated block should be ignored")
	}
}
