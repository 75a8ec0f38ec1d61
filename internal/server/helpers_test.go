package server

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/boblangley/artifact-forge/internal/applier"
	"github.com/boblangley/artifact-forge/internal/config"
	"github.com/boblangley/artifact-forge/internal/materialize"
	"github.com/boblangley/artifact-forge/internal/parser"
	"github.com/boblangley/artifact-forge/internal/patcher"
	"github.com/boblangley/artifact-forge/internal/preview"
	"github.com/boblangley/artifact-forge/internal/sandbox"
	"github.com/boblangley/artifact-forge/internal/types"
)

const testHostPage = `'use client';
import { useState } from 'react';
import Badge from './components/Badge';

export default function Home() {
  return (
    <main className="p-8">
      {/* You can add your main content here */}
    </main>
  );
}
`

const badgeArtifact = "Here you go.\n\n// File: app/components/Badge.tsx\n```tsx\n" +
	"import React from 'react';\n\n" +
	"export default function Badge() {\n  return (<span>Hi</span>);\n}\n```\n"

func createTempDir(t *testing.T, prefix string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

type fakeLedger struct {
	mu      sync.Mutex
	records []types.ApplyRecord
}

func (f *fakeLedger) RecordApply(_ context.Context, rec types.ApplyRecord, _ string) (types.ApplyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append([]types.ApplyRecord{rec}, f.records...)
	return rec, nil
}

func (f *fakeLedger) ListApplies(_ context.Context, limit int) ([]types.ApplyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.records) {
		limit = len(f.records)
	}
	return append([]types.ApplyRecord(nil), f.records[:limit]...), nil
}

func (f *fakeLedger) Routes(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	routes := []string{}
	for _, r := range f.records {
		if r.RoutePath != "" && !seen[r.RoutePath] {
			seen[r.RoutePath] = true
			routes = append(routes, r.RoutePath)
		}
	}
	sort.Strings(routes)
	return routes, nil
}

type testEnv struct {
	pipeline   *Pipeline
	projectDir string
	hostPage   string
	ledger     *fakeLedger
}

func setupPipeline(t *testing.T) *testEnv {
	t.Helper()
	projectDir := createTempDir(t, "test_project_")
	hostPage := filepath.Join(projectDir, "app", "page.tsx")
	if err := os.MkdirAll(filepath.Dir(hostPage), 0755); err != nil {
		t.Fatalf("Failed to create app dir: %v", err)
	}
	if err := os.WriteFile(hostPage, []byte(testHostPage), 0644); err != nil {
		t.Fatalf("Failed to write host page: %v", err)
	}

	sb, err := materialize.New(materialize.Config{ProjectDir: projectDir, Root: "app"})
	if err != nil {
		t.Fatalf("Failed to create sandbox: %v", err)
	}
	renderer, err := sandbox.New(sandbox.Config{CacheSize: 8})
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	ledger := &fakeLedger{}
	p := &Pipeline{
		Applier: applier.New(applier.Config{
			Sandbox:  sb,
			Embedder: patcher.New(patcher.Config{HostPath: hostPage, ProjectDir: projectDir}),
			Ledger:   ledger,
		}),
		Snippets: parser.NewSnippetExtractor(),
		Renderer: renderer,
		Hub:      preview.NewHub(preview.Config{}),
		Prompts:  config.NewPrompts(filepath.Join(projectDir, "app", "config"), nil),
		Ledger:   ledger,
		HostPage: hostPage,
	}
	return &testEnv{pipeline: p, projectDir: projectDir, hostPage: hostPage, ledger: ledger}
}
