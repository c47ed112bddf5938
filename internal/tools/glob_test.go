package tools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGlobFindsByName(t *testing.T) {
	rt, dir := newTestRuntime(t)
	mustWrite(t, filepath.Join(dir, "foo.go"), "package foo")
	mustWrite(t, filepath.Join(dir, "bar.go"), "package bar")
	mustWrite(t, filepath.Join(dir, "baz.txt"), "not go")

	tool := NewGlob()
	out, err := callTool(t, tool, GlobArgs{Pattern: `\.go$`}, "sess1", rt)
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if !strings.Contains(out, "foo.go") || !strings.Contains(out, "bar.go") {
		t.Errorf("expected both .go files in output:\n%s", out)
	}
	if strings.Contains(out, "baz.txt") {
		t.Errorf("unexpected baz.txt in name-pattern results:\n%s", out)
	}
}

func TestGlobContentSearch(t *testing.T) {
	rt, dir := newTestRuntime(t)
	mustWrite(t, filepath.Join(dir, "a.txt"), "hello needle world")
	mustWrite(t, filepath.Join(dir, "b.txt"), "nothing here")

	tool := NewGlob()
	out, err := callTool(t, tool, GlobArgs{Pattern: "needle", ContentSearch: true}, "sess1", rt)
	if err != nil {
		t.Fatalf("content search failed: %v", err)
	}
	if !strings.Contains(out, "a.txt") {
		t.Errorf("expected a.txt in content-search results:\n%s", out)
	}
	if strings.Contains(out, "b.txt") {
		t.Errorf("unexpected b.txt in content-search results:\n%s", out)
	}
}

func TestGlobNoMatches(t *testing.T) {
	rt, _ := newTestRuntime(t)
	tool := NewGlob()
	out, err := callTool(t, tool, GlobArgs{Pattern: "nonexistentpattern123"}, "sess1", rt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No matches") {
		t.Errorf("expected no-matches message, got: %s", out)
	}
}

func TestGlobRequiresPattern(t *testing.T) {
	rt, _ := newTestRuntime(t)
	tool := NewGlob()
	_, err := callTool(t, tool, GlobArgs{}, "sess1", rt)
	if err == nil {
		t.Fatalf("expected error for empty pattern")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
