package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xonecas/agentturn/internal/core"
	"github.com/xonecas/agentturn/internal/runtime"
	"github.com/xonecas/agentturn/internal/shell"
)

func newTestRuntime(t *testing.T) (core.Runtime, string) {
	t.Helper()
	dir := t.TempDir()
	return runtime.New(dir, shell.DefaultBlockFuncs()), dir
}

func callTool(t *testing.T, tool core.Tool, args any, sessionID string, rt core.Runtime) (string, error) {
	t.Helper()
	b, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return tool.Execute(context.Background(), b, core.ToolContext{Runtime: rt, SessionID: sessionID})
}

func TestReadWholeFile(t *testing.T) {
	rt, dir := newTestRuntime(t)
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\nthree"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	tracker := newFileReadTracker()
	tool := NewRead(tracker)

	out, err := callTool(t, tool, ReadArgs{File: "a.txt"}, "sess1", rt)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	for _, want := range []string{"1:", "two", "3:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if !tracker.wasRead("sess1", filepath.Join(dir, "a.txt")) {
		t.Errorf("expected file marked as read after Read")
	}
}

func TestReadRange(t *testing.T) {
	rt, dir := newTestRuntime(t)
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\nthree\nfour"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	tool := NewRead(newFileReadTracker())
	out, err := callTool(t, tool, ReadArgs{File: "a.txt", Start: 2, End: 3}, "sess1", rt)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if strings.Contains(out, "one") || strings.Contains(out, "four") {
		t.Errorf("range read leaked lines outside [2,3]:\n%s", out)
	}
	if !strings.Contains(out, "two") || !strings.Contains(out, "three") {
		t.Errorf("range read missing expected lines:\n%s", out)
	}
}

func TestReadRangeOutOfBounds(t *testing.T) {
	rt, dir := newTestRuntime(t)
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	tool := NewRead(newFileReadTracker())
	_, err := callTool(t, tool, ReadArgs{File: "a.txt", Start: 5}, "sess1", rt)
	if err == nil {
		t.Fatalf("expected error for out-of-range start line")
	}
}

func TestReadMissingFile(t *testing.T) {
	rt, _ := newTestRuntime(t)
	tool := NewRead(newFileReadTracker())
	_, err := callTool(t, tool, ReadArgs{File: "missing.txt"}, "sess1", rt)
	if err == nil {
		t.Fatalf("expected error reading a missing file")
	}
}

func TestReadRejectsPathEscape(t *testing.T) {
	rt, _ := newTestRuntime(t)
	tool := NewRead(newFileReadTracker())
	_, err := callTool(t, tool, ReadArgs{File: "../../etc/passwd"}, "sess1", rt)
	if err == nil {
		t.Fatalf("expected error escaping the runtime root")
	}
}

func TestExtractRangeDefaultsToWholeFile(t *testing.T) {
	lines := []string{"a", "b", "c"}
	got, start, err := extractRange(lines, "a\nb\nc", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a\nb\nc" || start != 1 {
		t.Errorf("got %q/%d, want whole file from line 1", got, start)
	}
}

func TestExtractRangeInvalidOrder(t *testing.T) {
	lines := []string{"a", "b", "c"}
	if _, _, err := extractRange(lines, "a\nb\nc", 3, 1); err == nil {
		t.Fatalf("expected error for start > end")
	}
}
