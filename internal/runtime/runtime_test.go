package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xonecas/agentturn/internal/core"
	"github.com/xonecas/agentturn/internal/shell"
)

func TestExecAndCwdAnchoring(t *testing.T) {
	dir := t.TempDir()
	rt := New(dir, nil)

	res, err := rt.Exec(context.Background(), "echo hello", core.ExecOptions{})
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.Stdout != "hello\n" {
		t.Fatalf("Stdout = %q, want %q", res.Stdout, "hello\n")
	}

	// cd outside the root is clamped back and a warning is written to
	// stderr (teacher's updateFromRunner behavior, unchanged).
	if _, err := rt.Exec(context.Background(), "cd /", core.ExecOptions{}); err != nil {
		t.Fatalf("Exec(cd /) error = %v", err)
	}
	if rt.Cwd() != dir {
		t.Fatalf("Cwd() = %q, want %q (clamped)", rt.Cwd(), dir)
	}
}

func TestExecBlockedCommand(t *testing.T) {
	dir := t.TempDir()
	rt := New(dir, shell.DefaultBlockFuncs())

	res, err := rt.Exec(context.Background(), "curl http://example.com", core.ExecOptions{})
	if err == nil && res.ExitCode == 0 {
		t.Fatal("expected blocked command to fail")
	}
}

func TestExecTimeout(t *testing.T) {
	dir := t.TempDir()
	rt := New(dir, nil)

	_, err := rt.Exec(context.Background(), "sleep 5", core.ExecOptions{Timeout: 50 * time.Millisecond})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestReadWriteFile(t *testing.T) {
	dir := t.TempDir()
	rt := New(dir, nil)
	ctx := context.Background()

	if err := rt.WriteFile(ctx, "sub/note.txt", "hi there"); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := rt.ReadFile(ctx, "sub/note.txt")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got != "hi there" {
		t.Fatalf("ReadFile() = %q, want %q", got, "hi there")
	}

	abs := filepath.Join(dir, "sub", "note.txt")
	if _, err := os.Stat(abs); err != nil {
		t.Fatalf("file not written to expected path: %v", err)
	}
}
