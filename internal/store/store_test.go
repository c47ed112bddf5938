package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xonecas/agentturn/internal/core"
)

func strptr(s string) *string { return &s }

func testEntries() []core.Entry {
	root := core.NewMessageEntry("e1", nil, core.UserMessage("hi"))
	second := core.NewMessageEntry("e2", strptr("e1"), core.AssistantMessage("hello", nil))
	compaction := core.NewCompactionEntry("e3", strptr("e2"), "summary text", "e2")
	return []core.Entry{root, second, compaction}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	exists, err := s.Exists(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Fatal("Exists() = true before any append")
	}

	for _, e := range testEntries() {
		if err := s.Append(ctx, "sess-1", e); err != nil {
			t.Fatalf("Append(%s) error = %v", e.ID, err)
		}
	}

	exists, err = s.Exists(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Fatal("Exists() = false after append")
	}

	loaded, err := s.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("Load() returned %d entries, want 3", len(loaded))
	}
	if loaded[0].ID != "e1" || loaded[1].ID != "e2" || loaded[2].ID != "e3" {
		t.Fatalf("Load() out of append order: %+v", loaded)
	}
	if loaded[2].Kind != core.EntryCompaction || loaded[2].Summary != "summary text" {
		t.Fatalf("compaction entry mangled: %+v", loaded[2])
	}
	if loaded[1].Message == nil || loaded[1].Message.Text() != "hello" {
		t.Fatalf("message entry mangled: %+v", loaded[1])
	}

	otherExists, err := s.Exists(ctx, "sess-other")
	if err != nil {
		t.Fatalf("Exists(other) error = %v", err)
	}
	if otherExists {
		t.Fatal("Exists(sess-other) = true, want false")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSQLite(filepath.Join(dir, "sessions.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestJSONLStore(t *testing.T) {
	s, err := NewJSONLStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONLStore() error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestIsSQLiteBusy(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errString("disk I/O error"), false},
		{errString("database is locked"), true},
	}
	for _, tc := range cases {
		if got := IsSQLiteBusy(tc.err); got != tc.want {
			t.Errorf("IsSQLiteBusy(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }
