package tools

import "testing"

func TestTodoWriteSetsAndScopesContent(t *testing.T) {
	rt, _ := newTestRuntime(t)
	pad := NewScratchpad()
	tool := NewTodoWrite(pad)

	if _, err := callTool(t, tool, TodoWriteArgs{Content: "step 1\nstep 2"}, "sess-a", rt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pad.Content("sess-a"); got != "step 1\nstep 2" {
		t.Errorf("got %q, want %q", got, "step 1\nstep 2")
	}
	if got := pad.Content("sess-b"); got != "" {
		t.Errorf("expected sess-b's pad to be untouched, got %q", got)
	}
}

func TestTodoWriteRejectsEmptyContent(t *testing.T) {
	rt, _ := newTestRuntime(t)
	tool := NewTodoWrite(NewScratchpad())
	if _, err := callTool(t, tool, TodoWriteArgs{}, "sess1", rt); err == nil {
		t.Fatalf("expected error for empty content")
	}
}

func TestTodoWriteOverwritesPreviousContent(t *testing.T) {
	rt, _ := newTestRuntime(t)
	pad := NewScratchpad()
	tool := NewTodoWrite(pad)

	if _, err := callTool(t, tool, TodoWriteArgs{Content: "first"}, "sess1", rt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := callTool(t, tool, TodoWriteArgs{Content: "second"}, "sess1", rt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pad.Content("sess1"); got != "second" {
		t.Errorf("got %q, want %q (overwrite, not append)", got, "second")
	}
}
