package session

import (
	"testing"

	"github.com/xonecas/agentturn/internal/core"
)

func ptr(s string) *string { return &s }

func TestBuildContextNilLeafReturnsEmpty(t *testing.T) {
	if got := buildContext(nil, nil); got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
	entries := []core.Entry{core.NewMessageEntry("a", nil, core.UserMessage("hi"))}
	if got := buildContext(entries, nil); got != nil {
		t.Fatalf("got %+v, want nil for nil leaf", got)
	}
}

func TestBuildContextNoCompaction(t *testing.T) {
	e1 := core.NewMessageEntry("1", nil, core.UserMessage("hi"))
	e2 := core.NewMessageEntry("2", ptr("1"), core.AssistantMessage("hello", nil))
	e3 := core.NewMessageEntry("3", ptr("2"), core.UserMessage("bye"))
	entries := []core.Entry{e1, e2, e3}

	got := buildContext(entries, ptr("3"))
	if len(got) != 3 {
		t.Fatalf("got %d messages, want 3: %+v", len(got), got)
	}
	if got[0].Text() != "hi" || got[1].Text() != "hello" || got[2].Text() != "bye" {
		t.Fatalf("messages out of order: %+v", got)
	}
}

func TestBuildContextCyclesTerminate(t *testing.T) {
	// 1 -> 2 -> 1 (cycle): entry 2's parent points back at 1.
	e1 := core.Entry{ID: "1", ParentID: ptr("2"), Kind: core.EntryMessage, Message: msgPtr(core.UserMessage("a"))}
	e2 := core.Entry{ID: "2", ParentID: ptr("1"), Kind: core.EntryMessage, Message: msgPtr(core.UserMessage("b"))}
	entries := []core.Entry{e1, e2}

	done := make(chan []core.ModelMessage, 1)
	go func() { done <- buildContext(entries, ptr("1")) }()
	select {
	case got := <-done:
		if len(got) > 2 {
			t.Fatalf("cycle not terminated: %+v", got)
		}
	}
}

func msgPtr(m core.ModelMessage) *core.ModelMessage { return &m }

func TestBuildContextLatestCompactionWins(t *testing.T) {
	e1 := core.NewMessageEntry("1", nil, core.UserMessage("first"))
	e2 := core.NewMessageEntry("2", ptr("1"), core.UserMessage("second"))
	e3 := core.NewMessageEntry("3", ptr("2"), core.UserMessage("third"))
	c1 := core.NewCompactionEntry("c1", ptr("3"), "old summary", "2")
	e4 := core.NewMessageEntry("4", ptr("c1"), core.UserMessage("fourth"))
	c2 := core.NewCompactionEntry("c2", ptr("4"), "latest summary", "4")
	e5 := core.NewMessageEntry("5", ptr("c2"), core.UserMessage("fifth"))

	entries := []core.Entry{e1, e2, e3, c1, e4, c2, e5}
	got := buildContext(entries, ptr("5"))

	// "fourth" is c2's firstKeptId, so it is kept verbatim before "fifth".
	if len(got) != 3 {
		t.Fatalf("got %d messages, want synthetic summary + fourth + fifth: %+v", len(got), got)
	}
	if got[0].Text() != "<summary>latest summary</summary>" {
		t.Fatalf("summary = %q", got[0].Text())
	}
	if got[1].Text() != "fourth" || got[2].Text() != "fifth" {
		t.Fatalf("tail = %q, %q, want fourth, fifth", got[1].Text(), got[2].Text())
	}
}

func TestBuildContextCompactionKeepsSuffixFromFirstKept(t *testing.T) {
	e1 := core.NewMessageEntry("1", nil, core.UserMessage("first"))
	e2 := core.NewMessageEntry("2", ptr("1"), core.UserMessage("second"))
	e3 := core.NewMessageEntry("3", ptr("2"), core.UserMessage("third"))
	c1 := core.NewCompactionEntry("c1", ptr("3"), "summary", "2")
	e4 := core.NewMessageEntry("4", ptr("c1"), core.UserMessage("fourth"))

	entries := []core.Entry{e1, e2, e3, c1, e4}
	got := buildContext(entries, ptr("4"))

	// synthetic summary, then "second" (firstKeptId) and "third" kept
	// verbatim since they're on the prefix at/after firstKeptId, then
	// "fourth" from after the compaction.
	if len(got) != 4 {
		t.Fatalf("got %d messages, want 4: %+v", len(got), got)
	}
	want := []string{"<summary>summary</summary>", "second", "third", "fourth"}
	for i, w := range want {
		if got[i].Text() != w {
			t.Fatalf("got[%d] = %q, want %q (full: %+v)", i, got[i].Text(), w, got)
		}
	}
}

func TestBuildContextFirstKeptIDNotOnPrefixKeepsNothingBefore(t *testing.T) {
	e1 := core.NewMessageEntry("1", nil, core.UserMessage("first"))
	c1 := core.NewCompactionEntry("c1", ptr("1"), "summary", "nonexistent")
	e2 := core.NewMessageEntry("2", ptr("c1"), core.UserMessage("second"))

	entries := []core.Entry{e1, c1, e2}
	got := buildContext(entries, ptr("2"))

	if len(got) != 2 {
		t.Fatalf("got %d messages, want summary + second only: %+v", len(got), got)
	}
	if got[0].Text() != "<summary>summary</summary>" || got[1].Text() != "second" {
		t.Fatalf("got = %+v", got)
	}
}
