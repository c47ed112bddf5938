package core

import (
	"encoding/json"
	"testing"
)

func TestAssistantMessageOrdering(t *testing.T) {
	calls := []ToolCallPart{
		{ID: "c1", Name: "Shell", Input: json.RawMessage(`{"command":"ls"}`)},
		{ID: "c2", Name: "Read", Input: json.RawMessage(`{"path":"a.go"}`)},
	}

	cases := []struct {
		name string
		text string
	}{
		{"with text", "looking at the repo"},
		{"without text", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := AssistantMessage(tc.text, calls)
			if msg.Role != RoleAssistant {
				t.Fatalf("role = %v, want assistant", msg.Role)
			}
			got := msg.ToolCalls()
			if len(got) != 2 || got[0].ID != "c1" || got[1].ID != "c2" {
				t.Fatalf("tool calls out of order: %+v", got)
			}
			if tc.text == "" {
				if msg.Text() != "" {
					t.Fatalf("Text() = %q, want empty", msg.Text())
				}
			} else if msg.Text() != tc.text {
				t.Fatalf("Text() = %q, want %q", msg.Text(), tc.text)
			}
			if !msg.HasToolCalls() {
				t.Fatal("HasToolCalls() = false, want true")
			}
		})
	}
}

func TestToolResultMessageShape(t *testing.T) {
	msg := ToolResultMessage("c1", "Shell", "ok")
	if msg.Role != RoleTool {
		t.Fatalf("role = %v, want tool", msg.Role)
	}
	if len(msg.Content) != 1 || msg.Content[0].Type != PartToolResult {
		t.Fatalf("content = %+v, want single tool-result part", msg.Content)
	}
	if msg.Content[0].ToolResult.CallID != "c1" {
		t.Fatalf("callId = %q, want c1", msg.Content[0].ToolResult.CallID)
	}
}

func TestDecisionHelpers(t *testing.T) {
	if !Allow().IsNone() {
		t.Fatal("Allow() should be none")
	}
	d := Deny("nope")
	if d.IsNone() || d.Kind != DecisionDeny || d.Deny != "nope" {
		t.Fatalf("Deny() = %+v", d)
	}
	args := json.RawMessage(`{"x":1}`)
	o := OverrideArgs(args)
	if o.IsNone() || o.Kind != DecisionArgs || string(o.Args) != string(args) {
		t.Fatalf("OverrideArgs() = %+v", o)
	}
}
