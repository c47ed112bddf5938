package core

import "encoding/json"

// EventKind is the tag on an Event. It is a plain string type, not a closed
// enum, so internal/session can append its own turn_end/error kinds to the
// same vocabulary without internal/core knowing about them (mirrors the
// teacher's StreamEventType pattern in internal/provider/provider.go).
type EventKind string

const (
	EventTextDelta EventKind = "text_delta"
	EventMessage   EventKind = "message"
	EventToolCall  EventKind = "tool_call"
	EventToolResult EventKind = "tool_result"
	EventStep      EventKind = "step"
)

// Usage reports token accounting for one model round-trip.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Event is the single vocabulary the loop emits on its events channel
// (spec §4.3). Only the fields relevant to Kind are populated; the rest
// are zero. internal/session wraps this with turn_end/error variants
// rather than redeclaring the whole shape.
type Event struct {
	Kind EventKind

	// EventTextDelta
	Delta string

	// EventMessage: the finalized assistant message for the step.
	Message *ModelMessage

	// EventToolCall: a call the loop is about to run (after drain point 2
	// steering has already been applied).
	CallID   string
	ToolName string
	Args     json.RawMessage

	// EventToolResult: CallID/ToolName above identify which call this
	// answers; Result is the tool's output text, IsError whether it came
	// from a denial or a failed Execute.
	Result  string
	IsError bool

	// EventStep: end-of-step accounting.
	Usage        Usage
	FinishReason string
}
