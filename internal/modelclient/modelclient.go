// Package modelclient defines the language-model interface the loop
// consumes (spec §6) and the concrete clients that implement it.
package modelclient

import (
	"context"
	"encoding/json"

	"github.com/xonecas/agentturn/internal/core"
)

// ToolDescriptor is the shape a tool takes on the wire to the model: a
// name, a description, and a JSON Schema for its input. Distinct from
// core.Tool so model clients never see a tool's Execute func.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// StreamPartType tags one element of a Stream's Parts channel.
type StreamPartType string

const (
	// PartTextDelta carries a chunk of assistant text.
	PartTextDelta StreamPartType = "text-delta"
	// PartToolCall carries one fully-parsed tool call. Unlike the
	// teacher's begin/delta accumulation, callers of this interface
	// receive each tool call already assembled — accumulation across
	// wire-level deltas is the client's job, not the loop's.
	PartToolCall StreamPartType = "tool-call"
)

// StreamPart is one element of a Stream's fullStream (spec §6).
type StreamPart struct {
	Type StreamPartType

	// PartTextDelta
	Text string

	// PartToolCall
	ToolCallID string
	ToolName   string
	Input      json.RawMessage
}

// Stream is the streamed response object spec §6 describes: a channel of
// parts plus two values ("promises" in the spec's vocabulary) that are
// only valid once the Parts channel has been drained to closure. Usage
// and FinishReason block until that happens; both may be called any
// number of times.
type Stream struct {
	Parts <-chan StreamPart

	done   chan struct{}
	usage  core.Usage
	finish string
	err    error
}

// Usage blocks until the stream finishes and returns the accumulated
// token accounting.
func (s *Stream) Usage() (core.Usage, error) {
	<-s.done
	return s.usage, s.err
}

// FinishReason blocks until the stream finishes and returns the model's
// finish reason ("stop", "tool_calls", ...).
func (s *Stream) FinishReason() (string, error) {
	<-s.done
	if s.err != nil {
		return "", s.err
	}
	return s.finish, nil
}

// newStream wires up a Stream around a parts channel; the client-specific
// producer goroutine calls exactly one of resolve or reject once and then
// closes parts.
func newStream(parts <-chan StreamPart) (s *Stream, resolve func(core.Usage, string), reject func(error)) {
	s = &Stream{Parts: parts, done: make(chan struct{})}
	resolve = func(u core.Usage, finish string) {
		s.usage, s.finish = u, finish
		close(s.done)
	}
	reject = func(err error) {
		s.err = err
		close(s.done)
	}
	return s, resolve, reject
}

// Client is the language-model adapter the loop calls (spec §6): given a
// system prompt, the running message history, and the tool set, it
// returns a Stream of parts plus usage/finish-reason promises. Adapters
// are responsible for honoring ctx cancellation promptly.
type Client interface {
	Stream(ctx context.Context, system string, messages []core.ModelMessage, tools []ToolDescriptor) (*Stream, error)
}
