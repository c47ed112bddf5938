package modelclient

import (
	"context"
	"encoding/json"

	"github.com/xonecas/agentturn/internal/core"
)

// MockToolCall is one tool call a scripted Mock turn should emit.
type MockToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// MockTurn is one scripted response: Stream returns the next unconsumed
// turn each time it is called, in order.
type MockTurn struct {
	TextDeltas   []string
	ToolCalls    []MockToolCall
	Usage        core.Usage
	FinishReason string
	// Err, if set, makes Stream fail outright instead of returning a turn
	// (simulates a ModelError, spec §7).
	Err error
}

// Mock is a scripted Client for deterministic tests of the loop and
// session. It is not driven by a real model; turns are queued in advance
// with Push and consumed in FIFO order by Stream.
type Mock struct {
	turns []MockTurn
	calls []mockCall
}

type mockCall struct {
	System   string
	Messages []core.ModelMessage
	Tools    []ToolDescriptor
}

// NewMock creates an empty Mock client.
func NewMock() *Mock { return &Mock{} }

// Push enqueues a turn to be returned by the next Stream call.
func (m *Mock) Push(turn MockTurn) *Mock {
	m.turns = append(m.turns, turn)
	return m
}

// Calls returns every Stream invocation observed so far, in order — used
// by tests to assert what context the loop actually sent the model.
func (m *Mock) Calls() []mockCall { return m.calls }

func (m *Mock) Stream(ctx context.Context, system string, messages []core.ModelMessage, tools []ToolDescriptor) (*Stream, error) {
	msgsCopy := make([]core.ModelMessage, len(messages))
	copy(msgsCopy, messages)
	m.calls = append(m.calls, mockCall{System: system, Messages: msgsCopy, Tools: tools})

	if len(m.turns) == 0 {
		return nil, errNoMoreTurns
	}
	turn := m.turns[0]
	m.turns = m.turns[1:]

	if turn.Err != nil {
		return nil, turn.Err
	}

	parts := make(chan StreamPart)
	stream, resolve, _ := newStream(parts)

	go func() {
		defer close(parts)
		for _, d := range turn.TextDeltas {
			select {
			case parts <- StreamPart{Type: PartTextDelta, Text: d}:
			case <-ctx.Done():
				resolve(turn.Usage, turn.FinishReason)
				return
			}
		}
		for _, tc := range turn.ToolCalls {
			select {
			case parts <- StreamPart{Type: PartToolCall, ToolCallID: tc.ID, ToolName: tc.Name, Input: tc.Input}:
			case <-ctx.Done():
				resolve(turn.Usage, turn.FinishReason)
				return
			}
		}
		resolve(turn.Usage, turn.FinishReason)
	}()

	return stream, nil
}

var errNoMoreTurns = &mockExhaustedError{}

type mockExhaustedError struct{}

func (e *mockExhaustedError) Error() string { return "modelclient: mock has no more scripted turns" }

var _ Client = (*Mock)(nil)
