package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/xonecas/agentturn/internal/core"
	"github.com/xonecas/agentturn/internal/modelclient"
	"github.com/xonecas/agentturn/internal/store"
)

func newTestSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore()
	}
	if cfg.MaxSteps == nil {
		cfg.MaxSteps = core.IntPtr(10)
	}
	return newSession("sess-"+t.Name(), cfg)
}

func echoTool(name string) core.Tool {
	return core.Tool{
		Name: name,
		Execute: func(ctx context.Context, input json.RawMessage, tctx core.ToolContext) (string, error) {
			return string(input), nil
		},
	}
}

func TestSendIdleStartsTurnAndEmitsTurnEnd(t *testing.T) {
	mock := modelclient.NewMock().Push(modelclient.MockTurn{TextDeltas: []string{"hi there"}, FinishReason: "stop"})
	s := newTestSession(t, Config{Model: mock})

	done := make(chan Event, 1)
	s.On(EventTurnEnd, func(ctx context.Context, ev Event) error {
		done <- ev
		return nil
	})

	s.Send(context.Background(), "hello", "")

	select {
	case ev := <-done:
		if ev.TurnText != "hi there" {
			t.Fatalf("turn text = %q", ev.TurnText)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for turn_end")
	}

	if err := s.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle = %v", err)
	}

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %+v, want user+assistant", entries)
	}
	if entries[0].Message.Text() != "hello" || entries[1].Message.Text() != "hi there" {
		t.Fatalf("entries = %+v", entries)
	}
	if s.LeafEntryID() == nil || *s.LeafEntryID() != entries[1].ID {
		t.Fatalf("leaf = %v, want %s", s.LeafEntryID(), entries[1].ID)
	}
}

func TestWaitForIdleImmediateWhenNoTurnRunning(t *testing.T) {
	s := newTestSession(t, Config{Model: modelclient.NewMock()})
	if err := s.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle = %v, want nil", err)
	}
}

func TestToolCallListenerFirstWins(t *testing.T) {
	mock := modelclient.NewMock().
		Push(modelclient.MockTurn{ToolCalls: []modelclient.MockToolCall{{ID: "c1", Name: "bash", Input: json.RawMessage(`{}`)}}}).
		Push(modelclient.MockTurn{TextDeltas: []string{"done"}, FinishReason: "stop"})

	s := newTestSession(t, Config{Model: mock, Tools: []core.Tool{echoTool("bash")}})

	var secondCalled bool
	s.OnToolCall(func(ctx context.Context, ev Event) (*core.Decision, error) {
		d := core.Deny("no")
		return &d, nil
	})
	s.OnToolCall(func(ctx context.Context, ev Event) (*core.Decision, error) {
		secondCalled = true
		return nil, nil
	})

	var result Event
	resultCh := make(chan struct{}, 1)
	s.On(core.EventToolResult, func(ctx context.Context, ev Event) error {
		result = ev
		resultCh <- struct{}{}
		return nil
	})

	s.Send(context.Background(), "run it", "")
	if err := s.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle = %v", err)
	}
	<-resultCh

	if secondCalled {
		t.Fatal("second listener should not be invoked once the first wins")
	}
	if !result.IsError || result.Result != "no" {
		t.Fatalf("result = %+v, want isError 'no'", result)
	}
}

func TestMidTurnSteeringAppearsAfterToolResults(t *testing.T) {
	mock := modelclient.NewMock().
		Push(modelclient.MockTurn{ToolCalls: []modelclient.MockToolCall{
			{ID: "c1", Name: "bash", Input: json.RawMessage(`{}`)},
		}}).
		Push(modelclient.MockTurn{TextDeltas: []string{"done"}, FinishReason: "stop"})

	s := newTestSession(t, Config{Model: mock, Tools: []core.Tool{echoTool("bash")}})

	var order []string
	s.On(core.EventToolResult, func(ctx context.Context, ev Event) error {
		order = append(order, "tool_result")
		return nil
	})
	s.On(core.EventMessage, func(ctx context.Context, ev Event) error {
		if ev.Message.Role == core.RoleUser && ev.Message.Text() == "steer now" {
			order = append(order, "steer")
		}
		return nil
	})

	// Steer as soon as the first tool_call decision is requested, so the
	// steering queue has something pending at the mid-Phase-1 check.
	s.OnToolCall(func(ctx context.Context, ev Event) (*core.Decision, error) {
		s.Send(context.Background(), "steer now", ModeSteer)
		return nil, nil
	})

	s.Send(context.Background(), "go", "")
	if err := s.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle = %v", err)
	}

	foundToolResult := false
	for _, o := range order {
		if o == "tool_result" {
			foundToolResult = true
		}
		if o == "steer" && !foundToolResult {
			t.Fatalf("steer observed before any tool_result: %v", order)
		}
	}
}

// TestMidPhase1SteeringChainsAfterBothToolResults exercises the case the
// single-call version above can't: steering arrives while a second call is
// still awaiting its decision (mid-Phase-1, spec §4.3 drain point 2), so
// the queue is drained before either of the step's tool_result entries
// exists. The flushed steering entry's parent must still resolve to the
// step's last tool result — not the assistant entry that predates both —
// or buildContext from the new leaf silently drops the tool results.
func TestMidPhase1SteeringChainsAfterBothToolResults(t *testing.T) {
	mock := modelclient.NewMock().
		Push(modelclient.MockTurn{ToolCalls: []modelclient.MockToolCall{
			{ID: "c0", Name: "bash", Input: json.RawMessage(`{}`)},
			{ID: "c1", Name: "bash", Input: json.RawMessage(`{}`)},
		}}).
		Push(modelclient.MockTurn{TextDeltas: []string{"done"}, FinishReason: "stop"})

	s := newTestSession(t, Config{Model: mock, Tools: []core.Tool{echoTool("bash")}})

	steered := false
	s.OnToolCall(func(ctx context.Context, ev Event) (*core.Decision, error) {
		if ev.CallID == "c0" && !steered {
			steered = true
			s.Send(context.Background(), "steer now", ModeSteer)
		}
		return nil, nil
	})

	s.Send(context.Background(), "go", "")
	if err := s.WaitForIdle(context.Background()); err != nil {
		t.Fatalf("WaitForIdle = %v", err)
	}

	entries := s.Entries()
	leaf := s.LeafEntryID()
	if leaf == nil {
		t.Fatal("leaf entry id is nil after turn_end")
	}
	path := buildContext(entries, leaf)

	var toolResultCallIDs []string
	for _, m := range path {
		if m.Role != core.RoleTool {
			continue
		}
		for _, p := range m.Content {
			if p.Type == core.PartToolResult && p.ToolResult != nil {
				toolResultCallIDs = append(toolResultCallIDs, p.ToolResult.CallID)
			}
		}
	}
	if len(toolResultCallIDs) != 2 {
		t.Fatalf("buildContext dropped tool results: got %v, want results for c0 and c1", toolResultCallIDs)
	}

	sawSteer := false
	for _, m := range path {
		if m.Role == core.RoleUser && m.Text() == "steer now" {
			sawSteer = true
		}
	}
	if !sawSteer {
		t.Fatalf("buildContext path is missing the steering message: %#v", path)
	}
}

func TestSendDuringRunningTurnQueuesFollowUp(t *testing.T) {
	mock := modelclient.NewMock().
		Push(modelclient.MockTurn{TextDeltas: []string{"first"}, FinishReason: "stop"}).
		Push(modelclient.MockTurn{TextDeltas: []string{"second"}, FinishReason: "stop"})

	s := newTestSession(t, Config{Model: mock})

	s.OnToolCall(func(ctx context.Context, ev Event) (*core.Decision, error) { return nil, nil })

	turnEnds := make(chan Event, 2)
	s.On(EventTurnEnd, func(ctx context.Context, ev Event) error {
		turnEnds <- ev
		return nil
	})
	// queue a follow-up the moment the first assistant message is emitted,
	// so it's picked up by the loop's terminal drain point before turn_end.
	s.On(core.EventMessage, func(ctx context.Context, ev Event) error {
		if ev.Message.Role == core.RoleAssistant && ev.Message.Text() == "first" {
			s.Send(context.Background(), "continue", ModeQueue)
		}
		return nil
	})

	s.Send(context.Background(), "go", "")

	select {
	case ev := <-turnEnds:
		if ev.TurnText != "second" {
			t.Fatalf("turn text = %q, want follow-up turn to have run", ev.TurnText)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for turn_end")
	}
}
