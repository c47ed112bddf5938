package loop

import (
	"encoding/json"
	"sync"

	"github.com/xonecas/agentturn/internal/core"
)

// RepeatGuard detects a model issuing the same tool call (name + args)
// three times running and surfaces a nudge, generalizing the teacher's
// injectRecitation/repeated-call detection in internal/llm/loop.go from a
// history-scanning pass into an incremental observer over the new
// tool-call vocabulary. Not part of spec.md; an additive, optional step
// (SPEC_FULL.md §D).
type RepeatGuard struct {
	mu      sync.Mutex
	recent  []string
	pending string
}

// NewRepeatGuard builds an empty guard.
func NewRepeatGuard() *RepeatGuard { return &RepeatGuard{} }

func callKey(c core.ToolCallPart) string {
	b, _ := json.Marshal(struct {
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	}{c.Name, c.Input})
	return string(b)
}

// Observe records one step's tool calls. Reminder returns a nudge after
// every Observe that leaves the three most recently recorded calls
// identical; a different call clears it.
func (g *RepeatGuard) Observe(calls []core.ToolCallPart) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range calls {
		g.recent = append(g.recent, callKey(c))
	}
	if len(g.recent) > 3 {
		g.recent = g.recent[len(g.recent)-3:]
	}

	g.pending = ""
	if len(g.recent) == 3 && g.recent[0] == g.recent[1] && g.recent[1] == g.recent[2] {
		g.pending = "WARNING: You are repeating the same tool call with the same arguments. This is wasteful. Stop and either try a different approach, summarize what you know, or ask the user for help."
	}
}

// Reminder returns the nudge text produced by the most recent Observe
// call, or "" if no repeat was detected.
func (g *RepeatGuard) Reminder() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}
