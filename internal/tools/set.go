package tools

import (
	"github.com/xonecas/agentturn/internal/core"
	"github.com/xonecas/agentturn/internal/modelclient"
)

// DefaultSet builds the framework's full built-in tool set: Shell, Read,
// Edit, Glob, WebFetch, TodoWrite, and SubAgent. Grounded on the teacher's
// cmd/symb/main.go two-phase wiring — every tool except SubAgent is built
// first, then SubAgent is registered last since it needs the rest of the
// list to hand to the sub-agents it spawns.
func DefaultSet(model modelclient.Client) []core.Tool {
	tracker := newFileReadTracker()
	pad := NewScratchpad()

	base := []core.Tool{
		NewShell(),
		NewRead(tracker),
		NewEdit(tracker),
		NewGlob(),
		NewWebFetch(),
		NewTodoWrite(pad),
	}
	return append(base, NewSubAgent(model, base))
}
