package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xonecas/agentturn/internal/core"
)

// Scratchpad holds one session's current plan/notes, grounded on the
// teacher's mcptools.Scratchpad, generalized from a single global pad to
// one scoped per session id.
type Scratchpad struct {
	mu      sync.RWMutex
	content map[string]string
}

// NewScratchpad creates an empty, per-session scratchpad store.
func NewScratchpad() *Scratchpad {
	return &Scratchpad{content: make(map[string]string)}
}

// Content returns sessionID's current scratchpad text.
func (s *Scratchpad) Content(sessionID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content[sessionID]
}

func (s *Scratchpad) set(sessionID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[sessionID] = content
}

// TodoWriteArgs are the arguments to the TodoWrite tool.
type TodoWriteArgs struct {
	Content string `json:"content" jsonschema:"required,description=Your current plan, todo list, or working notes. This replaces the previous content entirely."`
}

// NewTodoWrite builds the TodoWrite tool over pad.
func NewTodoWrite(pad *Scratchpad) core.Tool {
	schema := generateSchema[TodoWriteArgs]()
	return core.Tool{
		Name:        "TodoWrite",
		Description: `Write or update your working plan/scratchpad. The content replaces any previous plan. Use this to track goals, progress, and next steps for tasks with 3+ steps. Rewrite it as you complete steps to stay focused. Skip for simple single-step tasks.`,
		Parameters:  schema,
		Execute:     executeTodoWrite(schema, pad),
	}
}

func executeTodoWrite(schema json.RawMessage, pad *Scratchpad) core.ToolExecuteFunc {
	return func(_ context.Context, input json.RawMessage, tctx core.ToolContext) (string, error) {
		if err := validateArgs(schema, input); err != nil {
			return "", err
		}
		var args TodoWriteArgs
		if err := json.Unmarshal(input, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if args.Content == "" {
			return "", fmt.Errorf("content cannot be empty")
		}
		pad.set(tctx.SessionID, args.Content)
		return "Plan updated.", nil
	}
}
