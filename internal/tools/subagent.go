package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xonecas/agentturn/internal/agent"
	"github.com/xonecas/agentturn/internal/core"
	"github.com/xonecas/agentturn/internal/modelclient"
	"github.com/xonecas/agentturn/internal/session"
	"github.com/xonecas/agentturn/internal/store"
)

const (
	// maxSubAgentIterations is the default max steps for a sub-agent turn.
	maxSubAgentIterations = 5
	// maxAllowedIterations is the upper bound on a caller-specified
	// max_iterations.
	maxAllowedIterations = 20
)

// SubAgentArgs are the arguments to the SubAgent tool.
type SubAgentArgs struct {
	Prompt        string `json:"prompt" jsonschema:"required,description=Task description for the sub-agent. Be specific about what needs to be accomplished and the expected output format."`
	MaxIterations int    `json:"max_iterations,omitempty" jsonschema:"description=Maximum model round-trips for the sub-agent (default 5)"`
}

// NewSubAgent builds the SubAgent tool: it spawns a nested agent.Session
// sharing the parent's model and runtime, demonstrating that the framework
// is self-hosting (spec SPEC_FULL.md §D "Sub-agents"). siblingTools is the
// parent's own tool set; SubAgent is filtered out of it before the
// sub-agent runs, bounding recursion to depth 1.
func NewSubAgent(model modelclient.Client, siblingTools []core.Tool) core.Tool {
	schema := generateSchema[SubAgentArgs]()
	filtered := filterSubAgentTool(siblingTools)
	return core.Tool{
		Name:        "SubAgent",
		Description: `Spawn a sub-agent to handle a focused task. The sub-agent runs with the same tools but cannot spawn further sub-agents. Use this to decompose complex tasks into smaller, manageable pieces. The sub-agent's work is returned as a summary.`,
		Parameters:  schema,
		Execute:     executeSubAgent(schema, model, filtered),
	}
}

func executeSubAgent(schema json.RawMessage, model modelclient.Client, tools []core.Tool) core.ToolExecuteFunc {
	return func(ctx context.Context, input json.RawMessage, tctx core.ToolContext) (string, error) {
		if err := validateArgs(schema, input); err != nil {
			return "", err
		}
		var args SubAgentArgs
		if err := json.Unmarshal(input, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if args.Prompt == "" {
			return "", fmt.Errorf("prompt is required")
		}

		maxIter := maxSubAgentIterations
		if args.MaxIterations > 0 {
			if args.MaxIterations > maxAllowedIterations {
				return "", fmt.Errorf("max_iterations too large (max: %d)", maxAllowedIterations)
			}
			maxIter = args.MaxIterations
		}

		sub := agent.New(agent.Config{
			Model:        model,
			SystemPrompt: subAgentSystemPrompt(),
			Tools:        tools,
			Runtime:      tctx.Runtime,
			MaxSteps:     core.IntPtr(maxIter),
			Store:        store.NewMemoryStore(),
		})

		// A fresh, uniquely-scoped session id keeps the sub-agent's Read/
		// Edit file-tracker state isolated from the parent's, while still
		// running against the same working directory.
		sess := sub.CreateSession(agent.CreateOptions{ID: tctx.SessionID + "/sub:" + uuid.NewString()})

		var finalText string
		sess.On(session.EventTurnEnd, func(_ context.Context, ev session.Event) error {
			finalText = ev.TurnText
			return nil
		})

		sess.Send(ctx, args.Prompt, session.ModeSteer)
		if err := sess.WaitForIdle(ctx); err != nil {
			return "", fmt.Errorf("sub-agent failed: %w", err)
		}
		if strings.TrimSpace(finalText) == "" {
			return "", fmt.Errorf("sub-agent produced no final response")
		}

		return fmt.Sprintf("Sub-agent completed.\n\n%s", finalText), nil
	}
}

// filterSubAgentTool removes the SubAgent tool from a tool list, grounded
// on the teacher's mcptools.filterSubAgentTool / subagent.FilterTools.
func filterSubAgentTool(tools []core.Tool) []core.Tool {
	filtered := make([]core.Tool, 0, len(tools))
	for _, t := range tools {
		if t.Name != "SubAgent" {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// subAgentSystemPrompt mirrors the teacher's buildSubAgentSystemPrompt /
// subagent.SystemPrompt.
func subAgentSystemPrompt() string {
	return strings.TrimSpace(`
You are a focused sub-agent working on a specific task assigned by a parent agent.

Your role:
- Complete the assigned task efficiently using the tools available to you.
- Provide a clear, concise final response summarizing what you accomplished.
- You cannot spawn further sub-agents.

When done, respond with a summary: what was accomplished, and be specific about
any files modified, commands run, or issues found. You have a limited number of
steps — work efficiently.
`)
}
