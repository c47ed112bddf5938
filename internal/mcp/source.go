package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xonecas/agentturn/internal/core"
)

// defaultInputSchema is handed to the model when an upstream tool omits an
// inputSchema entirely; an empty object schema accepts anything.
var defaultInputSchema = json.RawMessage(`{"type":"object"}`)

// sessionIDKey is the context key adaptTool and RegisterCoreTools use to
// smuggle core.ToolContext.SessionID across the proxy's ToolHandler
// boundary, whose signature (ctx, arguments) has no ToolContext of its own
// — the same boundary a real upstream MCP server sits behind, where there
// is no session concept to thread through at all.
type sessionIDKey struct{}

func withSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey{}, id)
}

func sessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

// RegisterCoreTools registers each of coreTools as a local handler on proxy,
// using rt as their Runtime. This routes the framework's built-in tool set
// (internal/tools.DefaultSet) through the same local-handler-first
// CallTool/ListTools path an upstream MCP tool takes, so proxy becomes the
// session's single tool source instead of local dispatch being reachable
// only from tests (source_test.go). SessionID is recovered from ctx via
// sessionIDFrom (set by withSessionID), since RegisterTool's handler
// signature carries no ToolContext.
func RegisterCoreTools(proxy *Proxy, rt core.Runtime, coreTools []core.Tool) {
	for _, t := range coreTools {
		t := t
		proxy.RegisterTool(Tool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters},
			func(ctx context.Context, arguments json.RawMessage) (*ToolResult, error) {
				out, err := t.Execute(ctx, arguments, core.ToolContext{Runtime: rt, SessionID: sessionIDFrom(ctx)})
				if err != nil {
					return &ToolResult{Content: []ContentBlock{{Type: "text", Text: err.Error()}}, IsError: true}, nil
				}
				return &ToolResult{Content: []ContentBlock{{Type: "text", Text: out}}}, nil
			})
	}
}

// ToolSource lists the tools a Proxy currently exposes (local handlers plus
// whatever the upstream server advertises) as core.Tool values, so they run
// through the same turn loop as the built-in tool set. Call it once per
// session construction: the result reflects whatever ListTools returns at
// that moment, it does not track later upstream changes.
func ToolSource(ctx context.Context, proxy *Proxy) ([]core.Tool, error) {
	mcpTools, err := proxy.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mcp tools: %w", err)
	}

	tools := make([]core.Tool, 0, len(mcpTools))
	for _, t := range mcpTools {
		tools = append(tools, adaptTool(proxy, t))
	}
	return tools, nil
}

func adaptTool(proxy *Proxy, t Tool) core.Tool {
	schema := t.InputSchema
	if len(schema) == 0 {
		schema = defaultInputSchema
	}

	return core.Tool{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  schema,
		Execute: func(ctx context.Context, input json.RawMessage, tctx core.ToolContext) (string, error) {
			result, err := proxy.CallTool(withSessionID(ctx, tctx.SessionID), t.Name, input)
			if err != nil {
				return "", fmt.Errorf("mcp tool %s: %w", t.Name, err)
			}
			out := formatToolResult(result)
			if result.IsError {
				return "", fmt.Errorf("mcp tool %s: %s", t.Name, out)
			}
			return out, nil
		},
	}
}

// formatToolResult flattens an MCP ToolResult's content blocks into the
// plain string the loop expects as tool-result output (spec §7).
func formatToolResult(result *ToolResult) string {
	if result == nil {
		return ""
	}
	var b strings.Builder
	for i, block := range result.Content {
		if i > 0 {
			b.WriteString("\n")
		}
		switch block.Type {
		case "text":
			b.WriteString(block.Text)
		default:
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
