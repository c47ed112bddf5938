package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/xonecas/agentturn/internal/core"
)

type fakeUpstream struct {
	tools    []Tool
	results  map[string]*ToolResult
	callErrs map[string]error
}

func (f *fakeUpstream) Initialize(ctx context.Context, clientInfo map[string]interface{}) (*Response, error) {
	return &Response{JSONRPC: "2.0"}, nil
}

func (f *fakeUpstream) ListTools(ctx context.Context) ([]Tool, error) {
	return f.tools, nil
}

func (f *fakeUpstream) CallTool(ctx context.Context, name string, arguments interface{}) (*ToolResult, error) {
	if err := f.callErrs[name]; err != nil {
		return nil, err
	}
	return f.results[name], nil
}

func TestToolSourceAdaptsUpstreamTools(t *testing.T) {
	upstream := &fakeUpstream{
		tools: []Tool{
			{Name: "weather.lookup", Description: "look up weather", InputSchema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`)},
		},
		results: map[string]*ToolResult{
			"weather.lookup": {Content: []ContentBlock{{Type: "text", Text: "sunny"}}},
		},
	}
	proxy := NewProxy(upstream)

	got, err := ToolSource(context.Background(), proxy)
	if err != nil {
		t.Fatalf("ToolSource failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 adapted tool, got %d", len(got))
	}

	tool := got[0]
	if tool.Name != "weather.lookup" {
		t.Errorf("expected tool name preserved, got %q", tool.Name)
	}
	var schema map[string]any
	if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
		t.Fatalf("expected valid JSON schema, got: %v", err)
	}

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"city":"nyc"}`), core.ToolContext{})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if out != "sunny" {
		t.Errorf("expected upstream text content relayed, got %q", out)
	}
}

func TestToolSourceDefaultsEmptySchema(t *testing.T) {
	upstream := &fakeUpstream{
		tools:   []Tool{{Name: "noop", Description: "does nothing"}},
		results: map[string]*ToolResult{"noop": {Content: []ContentBlock{{Type: "text", Text: "ok"}}}},
	}
	proxy := NewProxy(upstream)

	got, err := ToolSource(context.Background(), proxy)
	if err != nil {
		t.Fatalf("ToolSource failed: %v", err)
	}
	if string(got[0].Parameters) != `{"type":"object"}` {
		t.Errorf("expected default object schema for tool with no inputSchema, got %s", got[0].Parameters)
	}
}

func TestToolSourcePropagatesIsErrorAsError(t *testing.T) {
	upstream := &fakeUpstream{
		tools: []Tool{{Name: "fails", Description: "always fails"}},
		results: map[string]*ToolResult{
			"fails": {Content: []ContentBlock{{Type: "text", Text: "boom"}}, IsError: true},
		},
	}
	proxy := NewProxy(upstream)

	got, err := ToolSource(context.Background(), proxy)
	if err != nil {
		t.Fatalf("ToolSource failed: %v", err)
	}

	_, err = got[0].Execute(context.Background(), json.RawMessage(`{}`), core.ToolContext{})
	if err == nil {
		t.Fatalf("expected error for isError result")
	}
}

func TestToolSourceIncludesLocallyRegisteredTools(t *testing.T) {
	proxy := NewProxy(nil)
	proxy.RegisterTool(Tool{Name: "local.echo", Description: "echoes input"}, func(ctx context.Context, arguments json.RawMessage) (*ToolResult, error) {
		return &ToolResult{Content: []ContentBlock{{Type: "text", Text: string(arguments)}}}, nil
	})

	got, err := ToolSource(context.Background(), proxy)
	if err != nil {
		t.Fatalf("ToolSource failed: %v", err)
	}
	if len(got) != 1 || got[0].Name != "local.echo" {
		t.Fatalf("expected locally registered tool adapted, got %+v", got)
	}

	out, err := got[0].Execute(context.Background(), json.RawMessage(`{"x":1}`), core.ToolContext{})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if out != `{"x":1}` {
		t.Errorf("expected local handler invoked with raw arguments, got %q", out)
	}
}

func TestRegisterCoreToolsRoundTripsSessionIDAndRuntime(t *testing.T) {
	rt := &fakeRuntime{cwd: "/workspace"}
	echo := core.Tool{
		Name:        "echo.session",
		Description: "reports the caller's session id and runtime",
		Execute: func(ctx context.Context, input json.RawMessage, tctx core.ToolContext) (string, error) {
			return tctx.SessionID + ":" + tctx.Runtime.Cwd(), nil
		},
	}

	proxy := NewProxy(nil)
	RegisterCoreTools(proxy, rt, []core.Tool{echo})

	adapted, err := ToolSource(context.Background(), proxy)
	if err != nil {
		t.Fatalf("ToolSource failed: %v", err)
	}
	if len(adapted) != 1 || adapted[0].Name != "echo.session" {
		t.Fatalf("expected the registered core tool adapted back, got %+v", adapted)
	}

	out, err := adapted[0].Execute(context.Background(), json.RawMessage(`{}`), core.ToolContext{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if out != "sess-1:/workspace" {
		t.Errorf("expected session id and runtime to survive the proxy round trip, got %q", out)
	}
}

type fakeRuntime struct{ cwd string }

func (r *fakeRuntime) Cwd() string { return r.cwd }

func (r *fakeRuntime) Exec(ctx context.Context, command string, opts core.ExecOptions) (core.ExecResult, error) {
	return core.ExecResult{}, nil
}

func (r *fakeRuntime) ReadFile(ctx context.Context, path string) (string, error) { return "", nil }

func (r *fakeRuntime) WriteFile(ctx context.Context, path string, content string) error { return nil }
