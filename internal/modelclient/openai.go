package modelclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/agentturn/internal/core"
)

// OpenAICompatibleClient speaks the OpenAI chat/completions streaming wire
// format. It covers any backend that exposes that shape under a
// configurable base URL — Ollama, vLLM, and OpenAI itself — the same
// consolidation the teacher's ollama.go/vllm.go/opencode.go each perform
// individually, generalized into one adapter keyed by BaseURL.
type OpenAICompatibleClient struct {
	apiKey     string
	model      string
	baseURL    string
	authHeader string // defaults to "Authorization"
	httpClient *http.Client
}

// NewOpenAICompatibleClient builds a client against baseURL (e.g.
// "https://api.openai.com/v1", "http://localhost:11434/v1").
func NewOpenAICompatibleClient(apiKey, model, baseURL string) *OpenAICompatibleClient {
	return &OpenAICompatibleClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		authHeader: "Authorization",
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

type chatMessage struct {
	Role       string             `json:"role"`
	Content    string             `json:"content,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCallWire `json:"tool_calls,omitempty"`
}

type chatToolCallWire struct {
	ID       string              `json:"id"`
	Type     string              `json:"type"`
	Function chatFunctionCallWire `json:"function"`
}

type chatFunctionCallWire struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Stream      bool          `json:"stream"`
	StreamUsage struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options,omitempty"`
}

func toChatMessages(system string, messages []core.ModelMessage) []chatMessage {
	var out []chatMessage
	if system != "" {
		out = append(out, chatMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		switch m.Role {
		case core.RoleTool:
			for _, p := range m.Content {
				if p.Type == core.PartToolResult && p.ToolResult != nil {
					out = append(out, chatMessage{Role: "tool", Content: p.ToolResult.Output, ToolCallID: p.ToolResult.CallID})
				}
			}
		case core.RoleAssistant:
			cm := chatMessage{Role: "assistant", Content: m.Text()}
			for _, tc := range m.ToolCalls() {
				cm.ToolCalls = append(cm.ToolCalls, chatToolCallWire{
					ID: tc.ID, Type: "function",
					Function: chatFunctionCallWire{Name: tc.Name, Arguments: string(tc.Input)},
				})
			}
			out = append(out, cm)
		default:
			out = append(out, chatMessage{Role: string(m.Role), Content: m.Text()})
		}
	}
	return out
}

func toChatTools(tools []ToolDescriptor) []chatTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]chatTool, len(tools))
	for i, t := range tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		out[i] = chatTool{Type: "function", Function: chatFunction{Name: t.Name, Description: t.Description, Parameters: schema}}
	}
	return out
}

func (c *OpenAICompatibleClient) Stream(ctx context.Context, system string, messages []core.ModelMessage, tools []ToolDescriptor) (*Stream, error) {
	req := chatRequest{Model: c.model, Messages: toChatMessages(system, messages), Tools: toChatTools(tools), Stream: true}
	req.StreamUsage.IncludeUsage = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &core.ModelError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &core.ModelError{Err: err}
	}
	httpReq.Header.Set("content-type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set(c.authHeader, "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &core.ModelError{Err: fmt.Errorf("openai-compatible request: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &core.ModelError{Err: fmt.Errorf("openai-compatible status %d: %s", resp.StatusCode, string(b))}
	}

	parts := make(chan StreamPart)
	stream, resolve, reject := newStream(parts)

	go func() {
		defer resp.Body.Close()
		defer close(parts)
		usage, finish, err := parseChatSSE(ctx, resp.Body, parts)
		if err != nil {
			reject(&core.ModelError{Err: err})
			return
		}
		resolve(usage, finish)
	}()

	return stream, nil
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// parseChatSSE reads an OpenAI-compatible chat/completions SSE stream,
// accumulating streamed tool-call argument fragments by index and
// emitting one PartToolCall per call once the stream ends (the wire
// format carries each call's arguments as fragments across chunks,
// mirroring the teacher's toolCallAccumulator in internal/llm/loop.go).
func parseChatSSE(ctx context.Context, r io.Reader, out chan<- StreamPart) (core.Usage, string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var usage core.Usage
	var finish string
	type pending struct {
		id, name string
		args     strings.Builder
	}
	byIndex := map[int]*pending{}
	var order []int

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Warn().Err(err).Msg("openai-compatible: bad stream chunk")
			continue
		}
		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != nil {
				finish = *choice.FinishReason
			}
			if choice.Delta.Content != "" {
				if !sendPart(ctx, out, StreamPart{Type: PartTextDelta, Text: choice.Delta.Content}) {
					return usage, finish, ctx.Err()
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				p, ok := byIndex[tc.Index]
				if !ok {
					p = &pending{}
					byIndex[tc.Index] = p
					order = append(order, tc.Index)
				}
				if tc.ID != "" {
					p.id = tc.ID
				}
				if tc.Function.Name != "" {
					p.name = tc.Function.Name
				}
				p.args.WriteString(tc.Function.Arguments)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return usage, finish, err
	}

	for _, idx := range order {
		p := byIndex[idx]
		args := p.args.String()
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		if !sendPart(ctx, out, StreamPart{Type: PartToolCall, ToolCallID: p.id, ToolName: p.name, Input: json.RawMessage(args)}) {
			return usage, finish, ctx.Err()
		}
	}
	return usage, finish, nil
}

var _ Client = (*OpenAICompatibleClient)(nil)
