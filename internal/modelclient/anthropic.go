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

// AnthropicClient speaks the Anthropic Messages API (streaming) as a
// modelclient.Client, grounded on the teacher's internal/provider SSE
// parsing (content_block_start/delta, message_start/delta accounting).
type AnthropicClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	maxTokens  int
}

// NewAnthropicClient builds a client for the given model. baseURL defaults
// to the public Anthropic API if empty.
func NewAnthropicClient(apiKey, model, baseURL string) *AnthropicClient {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		maxTokens:  8192,
	}
}

type anthropicCacheControl struct {
	Type string `json:"type"`
}

type anthropicCacheBlock struct {
	Type         string                 `json:"type"`
	Text         string                 `json:"text"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

type anthropicMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type anthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicToolUseBlock struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type anthropicToolResultBlock struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicRequest struct {
	Model     string                `json:"model"`
	Messages  []anthropicMessage    `json:"messages"`
	System    []anthropicCacheBlock `json:"system,omitempty"`
	MaxTokens int                   `json:"max_tokens"`
	Stream    bool                  `json:"stream"`
	Tools     []anthropicTool       `json:"tools,omitempty"`
}

// toAnthropicMessages converts core.ModelMessage values (spec §3) to the
// wire shape the Anthropic Messages API expects.
func toAnthropicMessages(messages []core.ModelMessage) []anthropicMessage {
	var out []anthropicMessage
	for _, m := range messages {
		switch m.Role {
		case core.RoleTool:
			for _, p := range m.Content {
				if p.Type != core.PartToolResult || p.ToolResult == nil {
					continue
				}
				out = append(out, anthropicMessage{
					Role: "user",
					Content: []anthropicToolResultBlock{{
						Type:      "tool_result",
						ToolUseID: p.ToolResult.CallID,
						Content:   p.ToolResult.Output,
					}},
				})
			}
		case core.RoleAssistant:
			var blocks []interface{}
			for _, p := range m.Content {
				switch p.Type {
				case core.PartText:
					if p.Text != "" {
						blocks = append(blocks, anthropicTextBlock{Type: "text", Text: p.Text})
					}
				case core.PartToolCall:
					input := p.ToolCall.Input
					if len(input) == 0 {
						input = json.RawMessage(`{}`)
					}
					blocks = append(blocks, anthropicToolUseBlock{
						Type: "tool_use", ID: p.ToolCall.ID, Name: p.ToolCall.Name, Input: input,
					})
				}
			}
			out = append(out, anthropicMessage{Role: "assistant", Content: blocks})
		default:
			out = append(out, anthropicMessage{Role: string(m.Role), Content: m.Text()})
		}
	}
	return out
}

func toAnthropicTools(tools []ToolDescriptor) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropicTool, len(tools))
	for i, t := range tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		out[i] = anthropicTool{Name: t.Name, Description: t.Description, InputSchema: schema}
	}
	return out
}

func (c *AnthropicClient) Stream(ctx context.Context, system string, messages []core.ModelMessage, tools []ToolDescriptor) (*Stream, error) {
	var sysBlocks []anthropicCacheBlock
	if system != "" {
		sysBlocks = []anthropicCacheBlock{{Type: "text", Text: system, CacheControl: &anthropicCacheControl{Type: "ephemeral"}}}
	}

	reqBody := anthropicRequest{
		Model:     c.model,
		Messages:  toAnthropicMessages(messages),
		System:    sysBlocks,
		MaxTokens: c.maxTokens,
		Stream:    true,
		Tools:     toAnthropicTools(tools),
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &core.ModelError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &core.ModelError{Err: err}
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &core.ModelError{Err: fmt.Errorf("anthropic request: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &core.ModelError{Err: fmt.Errorf("anthropic status %d: %s", resp.StatusCode, string(b))}
	}

	parts := make(chan StreamPart)
	stream, resolve, reject := newStream(parts)

	go func() {
		defer resp.Body.Close()
		defer close(parts)
		usage, finish, err := parseAnthropicSSE(ctx, resp.Body, parts)
		if err != nil {
			reject(&core.ModelError{Err: err})
			return
		}
		resolve(usage, finish)
	}()

	return stream, nil
}

type anthropicMessageStartEvt struct {
	Message struct {
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

type anthropicMessageDeltaEvt struct {
	Delta struct {
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicBlockStartEvt struct {
	Index        int `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
	} `json:"content_block"`
}

type anthropicBlockDeltaEvt struct {
	Index int `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
	} `json:"delta"`
}

// parseAnthropicSSE reads the Anthropic Messages API SSE stream and emits
// StreamParts, returning the final usage and finish reason once the
// message_stop event arrives (spec §6's usage/finishReason promises).
func parseAnthropicSSE(ctx context.Context, r io.Reader, out chan<- StreamPart) (core.Usage, string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var usage core.Usage
	var finish string
	var currentEvent string
	toolIndex := map[int]bool{}
	toolID := map[int]string{}
	toolName := map[int]string{}
	toolArgs := map[int]*strings.Builder{}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			currentEvent = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		switch currentEvent {
		case "message_start":
			var evt anthropicMessageStartEvt
			if json.Unmarshal([]byte(data), &evt) == nil {
				usage.InputTokens = evt.Message.Usage.InputTokens
				usage.OutputTokens = evt.Message.Usage.OutputTokens
			}
		case "content_block_start":
			var evt anthropicBlockStartEvt
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				log.Warn().Err(err).Msg("anthropic: bad content_block_start")
				continue
			}
			if evt.ContentBlock.Type == "tool_use" {
				toolIndex[evt.Index] = true
				toolID[evt.Index] = evt.ContentBlock.ID
				toolName[evt.Index] = evt.ContentBlock.Name
				toolArgs[evt.Index] = &strings.Builder{}
			}
		case "content_block_delta":
			var evt anthropicBlockDeltaEvt
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				log.Warn().Err(err).Msg("anthropic: bad content_block_delta")
				continue
			}
			switch evt.Delta.Type {
			case "text_delta":
				if evt.Delta.Text != "" {
					if !sendPart(ctx, out, StreamPart{Type: PartTextDelta, Text: evt.Delta.Text}) {
						return usage, finish, ctx.Err()
					}
				}
			case "input_json_delta":
				if b, ok := toolArgs[evt.Index]; ok {
					b.WriteString(evt.Delta.PartialJSON)
				}
			}
		case "content_block_stop":
			idx := currentBlockIndexFromData(data)
			if toolIndex[idx] {
				if !sendPart(ctx, out, StreamPart{
					Type:       PartToolCall,
					ToolCallID: toolID[idx],
					ToolName:   toolName[idx],
					Input:      json.RawMessage(emptyObjIfBlank(toolArgs[idx].String())),
				}) {
					return usage, finish, ctx.Err()
				}
			}
		case "message_delta":
			var evt anthropicMessageDeltaEvt
			if json.Unmarshal([]byte(data), &evt) == nil {
				if evt.Usage.OutputTokens > 0 {
					usage.OutputTokens = evt.Usage.OutputTokens
				}
				if evt.Delta.StopReason != "" {
					finish = evt.Delta.StopReason
				}
			}
		case "message_stop":
			return usage, finish, nil
		}
		currentEvent = ""
	}
	if err := scanner.Err(); err != nil {
		return usage, finish, err
	}
	return usage, finish, nil
}

func emptyObjIfBlank(s string) string {
	if strings.TrimSpace(s) == "" {
		return "{}"
	}
	return s
}

func currentBlockIndexFromData(data string) int {
	var probe struct {
		Index int `json:"index"`
	}
	_ = json.Unmarshal([]byte(data), &probe)
	return probe.Index
}

func sendPart(ctx context.Context, out chan<- StreamPart, p StreamPart) bool {
	select {
	case out <- p:
		return true
	case <-ctx.Done():
		return false
	}
}

var _ Client = (*AnthropicClient)(nil)
