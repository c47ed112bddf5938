// Package core holds the value types shared by the loop, session, and agent
// packages: model messages, tools, decisions, and history entries. Nothing
// here depends on any other package in this module.
package core

import (
	"encoding/json"
	"strings"
	"time"
)

// Role identifies the speaker of a ModelMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies the kind of a Part within a ModelMessage's content.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

// ToolCallPart is a model-issued request to invoke a tool.
type ToolCallPart struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultPart is the outcome of one tool invocation, addressed back to
// the call that requested it.
type ToolResultPart struct {
	CallID string `json:"callId"`
	Name   string `json:"name"`
	Output string `json:"output"`
}

// Part is one element of a ModelMessage's ordered content. Exactly one of
// Text, ToolCall, ToolResult is populated, selected by Type.
type Part struct {
	Type       PartType        `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCall   *ToolCallPart   `json:"toolCall,omitempty"`
	ToolResult *ToolResultPart `json:"toolResult,omitempty"`
}

// ModelMessage is a single chat-protocol value. Once constructed it is never
// mutated — a new message is appended, never edited in place.
type ModelMessage struct {
	Role      Role      `json:"role"`
	Content   []Part    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// TextMessage builds a message whose content is a single text part.
func TextMessage(role Role, text string) ModelMessage {
	return ModelMessage{Role: role, Content: []Part{{Type: PartText, Text: text}}, CreatedAt: time.Now()}
}

// UserMessage builds a user-role text message.
func UserMessage(text string) ModelMessage {
	return TextMessage(RoleUser, text)
}

// AssistantMessage builds an assistant message from optional text and zero
// or more tool calls, in that order — matching the wire shape the loop
// synthesizes after each model round-trip (spec §4.3 step 4).
func AssistantMessage(text string, calls []ToolCallPart) ModelMessage {
	var content []Part
	if text != "" {
		content = append(content, Part{Type: PartText, Text: text})
	}
	for i := range calls {
		content = append(content, Part{Type: PartToolCall, ToolCall: &calls[i]})
	}
	return ModelMessage{Role: RoleAssistant, Content: content, CreatedAt: time.Now()}
}

// ToolResultMessage builds the single-part tool-role message the loop emits
// after executing one tool call (spec §4.3 Phase 3).
func ToolResultMessage(callID, name, output string) ModelMessage {
	return ModelMessage{
		Role:      RoleTool,
		Content:   []Part{{Type: PartToolResult, ToolResult: &ToolResultPart{CallID: callID, Name: name, Output: output}}},
		CreatedAt: time.Now(),
	}
}

// Text concatenates every text part of the message. Messages that carry only
// tool calls or tool results return "".
func (m ModelMessage) Text() string {
	var b strings.Builder
	for _, p := range m.Content {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ToolCalls returns every tool-call part of the message, in order.
func (m ModelMessage) ToolCalls() []ToolCallPart {
	var out []ToolCallPart
	for _, p := range m.Content {
		if p.Type == PartToolCall && p.ToolCall != nil {
			out = append(out, *p.ToolCall)
		}
	}
	return out
}

// HasToolCalls reports whether the message carries any tool-call parts.
func (m ModelMessage) HasToolCalls() bool {
	for _, p := range m.Content {
		if p.Type == PartToolCall {
			return true
		}
	}
	return false
}
