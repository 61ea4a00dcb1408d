package llm

import (
	"context"
	"encoding/json"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
	ChatRoleTool      = "tool"
)

// ChatMessage is an internal message representation that can include system
// prompts, assistant tool requests, and tool results.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// ToolCalls holds the tool invocations an assistant turn requested.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	// ToolResults carries tool outputs back to the model (role "tool").
	ToolResults []ToolResult `json:"toolResults,omitempty"`
}

// ToolSpec describes one tool the model may call during a turn.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the JSON-encoded output of one tool invocation.
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"isError,omitempty"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// StopReasonToolUse is the provider-agnostic stop reason signalling the model
// paused to call tools.
const StopReasonToolUse = "tool_use"

type Request struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	Tools       []ToolSpec
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type Response struct {
	Text       string
	ToolCalls  []ToolCall
	Usage      TokenUsage
	StopReason string
}

// WantsTools reports whether the model stopped to request tool invocations.
func (r Response) WantsTools() bool {
	return len(r.ToolCalls) > 0
}

// Client is the opaque text-completion capability. Implementations may fail
// or time out; callers bound each call with a context deadline.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
