package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one turn in a conversation. Messages are immutable once
// persisted; the loop only ever appends new ones.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Role           Role         `json:"role"`
	Content        string       `json:"content"`
	ToolCalls      []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults    []ToolResult `json:"tool_results,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Conversation is a thread of messages owned by a single user.
type Conversation struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ToolCall represents the reasoning model's request to execute a tool.
// Consumed exactly once by the loop.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the output of a tool execution, one-to-one with a ToolCall.
// Content is the serialized ToolOutput fed back to the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Citation points at a knowledge-store source that backed part of an answer.
type Citation struct {
	SourceID   string  `json:"source_id"`
	SourceName string  `json:"source_name"`
	Excerpt    string  `json:"excerpt,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// Usage carries token accounting for one request.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates usage from another inference call.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}
