package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/finsight/pkg/models"
)

// LLMProvider is the interface to a reasoning-model backend.
//
// Implementations must be safe for concurrent use; multiple goroutines may
// call Complete simultaneously for different requests.
type LLMProvider interface {
	// Complete sends a request and returns a streaming response. The
	// channel is closed when the response is complete or has failed.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name.
	Name() string
}

// CompletionRequest contains all parameters for one inference call.
type CompletionRequest struct {
	// Model specifies which model to use. Empty means provider default.
	Model string `json:"model"`

	// System is the system instruction, handled separately from messages.
	System string `json:"system,omitempty"`

	// Messages is the conversation in chronological order.
	Messages []CompletionMessage `json:"messages"`

	// Tools declares the capabilities the model may request.
	Tools []ToolDefinition `json:"tools,omitempty"`

	// MaxTokens limits the generated response length.
	MaxTokens int `json:"max_tokens,omitempty"`

	// CacheEpoch is the request-scoped cache window identifier computed by
	// the context window manager. Providers may use it to place prompt
	// cache-control boundaries; it must never come from process-global state.
	CacheEpoch int64 `json:"cache_epoch,omitempty"`
}

// CompletionMessage is a single turn sent to the model. Role is one of
// "user", "assistant", or "tool".
type CompletionMessage struct {
	Role        string              `json:"role"`
	Content     string              `json:"content,omitempty"`
	ToolCalls   []models.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
}

// CompletionChunk is one unit of a streaming model response.
type CompletionChunk struct {
	// Text is a partial response fragment, streamed incrementally.
	Text string `json:"text,omitempty"`

	// ToolCall is a complete tool execution request.
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`

	// Done is true on the final chunk of a successful stream.
	Done bool `json:"done,omitempty"`

	// Error terminates the stream.
	Error error `json:"-"`

	// InputTokens and OutputTokens are populated on the final chunk.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// ToolDefinition is the declared shape of a tool passed to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"input_schema"`
}

// Tool is an executable capability exposed through the registry.
//
// Execute receives input already validated against Schema and returns a
// tagged output. Returning an error (or panicking) is converted by the
// executor into an error-variant output so one failing tool never aborts
// the loop.
type Tool interface {
	// Name returns the tool name used for model function calling.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// Schema returns the JSON Schema for the tool's input.
	Schema() json.RawMessage

	// Execute runs the tool with schema-valid input.
	Execute(ctx context.Context, input json.RawMessage) (*models.ToolOutput, error)
}
