package models

import (
	"encoding/json"
	"time"
)

// StreamEventType identifies one unit of the ordered progress feed
// delivered to the caller while a request is in flight.
type StreamEventType string

const (
	// StreamThread acknowledges the request and carries the conversation id.
	// Always the first event.
	StreamThread StreamEventType = "thread"

	// StreamText carries an incremental fragment of the final answer. The
	// concatenation of all text events reconstructs the assistant message.
	StreamText StreamEventType = "text"

	// StreamToolStart announces a tool execution with its input.
	StreamToolStart StreamEventType = "tool_start"

	// StreamToolResult carries a tool's tagged output.
	StreamToolResult StreamEventType = "tool_result"

	// StreamCitations carries sources accumulated from retrieval tools.
	StreamCitations StreamEventType = "citations"

	// StreamCanvas carries a chart/table/image artifact for progressive
	// rendering. Emitted the moment the tool produces it.
	StreamCanvas StreamEventType = "canvas"

	// StreamDone is the terminal success event with usage accounting.
	StreamDone StreamEventType = "done"

	// StreamError is the terminal failure event.
	StreamError StreamEventType = "error"
)

// StreamEvent is the tagged union sent over the outbound stream. Exactly
// one payload field is set, matching Type.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Sequence uint64          `json:"seq"`
	Time     time.Time       `json:"ts"`

	Thread     *ThreadPayload     `json:"thread,omitempty"`
	Text       string             `json:"text,omitempty"`
	ToolStart  *ToolStartPayload  `json:"tool_start,omitempty"`
	ToolResult *ToolResultPayload `json:"tool_result,omitempty"`
	Citations  []Citation         `json:"citations,omitempty"`
	Canvas     *CanvasPayload     `json:"canvas,omitempty"`
	Done       *DonePayload       `json:"done,omitempty"`
	Error      *ErrorPayload      `json:"error,omitempty"`
}

// IsTerminal reports whether no further events may follow this one.
func (e *StreamEvent) IsTerminal() bool {
	return e.Type == StreamDone || e.Type == StreamError
}

// ThreadPayload identifies the conversation the stream belongs to.
type ThreadPayload struct {
	ConversationID string `json:"conversation_id"`
	Created        bool   `json:"created,omitempty"`
}

// ToolStartPayload announces a tool invocation.
type ToolStartPayload struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Input      json.RawMessage `json:"input,omitempty"`
}

// ToolResultPayload carries a completed tool execution.
type ToolResultPayload struct {
	ToolCallID string      `json:"tool_call_id"`
	Name       string      `json:"name"`
	Output     *ToolOutput `json:"output"`
	IsError    bool        `json:"is_error,omitempty"`
}

// CanvasPayload is a renderable artifact produced mid-run.
type CanvasPayload struct {
	ArtifactID string          `json:"artifact_id"`
	Kind       OutputType      `json:"kind"`
	Title      string          `json:"title,omitempty"`
	Spec       json.RawMessage `json:"spec"`
}

// DonePayload closes a successful stream.
type DonePayload struct {
	Usage      Usage `json:"usage"`
	Iterations int   `json:"iterations"`
}

// ErrorPayload closes a failed stream.
type ErrorPayload struct {
	Message   string `json:"message"`
	Retriable bool   `json:"retriable,omitempty"`
}
