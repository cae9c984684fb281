package agent

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/finsight/pkg/models"
)

// Emitter is the single-direction, ordered, append-only channel from the
// loop to the caller.
//
// Emit only ever appends to an internal buffer, so the loop never blocks
// on a slow consumer. A pump goroutine drains the buffer into the channel
// returned by Events. Exactly one terminal event is delivered; anything
// emitted after it is dropped, and the channel closes once the terminal
// event has been consumed.
type Emitter struct {
	mu       sync.Mutex
	buf      []models.StreamEvent
	sequence uint64
	terminal bool

	notify   chan struct{}
	abandon  chan struct{}
	abandonO sync.Once
	out      chan models.StreamEvent
	once     sync.Once
}

// NewEmitter creates an emitter and starts its pump.
func NewEmitter() *Emitter {
	e := &Emitter{
		notify:  make(chan struct{}, 1),
		abandon: make(chan struct{}),
		out:     make(chan models.StreamEvent, 16),
	}
	go e.pump()
	return e
}

// Events returns the ordered event stream. Closed after the terminal event.
func (e *Emitter) Events() <-chan models.StreamEvent {
	return e.out
}

// Abandon releases the pump when the consumer stops draining (caller
// disconnect). Safe to call multiple times and after normal completion.
func (e *Emitter) Abandon() {
	e.abandonO.Do(func() { close(e.abandon) })
}

func (e *Emitter) pump() {
	for {
		select {
		case <-e.notify:
		case <-e.abandon:
			return
		}
		for {
			e.mu.Lock()
			if len(e.buf) == 0 {
				e.mu.Unlock()
				break
			}
			event := e.buf[0]
			e.buf = e.buf[1:]
			e.mu.Unlock()

			select {
			case e.out <- event:
			case <-e.abandon:
				return
			}
			if event.IsTerminal() {
				e.closeOut()
				return
			}
		}
	}
}

func (e *Emitter) closeOut() {
	e.once.Do(func() { close(e.out) })
}

// emit appends one event, stamping sequence and time. Returns false when
// the stream is already terminated.
func (e *Emitter) emit(event models.StreamEvent) bool {
	e.mu.Lock()
	if e.terminal {
		e.mu.Unlock()
		return false
	}
	e.sequence++
	event.Sequence = e.sequence
	event.Time = time.Now()
	if event.IsTerminal() {
		e.terminal = true
	}
	e.buf = append(e.buf, event)
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
	return true
}

// Thread acknowledges the request with the conversation id. Sent first.
func (e *Emitter) Thread(conversationID string, created bool) {
	e.emit(models.StreamEvent{
		Type:   models.StreamThread,
		Thread: &models.ThreadPayload{ConversationID: conversationID, Created: created},
	})
}

// Text emits one incremental fragment of the final answer.
func (e *Emitter) Text(delta string) {
	if delta == "" {
		return
	}
	e.emit(models.StreamEvent{Type: models.StreamText, Text: delta})
}

// ToolStart announces a tool execution.
func (e *Emitter) ToolStart(call models.ToolCall) {
	e.emit(models.StreamEvent{
		Type: models.StreamToolStart,
		ToolStart: &models.ToolStartPayload{
			ToolCallID: call.ID,
			Name:       call.Name,
			Input:      call.Input,
		},
	})
}

// ToolResult reports a completed tool execution with its tagged output.
func (e *Emitter) ToolResult(call models.ToolCall, output *models.ToolOutput) {
	e.emit(models.StreamEvent{
		Type: models.StreamToolResult,
		ToolResult: &models.ToolResultPayload{
			ToolCallID: call.ID,
			Name:       call.Name,
			Output:     output,
			IsError:    output != nil && output.Type == models.OutputError,
		},
	})
}

// Citations surfaces retrieval sources as they accumulate.
func (e *Emitter) Citations(citations []models.Citation) {
	if len(citations) == 0 {
		return
	}
	e.emit(models.StreamEvent{Type: models.StreamCitations, Citations: citations})
}

// Canvas emits a renderable artifact the moment a tool produces it.
func (e *Emitter) Canvas(kind models.OutputType, title string, spec json.RawMessage) *models.CanvasPayload {
	payload := &models.CanvasPayload{
		ArtifactID: uuid.NewString(),
		Kind:       kind,
		Title:      title,
		Spec:       spec,
	}
	e.emit(models.StreamEvent{Type: models.StreamCanvas, Canvas: payload})
	return payload
}

// Done terminates the stream successfully with usage accounting.
func (e *Emitter) Done(usage models.Usage, iterations int) {
	e.emit(models.StreamEvent{
		Type: models.StreamDone,
		Done: &models.DonePayload{Usage: usage, Iterations: iterations},
	})
}

// Error terminates the stream with a failure.
func (e *Emitter) Error(message string, retriable bool) {
	e.emit(models.StreamEvent{
		Type:  models.StreamError,
		Error: &models.ErrorPayload{Message: message, Retriable: retriable},
	})
}
