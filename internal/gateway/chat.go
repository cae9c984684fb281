package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/finsight/internal/agent"
	"github.com/haasonsaas/finsight/internal/knowledge"
	"github.com/haasonsaas/finsight/pkg/models"
)

const defaultSystemPrompt = `You are FinSight, a financial analysis assistant for founders and finance teams.
Ground every number in the user's documents via the search_knowledge tool and cite your sources.
Use the calculate tool for arithmetic instead of computing in your head.
Prefer charts and tables over walls of numbers. Be direct about uncertainty.`

// historyLimit caps how many persisted turns are considered for context
// packing. The window trims further by character budget.
const historyLimit = 50

// persistTimeout bounds post-run persistence, which runs detached from the
// request context so a client disconnect cannot lose the transcript.
const persistTimeout = 10 * time.Second

type chatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
}

// handleChat runs one agent request, streaming progress as SSE. Event
// names mirror the stream event types; each data payload is the JSON
// encoded event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.UserID == "" {
		req.UserID = "anonymous"
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// The request context carries client disconnect; the timeout bounds
	// total wall-clock spend.
	ctx, cancel := context.WithTimeout(r.Context(), s.config.Agent.RequestTimeout)
	defer cancel()

	conv, created, err := s.store.GetOrCreate(ctx, req.ConversationID, req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("load conversation: %v", err))
		return
	}
	history, err := s.store.GetHistory(ctx, conv.ID, historyLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("load history: %v", err))
		return
	}

	kctx := s.userKnowledge(ctx, req.UserID)

	incoming := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        req.Message,
	}
	bundle := s.window.Build(s.system, history, incoming, kctx, time.Now())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emitter := agent.NewEmitter()
	emitter.Thread(conv.ID, created)

	resultCh := make(chan *agent.RunResult, 1)
	go func() {
		resultCh <- s.loop.Run(ctx, bundle, emitter)
	}()

	disconnected := false
stream:
	for {
		select {
		case event, open := <-emitter.Events():
			if !open {
				break stream
			}
			writeSSE(w, flusher, &event)
		case <-r.Context().Done():
			// Client went away: stop the loop, release the emitter pump,
			// then fall through to persist whatever completed.
			cancel()
			emitter.Abandon()
			disconnected = true
			break stream
		}
	}

	result := <-resultCh
	s.persistRun(conv.ID, incoming, result)

	if disconnected {
		s.logger.Info("client disconnected mid-stream",
			"conversation_id", conv.ID,
			"phase", result.Phase,
		)
	}
}

// userKnowledge fetches the knowledge context, degrading to none on error.
func (s *Server) userKnowledge(ctx context.Context, userID string) *knowledge.Context {
	if s.knowledge == nil {
		return nil
	}
	kctx, err := s.knowledge.UserContext(ctx, userID)
	if err != nil {
		s.logger.Warn("knowledge context unavailable", "user_id", userID, "error", err)
		return nil
	}
	return kctx
}

// persistRun appends the user turn and everything the run produced. Runs
// on a detached context and is best-effort: a failed run's partial turns
// are still worth keeping.
func (s *Server) persistRun(conversationID string, incoming *models.Message, result *agent.RunResult) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.store.AppendMessage(ctx, conversationID, incoming); err != nil {
		s.logger.Error("persist user message failed", "conversation_id", conversationID, "error", err)
		return
	}
	for _, msg := range result.Messages {
		msg.ConversationID = conversationID
		if err := s.store.AppendMessage(ctx, conversationID, msg); err != nil {
			s.logger.Error("persist run message failed", "conversation_id", conversationID, "error", err)
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event *models.StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
