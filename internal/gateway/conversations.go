package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/haasonsaas/finsight/internal/conversations"
	"github.com/haasonsaas/finsight/pkg/models"
)

const defaultListLimit = 20

// handleConversations lists a user's conversations.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "use GET")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	convs, err := s.store.List(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if convs == nil {
		convs = []*models.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// handleConversationByID serves one conversation with its history, or
// deletes it.
func (s *Server) handleConversationByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/conversations/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		conv, err := s.store.Get(r.Context(), id)
		if errors.Is(err, conversations.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		history, err := s.store.GetHistory(r.Context(), id, historyLimit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if history == nil {
			history = []*models.Message{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"conversation": conv,
			"messages":     history,
		})

	case http.MethodDelete:
		if err := s.store.Delete(r.Context(), id); err != nil {
			if errors.Is(err, conversations.ErrNotFound) {
				writeError(w, http.StatusNotFound, "conversation not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "use GET or DELETE")
	}
}
