package conversations

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/finsight/pkg/models"
)

// maxMessagesPerConversation limits messages stored per conversation to
// prevent unbounded memory growth. Old messages are trimmed past the limit.
const maxMessagesPerConversation = 1000

// MemoryStore provides an in-memory Store implementation for testing and
// local runs.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
}

// NewMemoryStore creates a new in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: map[string]*models.Conversation{},
		messages:      map[string][]*models.Message{},
	}
}

func (m *MemoryStore) Create(ctx context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneConversation(conv)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.UpdatedAt = clone.CreatedAt
	// Reflect generated fields back to the caller.
	conv.ID = clone.ID
	conv.CreatedAt = clone.CreatedAt
	conv.UpdatedAt = clone.UpdatedAt
	m.conversations[clone.ID] = clone
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, id, userID string) (*models.Conversation, bool, error) {
	if id != "" {
		if conv, err := m.Get(ctx, id); err == nil {
			return conv, false, nil
		}
	}
	conv := &models.Conversation{ID: id, UserID: userID}
	if err := m.Create(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (m *MemoryStore) List(ctx context.Context, userID string, limit int) ([]*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		if userID != "" && conv.UserID != userID {
			continue
		}
		out = append(out, cloneConversation(conv))
	}
	sortByUpdatedDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, conversationID string, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	clone := cloneMessage(msg)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.ConversationID = conversationID
	msg.ID = clone.ID
	m.messages[conversationID] = append(m.messages[conversationID], clone)
	conv.UpdatedAt = time.Now()

	if len(m.messages[conversationID]) > maxMessagesPerConversation {
		excess := len(m.messages[conversationID]) - maxMessagesPerConversation
		m.messages[conversationID] = m.messages[conversationID][excess:]
	}
	return nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := m.messages[conversationID]
	if len(messages) == 0 {
		return []*models.Message{}, nil
	}
	start := 0
	if limit > 0 && len(messages) > limit {
		start = len(messages) - limit
	}
	out := make([]*models.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		out = append(out, cloneMessage(msg))
	}
	return out, nil
}

func sortByUpdatedDesc(convs []*models.Conversation) {
	for i := 1; i < len(convs); i++ {
		for j := i; j > 0 && convs[j].UpdatedAt.After(convs[j-1].UpdatedAt); j-- {
			convs[j], convs[j-1] = convs[j-1], convs[j]
		}
	}
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Metadata != nil {
		clone.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func cloneMessage(m *models.Message) *models.Message {
	if m == nil {
		return nil
	}
	clone := *m
	if m.ToolCalls != nil {
		clone.ToolCalls = append([]models.ToolCall(nil), m.ToolCalls...)
	}
	if m.ToolResults != nil {
		clone.ToolResults = append([]models.ToolResult(nil), m.ToolResults...)
	}
	if m.Metadata != nil {
		clone.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
