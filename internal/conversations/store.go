// Package conversations persists conversation threads and their messages.
//
// The orchestration engine only appends new messages after a request
// completes; two concurrent requests on the same conversation may
// race-append turns. That is a documented limitation, not something the
// store guards against.
package conversations

import (
	"context"
	"errors"

	"github.com/haasonsaas/finsight/pkg/models"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// Store is the interface for conversation persistence.
type Store interface {
	// Create persists a new conversation, generating missing fields.
	Create(ctx context.Context, conv *models.Conversation) error

	// Get returns a conversation by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Conversation, error)

	// GetOrCreate returns the conversation with the given id, creating a
	// fresh one for the user when id is empty or unknown.
	GetOrCreate(ctx context.Context, id, userID string) (*models.Conversation, bool, error)

	// List returns conversations for a user, most recently updated first.
	List(ctx context.Context, userID string, limit int) ([]*models.Conversation, error)

	// Delete removes a conversation and its messages.
	Delete(ctx context.Context, id string) error

	// AppendMessage adds a message to a conversation's history.
	AppendMessage(ctx context.Context, conversationID string, msg *models.Message) error

	// GetHistory returns up to limit most recent messages in
	// chronological order.
	GetHistory(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)
}
