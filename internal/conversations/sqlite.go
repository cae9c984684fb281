package conversations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/finsight/pkg/models"
)

// SQLiteStore persists conversations in a local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	tool_calls      TEXT,
	tool_results    TEXT,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
`

// NewSQLiteStore opens (creating if needed) the sqlite database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite is single-writer; keep the pool small.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStoreFromDB wraps an existing database handle. The schema must
// already exist; used by tests.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	conv.UpdatedAt = conv.CreatedAt

	meta, err := json.Marshal(conv.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.Title, string(meta), conv.CreatedAt, conv.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, metadata, created_at, updated_at
		 FROM conversations WHERE id = ?`, id)

	var conv models.Conversation
	var meta string
	err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &meta, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if meta != "" && meta != "{}" {
		if err := json.Unmarshal([]byte(meta), &conv.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &conv, nil
}

func (s *SQLiteStore) GetOrCreate(ctx context.Context, id, userID string) (*models.Conversation, bool, error) {
	if id != "" {
		conv, err := s.Get(ctx, id)
		if err == nil {
			return conv, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}
	conv := &models.Conversation{ID: id, UserID: userID}
	if err := s.Create(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (s *SQLiteStore) List(ctx context.Context, userID string, limit int) ([]*models.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, metadata, created_at, updated_at
		 FROM conversations WHERE user_id = ?
		 ORDER BY updated_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		var conv models.Conversation
		var meta string
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &meta, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &conv.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		out = append(out, &conv)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id)
	return err
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.ConversationID = conversationID

	var toolCalls, toolResults sql.NullString
	if len(msg.ToolCalls) > 0 {
		raw, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("encode tool calls: %w", err)
		}
		toolCalls = sql.NullString{String: string(raw), Valid: true}
	}
	if len(msg.ToolResults) > 0 {
		raw, err := json.Marshal(msg.ToolResults)
		if err != nil {
			return fmt.Errorf("encode tool results: %w", err)
		}
		toolResults = sql.NullString{String: string(raw), Valid: true}
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, tool_calls, tool_results, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, conversationID, string(msg.Role), msg.Content, toolCalls, toolResults, msg.CreatedAt,
	); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		time.Now(), conversationID)
	return err
}

func (s *SQLiteStore) GetHistory(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	// Fetch newest first, then reverse so callers get chronological order.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, tool_calls, tool_results, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var newestFirst []*models.Message
	for rows.Next() {
		var msg models.Message
		var role string
		var toolCalls, toolResults sql.NullString
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &toolCalls, &toolResults, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Role = models.Role(role)
		msg.ConversationID = conversationID
		if toolCalls.Valid {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		if toolResults.Valid {
			if err := json.Unmarshal([]byte(toolResults.String), &msg.ToolResults); err != nil {
				return nil, fmt.Errorf("decode tool results: %w", err)
			}
		}
		newestFirst = append(newestFirst, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*models.Message, len(newestFirst))
	for i, msg := range newestFirst {
		out[len(newestFirst)-1-i] = msg
	}
	return out, nil
}
