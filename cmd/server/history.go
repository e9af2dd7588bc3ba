package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/khanhduypunnd/muse-mcp/pkg/models"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

// Message is one stored turn of a conversation.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// History keeps the last maxSize messages per conversation and the buyer
// profile used to prefill orders. Writes are serialized.
type History struct {
	db      *gorm.DB
	mu      sync.Mutex
	maxSize int
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS buyers (
	session_id TEXT PRIMARY KEY,
	first_name TEXT,
	last_name TEXT,
	email TEXT,
	phone TEXT,
	address TEXT,
	city TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL CHECK(role IN ('user', 'assistant')),
	content TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
`

func NewHistory(dbPath string, maxSize int) (*History, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Exec(schemaSQL).Error; err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &History{db: db, maxSize: maxSize}, nil
}

func (h *History) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (h *History) AddMessage(ctx context.Context, conversationID, role, content string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	db := h.db.WithContext(ctx)

	insert := `INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	if err := db.Exec(insert, conversationID, role, content, time.Now().UTC()).Error; err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	trim := `
		DELETE FROM messages WHERE conversation_id = ? AND id NOT IN (
			SELECT id FROM messages
			WHERE conversation_id = ?
			ORDER BY id DESC
			LIMIT ?
		)`
	if err := db.Exec(trim, conversationID, conversationID, h.maxSize).Error; err != nil {
		return fmt.Errorf("failed to trim messages: %w", err)
	}

	return nil
}

// Messages returns the stored conversation, oldest first.
func (h *History) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	query := `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY id ASC`

	rows, err := h.db.WithContext(ctx).Raw(query, conversationID).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Transcript renders the conversation for the agent prompt. Empty when
// there is no history.
func (h *History) Transcript(ctx context.Context, conversationID string) (string, error) {
	msgs, err := h.Messages(ctx, conversationID)
	if err != nil || len(msgs) == 0 {
		return "", err
	}

	var b strings.Builder
	b.WriteString("\n\n=== Lịch sử hội thoại gần đây ===\n")
	for _, msg := range msgs {
		who := "Khách"
		if msg.Role == roleAssistant {
			who = "Trợ lý"
		}
		fmt.Fprintf(&b, "%s: %s\n", who, msg.Content)
	}
	b.WriteString("=== Hết lịch sử ===\n")
	return b.String(), nil
}

// Buyer returns the saved profile of a session; a zero Buyer when nothing
// has been saved yet.
func (h *History) Buyer(ctx context.Context, sessionID string) (models.Buyer, error) {
	query := `
		SELECT COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(email, ''),
		       COALESCE(phone, ''), COALESCE(address, ''), COALESCE(city, '')
		FROM buyers WHERE session_id = ?`

	var b models.Buyer
	err := h.db.WithContext(ctx).Raw(query, sessionID).Row().
		Scan(&b.FirstName, &b.LastName, &b.Email, &b.Phone, &b.Address, &b.City)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Buyer{}, nil
	}
	if err != nil {
		return models.Buyer{}, fmt.Errorf("failed to load buyer: %w", err)
	}
	return b, nil
}

// buyerFields maps agent-facing names onto buyers columns.
var buyerFields = map[string]string{
	"first_name": "first_name",
	"last_name":  "last_name",
	"email":      "email",
	"phone":      "phone",
	"address":    "address",
	"city":       "city",
}

func BuyerFieldNames() []string {
	return []string{"first_name", "last_name", "email", "phone", "address", "city"}
}

func (h *History) UpdateBuyerField(ctx context.Context, sessionID, field, value string) error {
	column, ok := buyerFields[field]
	if !ok {
		return fmt.Errorf("invalid field name: %s", field)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// column comes from buyerFields, never from input.
	upsert := fmt.Sprintf(`
		INSERT INTO buyers (session_id, %[1]s, created_at, updated_at)
		VALUES (?, ?, datetime('now'), datetime('now'))
		ON CONFLICT(session_id) DO UPDATE SET %[1]s = excluded.%[1]s, updated_at = datetime('now')`, column)

	if err := h.db.WithContext(ctx).Exec(upsert, sessionID, strings.TrimSpace(value)).Error; err != nil {
		return fmt.Errorf("failed to update buyer field %s: %w", field, err)
	}
	return nil
}
