// Package convo tracks per-session conversation history so follow-up
// questions can reuse context from earlier turns.
package convo

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session has no recorded
// messages.
var ErrSessionNotFound = errors.New("session not found")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn. Assistant turns carry the SQL they
// produced and, when the statement ran, the row count.
type Message struct {
	Role      string            `json:"role"`
	Text      string            `json:"text"`
	SQL       string            `json:"sql,omitempty"`
	RowCount  *int              `json:"row_count,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Session summarizes one conversation.
type Session struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	LastActivity time.Time `json:"last_activity"`
}

// Store persists conversation history. Messages returns the most
// recent turns in chronological order; a zero limit means all of them.
type Store interface {
	Append(ctx context.Context, sessionID string, message Message) error
	Messages(ctx context.Context, sessionID string, limit int) ([]Message, error)
	ListSessions(ctx context.Context) ([]Session, error)
	Clear(ctx context.Context, sessionID string) error
	ClearAll(ctx context.Context) error
}
