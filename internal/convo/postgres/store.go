// Package postgres persists conversation history in a Postgres table
// so sessions survive service restarts.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/askdb/askdb/internal/convo"
)

type Store struct {
	db *sql.DB

	// Appends within one session must keep their arrival order, so a
	// per-session mutex serializes them without blocking other
	// sessions.
	mu        sync.Mutex
	sessionMu map[string]*sync.Mutex
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, sessionMu: map[string]*sync.Mutex{}}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sessions db: %w", err)
	}
	return nil
}

func (s *Store) lockSession(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.sessionMu[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.sessionMu[sessionID] = lock
	}
	return lock
}

func (s *Store) Append(ctx context.Context, sessionID string, message convo.Message) error {
	lock := s.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	var metadata []byte
	if len(message.Metadata) > 0 {
		encoded, err := json.Marshal(message.Metadata)
		if err != nil {
			return fmt.Errorf("encode message metadata: %w", err)
		}
		metadata = encoded
	}

	query := `
INSERT INTO conversation_message (session_id, role, message, sql_text, row_count, metadata)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.db.ExecContext(ctx, query,
		sessionID,
		message.Role,
		message.Text,
		nullString(message.SQL),
		nullInt(message.RowCount),
		metadata,
	); err != nil {
		return fmt.Errorf("append conversation message: %w", err)
	}
	return nil
}

func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]convo.Message, error) {
	query := `
SELECT role, message, sql_text, row_count, metadata, created_at
FROM (
	SELECT role, message, sql_text, row_count, metadata, created_at, id
	FROM conversation_message
	WHERE session_id = $1
	ORDER BY id DESC
	LIMIT $2
) recent
ORDER BY id ASC`
	// LIMIT NULL means no limit in Postgres.
	var queryLimit any
	if limit > 0 {
		queryLimit = limit
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID, queryLimit)
	if err != nil {
		return nil, fmt.Errorf("load conversation messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]convo.Message, 0)
	for rows.Next() {
		var (
			message  convo.Message
			sqlText  sql.NullString
			rowCount sql.NullInt64
			metadata []byte
		)
		if err := rows.Scan(&message.Role, &message.Text, &sqlText, &rowCount, &metadata, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation message: %w", err)
		}
		if sqlText.Valid {
			message.SQL = sqlText.String
		}
		if rowCount.Valid {
			count := int(rowCount.Int64)
			message.RowCount = &count
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &message.Metadata); err != nil {
				return nil, fmt.Errorf("decode message metadata: %w", err)
			}
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation messages: %w", err)
	}
	if len(messages) == 0 {
		return nil, convo.ErrSessionNotFound
	}
	return messages, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]convo.Session, error) {
	query := `
SELECT session_id, min(created_at), count(*), max(created_at)
FROM conversation_message
GROUP BY session_id
ORDER BY max(created_at) DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]convo.Session, 0)
	for rows.Next() {
		var session convo.Session
		if err := rows.Scan(&session.SessionID, &session.CreatedAt, &session.MessageCount, &session.LastActivity); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return sessions, nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM conversation_message WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("clear session rows affected: %w", err)
	}
	if affected == 0 {
		return convo.ErrSessionNotFound
	}
	return nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_message`); err != nil {
		return fmt.Errorf("clear all sessions: %w", err)
	}
	return nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}
