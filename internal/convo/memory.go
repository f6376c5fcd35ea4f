package convo

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps conversation history in process memory. Suitable
// for dev profiles and tests; history is lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]Message
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string][]Message{},
		now:      time.Now,
	}
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, message Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = s.now()
	}
	s.sessions[sessionID] = append(s.sessions[sessionID], message)
	return nil
}

func (s *MemoryStore) Messages(_ context.Context, sessionID string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	return out, nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := make([]Session, 0, len(s.sessions))
	for sessionID, messages := range s.sessions {
		sessions = append(sessions, Summary(sessionID, messages))
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	return sessions, nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = map[string][]Message{}
	return nil
}
