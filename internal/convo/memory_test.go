package convo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreAppendAndMessages(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := store.Append(ctx, "s-1", Message{Role: RoleUser, Text: "q"}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	messages, err := store.Messages(ctx, "s-1", 0)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("len = %d", len(messages))
	}

	limited, err := store.Messages(ctx, "s-1", 2)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("len = %d", len(limited))
	}
}

func TestMemoryStoreMissingSession(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Messages(context.Background(), "missing", 0); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := store.Clear(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestMemoryStoreListSessionsNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	_ = store.Append(ctx, "older", Message{Role: RoleUser, Text: "a"})
	_ = store.Append(ctx, "newer", Message{Role: RoleUser, Text: "b"})

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len = %d", len(sessions))
	}
	if sessions[0].SessionID != "newer" {
		t.Fatalf("sessions = %+v", sessions)
	}
}

func TestMemoryStoreClearAll(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Append(ctx, "s-1", Message{Role: RoleUser, Text: "a"})
	_ = store.Append(ctx, "s-2", Message{Role: RoleUser, Text: "b"})

	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("sessions = %+v", sessions)
	}
}
