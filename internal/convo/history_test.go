package convo

import (
	"strings"
	"testing"
	"time"
)

func intPtr(n int) *int { return &n }

func sampleHistory() []Message {
	return []Message{
		{Role: RoleUser, Text: "show me active users", CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{Role: RoleAssistant, Text: "done", SQL: "SELECT id FROM analytics.users WHERE active = true LIMIT 10", RowCount: intPtr(10), CreatedAt: time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)},
	}
}

func TestContextString(t *testing.T) {
	got := ContextString(sampleHistory())
	if !strings.HasPrefix(got, "Previous conversation:") {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, "User asked: show me active users") {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, "Generated SQL: SELECT id FROM analytics.users") {
		t.Fatalf("got %q", got)
	}
}

func TestContextStringEmptyHistory(t *testing.T) {
	if got := ContextString(nil); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestIsFollowUp(t *testing.T) {
	history := sampleHistory()
	followUps := []string{
		"what about inactive ones?",
		"show me more",
		"break those down by region",
		"and the totals too",
		"same for last month",
	}
	for _, question := range followUps {
		if !IsFollowUp(question, history) {
			t.Errorf("expected %q to be a follow-up", question)
		}
	}
	standalone := []string{
		"list all products",
		"how many orders were placed in March",
	}
	for _, question := range standalone {
		if IsFollowUp(question, history) {
			t.Errorf("expected %q to stand alone", question)
		}
	}
}

func TestIsFollowUpRequiresHistory(t *testing.T) {
	if IsFollowUp("show me more", nil) {
		t.Fatal("empty session can never have a follow-up")
	}
}

func TestIsFollowUpMatchesWholeWords(t *testing.T) {
	// "brand" contains "and"; must not trigger.
	if IsFollowUp("list brand names", sampleHistory()) {
		t.Fatal("substring must not match")
	}
}

func TestRecentTables(t *testing.T) {
	history := append(sampleHistory(), Message{
		Role: RoleAssistant,
		SQL:  "SELECT u.id FROM analytics.users u JOIN analytics.orders o ON u.id = o.user_id",
	})
	tables := RecentTables(history)
	if len(tables) != 2 {
		t.Fatalf("tables = %v", tables)
	}
	// Most recent statement scanned first.
	if tables[0] != "analytics.users" || tables[1] != "analytics.orders" {
		t.Fatalf("tables = %v", tables)
	}
}

func TestEnhanceAppendsTableContext(t *testing.T) {
	got := Enhance("what about inactive ones?", sampleHistory())
	want := "what about inactive ones? (Context: Previous query used tables: analytics.users)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEnhanceLeavesStandaloneQuestionsAlone(t *testing.T) {
	question := "list all products"
	if got := Enhance(question, sampleHistory()); got != question {
		t.Fatalf("got %q", got)
	}
}

func TestSummary(t *testing.T) {
	session := Summary("s-1", sampleHistory())
	if session.SessionID != "s-1" || session.MessageCount != 2 {
		t.Fatalf("session = %+v", session)
	}
	if !session.LastActivity.After(session.CreatedAt) {
		t.Fatalf("session = %+v", session)
	}
}
