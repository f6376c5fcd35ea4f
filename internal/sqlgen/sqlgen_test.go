package sqlgen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/fault"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/retrieval"
)

type fakeInvoker struct {
	reply      string
	err        error
	lastPrompt string
	calls      int
}

func (f *fakeInvoker) Invoke(_ context.Context, req llm.Request) (string, error) {
	f.calls++
	f.lastPrompt = req.Prompt
	return f.reply, f.err
}

func TestGenerateCleansMarkdownFences(t *testing.T) {
	invoker := &fakeInvoker{reply: "```sql\nSELECT id\nFROM analytics.users\nLIMIT 10;\n```"}
	generator := New(invoker, Options{})

	candidate, err := generator.Generate(context.Background(), "list users", Bundle{Database: "analytics", Schema: "Table: analytics.users"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if candidate.SQL != "SELECT id FROM analytics.users LIMIT 10" {
		t.Fatalf("SQL = %q", candidate.SQL)
	}
	if !strings.Contains(candidate.Raw, "```sql") {
		t.Fatalf("Raw = %q", candidate.Raw)
	}
}

func TestGenerateEmptyReplyFails(t *testing.T) {
	invoker := &fakeInvoker{reply: "```\n-- nothing here\n```"}
	generator := New(invoker, Options{})

	_, err := generator.Generate(context.Background(), "q", Bundle{Database: "analytics"})
	if !fault.IsKind(err, fault.GenerationFailed) {
		t.Fatalf("expected generation_failed, got %v", err)
	}
}

func TestGeneratePropagatesInvokerError(t *testing.T) {
	invoker := &fakeInvoker{err: fault.New(fault.Timeout, "model timed out")}
	generator := New(invoker, Options{})

	_, err := generator.Generate(context.Background(), "q", Bundle{Database: "analytics"})
	if !fault.IsKind(err, fault.Timeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestBuildPromptContainsAllSections(t *testing.T) {
	bundle := Bundle{
		Database: "analytics",
		Schema:   "Table: analytics.users",
		Passages: []retrieval.Passage{
			{Text: "users.active marks live accounts", Confidence: 0.88},
		},
		Conversation: "Previous conversation:\nUser asked: who signed up today",
	}
	prompt := BuildPrompt("how many are active", bundle)

	for _, fragment := range []string{
		"Database: analytics",
		"Table: analytics.users",
		"[confidence 0.88] users.active marks live accounts",
		"Previous conversation:",
		"fully qualified name: analytics.table_name",
		"Question: how many are active",
		"Generate ONLY the SQL query",
	} {
		if !strings.Contains(prompt, fragment) {
			t.Errorf("prompt missing %q", fragment)
		}
	}
}

func TestBuildPromptOmitsEmptySections(t *testing.T) {
	prompt := BuildPrompt("q", Bundle{Database: "analytics", Schema: "Table: analytics.users"})
	if strings.Contains(prompt, "Relevant documentation:") {
		t.Fatal("unexpected documentation section")
	}
	if strings.Contains(prompt, "Previous conversation:") {
		t.Fatal("unexpected conversation section")
	}
}

func TestCleanSQL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "SELECT 1", "SELECT 1"},
		{"fenced", "```sql\nSELECT 1\n```", "SELECT 1"},
		{"comments stripped", "-- answer\nSELECT 1", "SELECT 1"},
		{"multiline joined", "SELECT id\nFROM t\nWHERE x = 1", "SELECT id FROM t WHERE x = 1"},
		{"trailing semicolon", "SELECT 1;", "SELECT 1"},
		{"empty", "   ", ""},
		{"only comments", "-- nothing", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanSQL(tc.in); got != tc.want {
				t.Fatalf("CleanSQL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExplain(t *testing.T) {
	invoker := &fakeInvoker{reply: "It counts the rows in the users table."}
	generator := New(invoker, Options{})

	got := generator.Explain(context.Background(), "SELECT count(*) FROM analytics.users")
	if got != "It counts the rows in the users table." {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(invoker.lastPrompt, "Explain in plain language") {
		t.Fatalf("prompt = %q", invoker.lastPrompt)
	}
}

func TestExplainFallsBackOnError(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("model down")}
	generator := New(invoker, Options{})

	if got := generator.Explain(context.Background(), "SELECT 1"); got != "No explanation available." {
		t.Fatalf("got %q", got)
	}
}
