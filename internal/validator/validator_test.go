package validator

import (
	"strings"
	"testing"
)

func TestValidateAcceptsSelect(t *testing.T) {
	v := New(5000)
	result := v.Validate("SELECT id, name FROM analytics.users LIMIT 10")
	if !result.Valid {
		t.Fatalf("expected valid, errors = %v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("warnings = %v", result.Warnings)
	}
}

func TestValidateAcceptsWithClause(t *testing.T) {
	v := New(5000)
	result := v.Validate("WITH recent AS (SELECT * FROM analytics.orders) SELECT count(*) FROM recent LIMIT 1")
	if !result.Valid {
		t.Fatalf("expected valid, errors = %v", result.Errors)
	}
}

func TestValidateRejectsEmpty(t *testing.T) {
	v := New(5000)
	if result := v.Validate("   "); result.Valid {
		t.Fatal("expected invalid")
	}
}

func TestValidateRejectsNonSelect(t *testing.T) {
	v := New(5000)
	result := v.Validate("SHOW TABLES")
	if result.Valid {
		t.Fatal("expected invalid")
	}
	if !strings.Contains(result.Errors[0], "SELECT") {
		t.Fatalf("errors = %v", result.Errors)
	}
}

func TestValidateRejectsDeniedKeywords(t *testing.T) {
	v := New(5000)
	cases := []string{
		"SELECT 1; DROP TABLE users",
		"SELECT * FROM users WHERE id = 1 OR delete FROM logs",
		"WITH x AS (SELECT 1) INSERT INTO t SELECT * FROM x",
		"SELECT * FROM t WHERE exec('rm')",
	}
	for _, sql := range cases {
		if result := v.Validate(sql); result.Valid {
			t.Errorf("expected %q to be rejected", sql)
		}
	}
}

func TestValidateDenylistRunsBeforeStatementTypeCheck(t *testing.T) {
	v := New(5000)
	result := v.Validate("DROP TABLE customers")
	if result.Valid {
		t.Fatal("expected invalid")
	}
	if !strings.Contains(result.Errors[0], "prohibited keyword: DROP") {
		t.Fatalf("errors = %v", result.Errors)
	}
}

func TestValidateKeywordMatchesWholeWordsOnly(t *testing.T) {
	v := New(5000)
	// Column names containing denied keywords as substrings are fine.
	result := v.Validate("SELECT created_at, updated_at, dropped_calls FROM analytics.metrics LIMIT 5")
	if !result.Valid {
		t.Fatalf("expected valid, errors = %v", result.Errors)
	}
}

func TestValidateRejectsUnbalancedParens(t *testing.T) {
	v := New(5000)
	if result := v.Validate("SELECT count(* FROM t"); result.Valid {
		t.Fatal("expected invalid")
	}
	// Parens inside string literals do not count.
	result := v.Validate("SELECT ':)' AS emoji FROM analytics.t LIMIT 1")
	if !result.Valid {
		t.Fatalf("expected valid, errors = %v", result.Errors)
	}
}

func TestValidateRejectsOverlongQuery(t *testing.T) {
	v := New(30)
	if result := v.Validate("SELECT aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa FROM t"); result.Valid {
		t.Fatal("expected invalid")
	}
}

func TestValidateWarnings(t *testing.T) {
	v := New(5000)
	result := v.Validate("SELECT * FROM analytics.users -- all of them")
	if !result.Valid {
		t.Fatalf("expected valid, errors = %v", result.Errors)
	}
	joined := strings.Join(result.Warnings, "\n")
	for _, fragment := range []string{"comments", "no row limit", "SELECT *"} {
		if !strings.Contains(joined, fragment) {
			t.Errorf("warnings %v missing %q", result.Warnings, fragment)
		}
	}
}

func TestValidateWarnsOnAlwaysTrueCondition(t *testing.T) {
	v := New(5000)
	result := v.Validate("SELECT id FROM analytics.users WHERE name = 'x' OR '1'='1' LIMIT 5")
	if !result.Valid {
		t.Fatalf("expected valid, errors = %v", result.Errors)
	}
	if !strings.Contains(strings.Join(result.Warnings, "\n"), "always-true") {
		t.Fatalf("warnings = %v", result.Warnings)
	}
}

func TestInfoComplexity(t *testing.T) {
	v := New(5000)
	cases := []struct {
		sql        string
		complexity string
	}{
		{"SELECT id FROM analytics.users", "Simple"},
		{"SELECT count(*) FROM analytics.users GROUP BY region", "Moderate"},
		{"SELECT u.id FROM users u JOIN orders o ON u.id = o.user_id GROUP BY u.id", "Complex"},
		{"SELECT u.id FROM users u JOIN orders o ON u.id = o.user_id JOIN items i ON o.id = i.order_id GROUP BY u.id", "Complex"},
		{"SELECT u.id, count(*) FROM users u JOIN orders o ON u.id = o.user_id WHERE o.total > (SELECT avg(total) FROM orders) GROUP BY u.id", "Very Complex"},
	}
	for _, tc := range cases {
		info := v.Info(tc.sql)
		if info.Complexity != tc.complexity {
			t.Errorf("Info(%q).Complexity = %q, want %q", tc.sql, info.Complexity, tc.complexity)
		}
	}
}

func TestInfoExtractsTables(t *testing.T) {
	v := New(5000)
	info := v.Info("SELECT * FROM analytics.users u JOIN analytics.orders o ON u.id = o.user_id JOIN analytics.users dup ON 1=1")
	if len(info.Tables) != 2 {
		t.Fatalf("tables = %v", info.Tables)
	}
	if info.Tables[0] != "analytics.orders" || info.Tables[1] != "analytics.users" {
		t.Fatalf("tables = %v", info.Tables)
	}
	if !info.HasJoins {
		t.Fatal("expected HasJoins")
	}
}

func TestSuggestLimit(t *testing.T) {
	got := SuggestLimit("SELECT id FROM t;", 100)
	if got != "SELECT id FROM t LIMIT 100" {
		t.Fatalf("got %q", got)
	}
	unchanged := SuggestLimit("SELECT id FROM t LIMIT 5", 100)
	if unchanged != "SELECT id FROM t LIMIT 5" {
		t.Fatalf("got %q", unchanged)
	}
}
