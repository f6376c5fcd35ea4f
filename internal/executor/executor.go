// Package executor runs validated statements against the analytics
// engine and tracks asynchronous executions.
package executor

import (
	"context"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Result is one executed statement's output. Rows are keyed by column
// name so they serialize directly into API responses and cache
// entries.
type Result struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	Duration time.Duration    `json:"duration"`
}

// Execution tracks one asynchronous run.
type Execution struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	SQL         string     `json:"sql"`
	Database    string     `json:"database"`
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Engine executes a single statement against one logical database.
type Engine interface {
	Execute(ctx context.Context, database, sql string) (Result, error)
}

// Hint maps common execution failures to an operator-facing
// remediation note. Unrecognized errors get no hint.
func Hint(err error) string {
	if err == nil {
		return ""
	}
	lowered := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowered, "credential") || strings.Contains(lowered, "authentication"):
		return "Check the service's database credentials."
	case strings.Contains(lowered, "does not exist") || strings.Contains(lowered, "not found") || strings.Contains(lowered, "no such"):
		return "Check the configured database name and that the referenced tables exist."
	case strings.Contains(lowered, "permission") || strings.Contains(lowered, "access denied") || strings.Contains(lowered, "denied"):
		return "The service account lacks permission for this query."
	default:
		return ""
	}
}
