// Package duckdb executes statements against an embedded DuckDB
// database. Generated SQL references tables as database.table, which
// maps onto DuckDB schemas.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/askdb/askdb/internal/executor"
)

type Engine struct {
	db *sql.DB
}

// NewEngine opens the DuckDB database at path. An empty path opens an
// in-memory database, which is what the dev profile uses.
func NewEngine(path string) (*Engine, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Engine{db: db}, nil
}

// NewEngineWithDB wraps an existing handle. Used by tests.
func NewEngineWithDB(db *sql.DB) *Engine {
	return &Engine{db: db}
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) HealthCheck(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping duckdb: %w", err)
	}
	return nil
}

func (e *Engine) Execute(ctx context.Context, database, sqlText string) (executor.Result, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return executor.Result{}, fmt.Errorf("sql is required")
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return executor.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return executor.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return executor.Result{}, fmt.Errorf("scan row: %w", err)
		}
		record := make(map[string]any, len(columns))
		for i, column := range columns {
			record[column] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, record)
	}
	if err := rows.Err(); err != nil {
		return executor.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return executor.Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

// SampleRows fetches a few rows from one table for schema context.
func (e *Engine) SampleRows(ctx context.Context, database, table string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 3
	}
	sqlText := fmt.Sprintf("SELECT * FROM %s.%s LIMIT %d", quoteIdent(database), quoteIdent(table), limit)
	result, err := e.Execute(ctx, database, sqlText)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
