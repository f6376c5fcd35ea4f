// Package postgres resolves table metadata from a Postgres
// information_schema. The logical database name maps to a Postgres
// schema.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/askdb/askdb/internal/schema"
)

type Catalog struct {
	db *sql.DB
}

func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

func (c *Catalog) ListTables(ctx context.Context, database string) ([]string, error) {
	query := `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name ASC`

	rows, err := c.db.QueryContext(ctx, query, database)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]string, 0)
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}
	return tables, nil
}

func (c *Catalog) TableSchema(ctx context.Context, database, table string) (schema.TableSchema, error) {
	query := `
SELECT c.column_name, c.data_type, coalesce(d.description, '')
FROM information_schema.columns c
LEFT JOIN pg_catalog.pg_statio_all_tables st
  ON st.schemaname = c.table_schema AND st.relname = c.table_name
LEFT JOIN pg_catalog.pg_description d
  ON d.objoid = st.relid AND d.objsubid = c.ordinal_position
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position ASC`

	rows, err := c.db.QueryContext(ctx, query, database, table)
	if err != nil {
		return schema.TableSchema{}, fmt.Errorf("load table schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := schema.TableSchema{Table: table}
	for rows.Next() {
		var column schema.Column
		if err := rows.Scan(&column.Name, &column.Type, &column.Comment); err != nil {
			return schema.TableSchema{}, fmt.Errorf("scan column row: %w", err)
		}
		result.Columns = append(result.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return schema.TableSchema{}, fmt.Errorf("iterate column rows: %w", err)
	}
	if len(result.Columns) == 0 {
		return schema.TableSchema{}, schema.ErrTableNotFound
	}
	return result, nil
}
