// Package schema loads table metadata and renders it as prompt
// context. Generated SQL must reference tables by their fully
// qualified name, so the rendered context always includes the
// database qualifier.
package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrTableNotFound = errors.New("table not found")

type Column struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Comment      string `json:"comment,omitempty"`
	PartitionKey bool   `json:"partition_key,omitempty"`
}

type TableSchema struct {
	Table    string   `json:"table"`
	Columns  []Column `json:"columns"`
	Location string   `json:"location,omitempty"`
}

// Catalog resolves table metadata for one logical database.
type Catalog interface {
	ListTables(ctx context.Context, database string) ([]string, error)
	TableSchema(ctx context.Context, database, table string) (TableSchema, error)
}

// Sampler fetches a few example rows for a table. Optional; a nil
// sampler just omits sample data from the context.
type Sampler interface {
	SampleRows(ctx context.Context, database, table string, limit int) ([]map[string]any, error)
}

// ContextBuilder renders catalog metadata into the text block the
// prompt embeds.
type ContextBuilder struct {
	catalog Catalog
	sampler Sampler
	// SampleRows caps example rows per table when a sampler is set.
	SampleRows int
}

func NewContextBuilder(catalog Catalog, sampler Sampler, sampleRows int) *ContextBuilder {
	if sampleRows <= 0 {
		sampleRows = 3
	}
	return &ContextBuilder{catalog: catalog, sampler: sampler, SampleRows: sampleRows}
}

// ListTables exposes the underlying catalog's table listing.
func (b *ContextBuilder) ListTables(ctx context.Context, database string) ([]string, error) {
	return b.catalog.ListTables(ctx, database)
}

// Build renders the schema of every table in the database. Sample rows
// are best effort; a failing sampler never fails the build.
func (b *ContextBuilder) Build(ctx context.Context, database string, includeSamples bool) (string, error) {
	tables, err := b.catalog.ListTables(ctx, database)
	if err != nil {
		return "", fmt.Errorf("list tables for %q: %w", database, err)
	}
	if len(tables) == 0 {
		return fmt.Sprintf("Database: %s\n(no tables)", database), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Database: %s\n", database)
	for _, table := range tables {
		tableSchema, err := b.catalog.TableSchema(ctx, database, table)
		if err != nil {
			return "", fmt.Errorf("load schema for %s.%s: %w", database, table, err)
		}
		sb.WriteString("\n")
		sb.WriteString(FormatTable(database, tableSchema))

		if includeSamples && b.sampler != nil {
			rows, err := b.sampler.SampleRows(ctx, database, table, b.SampleRows)
			if err == nil && len(rows) > 0 {
				sb.WriteString(formatSampleRows(rows))
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// FormatTable renders one table the way the prompt expects it.
func FormatTable(database string, table TableSchema) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Table: %s.%s\n", database, table.Table)
	sb.WriteString("Columns:\n")
	for _, column := range table.Columns {
		fmt.Fprintf(&sb, "  - %s (%s)", column.Name, column.Type)
		if column.Comment != "" {
			fmt.Fprintf(&sb, " -- %s", column.Comment)
		}
		if column.PartitionKey {
			sb.WriteString(" [partition key]")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatSampleRows(rows []map[string]any) string {
	var sb strings.Builder
	sb.WriteString("Sample rows:\n")
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for key := range row {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", key, row[key]))
		}
		fmt.Fprintf(&sb, "  %s\n", strings.Join(parts, ", "))
	}
	return sb.String()
}
