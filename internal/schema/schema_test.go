package schema

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeCatalog struct {
	tables  []string
	schemas map[string]TableSchema
	listErr error
}

func (f *fakeCatalog) ListTables(_ context.Context, _ string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tables, nil
}

func (f *fakeCatalog) TableSchema(_ context.Context, _, table string) (TableSchema, error) {
	tableSchema, ok := f.schemas[table]
	if !ok {
		return TableSchema{}, ErrTableNotFound
	}
	return tableSchema, nil
}

type fakeSampler struct {
	rows []map[string]any
	err  error
}

func (f *fakeSampler) SampleRows(_ context.Context, _, _ string, _ int) ([]map[string]any, error) {
	return f.rows, f.err
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{
		tables: []string{"users"},
		schemas: map[string]TableSchema{
			"users": {
				Table: "users",
				Columns: []Column{
					{Name: "id", Type: "bigint", Comment: "primary key"},
					{Name: "region", Type: "text", PartitionKey: true},
				},
			},
		},
	}
}

func TestBuildRendersQualifiedTables(t *testing.T) {
	builder := NewContextBuilder(testCatalog(), nil, 3)
	got, err := builder.Build(context.Background(), "analytics", false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for _, fragment := range []string{
		"Database: analytics",
		"Table: analytics.users",
		"- id (bigint) -- primary key",
		"- region (text) [partition key]",
	} {
		if !strings.Contains(got, fragment) {
			t.Errorf("context missing %q:\n%s", fragment, got)
		}
	}
}

func TestBuildIncludesSampleRows(t *testing.T) {
	sampler := &fakeSampler{rows: []map[string]any{{"id": 1, "region": "eu"}}}
	builder := NewContextBuilder(testCatalog(), sampler, 3)
	got, err := builder.Build(context.Background(), "analytics", true)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(got, "Sample rows:") {
		t.Fatalf("context missing samples:\n%s", got)
	}
	if !strings.Contains(got, "id=1, region=eu") {
		t.Fatalf("context missing row:\n%s", got)
	}
}

func TestBuildToleratesFailingSampler(t *testing.T) {
	sampler := &fakeSampler{err: errors.New("sampler down")}
	builder := NewContextBuilder(testCatalog(), sampler, 3)
	got, err := builder.Build(context.Background(), "analytics", true)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if strings.Contains(got, "Sample rows:") {
		t.Fatalf("unexpected samples:\n%s", got)
	}
}

func TestBuildEmptyDatabase(t *testing.T) {
	builder := NewContextBuilder(&fakeCatalog{}, nil, 3)
	got, err := builder.Build(context.Background(), "analytics", false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(got, "(no tables)") {
		t.Fatalf("got %q", got)
	}
}

func TestBuildPropagatesCatalogError(t *testing.T) {
	builder := NewContextBuilder(&fakeCatalog{listErr: errors.New("catalog down")}, nil, 3)
	if _, err := builder.Build(context.Background(), "analytics", false); err == nil {
		t.Fatal("expected error")
	}
}
