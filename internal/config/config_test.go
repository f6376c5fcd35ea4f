package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("askdb-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.ObjectStore.Endpoint != "localhost:9000" {
		t.Fatalf("ObjectStore.Endpoint = %q", cfg.ObjectStore.Endpoint)
	}
	if cfg.Catalog.Database != "analytics" {
		t.Fatalf("Catalog.Database = %q", cfg.Catalog.Database)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Fatalf("Cache.TTL = %v", cfg.Cache.TTL)
	}
	if !cfg.Cache.Enabled {
		t.Fatal("Cache.Enabled should default to true")
	}
	if cfg.Retrieval.Enabled {
		t.Fatal("Retrieval.Enabled should default to false")
	}
	if cfg.Retrieval.MinConfidence != 0.7 {
		t.Fatalf("Retrieval.MinConfidence = %v", cfg.Retrieval.MinConfidence)
	}
	if cfg.Query.MaxLength != 5000 {
		t.Fatalf("Query.MaxLength = %d", cfg.Query.MaxLength)
	}
	if cfg.AI.ModelID != "anthropic.claude-3-sonnet" {
		t.Fatalf("AI.ModelID = %q", cfg.AI.ModelID)
	}
	if cfg.AI.MaxTokens != 1000 {
		t.Fatalf("AI.MaxTokens = %d", cfg.AI.MaxTokens)
	}
	if cfg.Executor.DefaultLimit != 1000 {
		t.Fatalf("Executor.DefaultLimit = %d", cfg.Executor.DefaultLimit)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"ASKDB_PROFILE": "prod"})
	cfg, err := Load("askdb-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
	if cfg.ObjectStore.AutoCreateBucket {
		t.Fatal("ObjectStore.AutoCreateBucket should default to false in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"ASKDB_HTTP_ADDR":                ":9090",
		"ASKDB_CATALOG_DATABASE":         "warehouse",
		"ASKDB_AI_MODEL_ID":              "amazon.titan-text-express",
		"ASKDB_AI_TIMEOUT":               "45s",
		"ASKDB_RETRIEVAL_ENABLED":        "true",
		"ASKDB_RETRIEVAL_MIN_CONFIDENCE": "0.5",
		"ASKDB_CACHE_TTL":                "15m",
		"ASKDB_QUERY_MAX_LENGTH":         "2000",
		"ASKDB_LOG_LEVEL":                "error",
	})
	cfg, err := Load("askdb-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":9090" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Catalog.Database != "warehouse" {
		t.Fatalf("Catalog.Database = %q", cfg.Catalog.Database)
	}
	if cfg.AI.ModelID != "amazon.titan-text-express" {
		t.Fatalf("AI.ModelID = %q", cfg.AI.ModelID)
	}
	if cfg.AI.Timeout != 45*time.Second {
		t.Fatalf("AI.Timeout = %v", cfg.AI.Timeout)
	}
	if !cfg.Retrieval.Enabled {
		t.Fatal("Retrieval.Enabled should be overridden to true")
	}
	if cfg.Retrieval.MinConfidence != 0.5 {
		t.Fatalf("Retrieval.MinConfidence = %v", cfg.Retrieval.MinConfidence)
	}
	if cfg.Cache.TTL != 15*time.Minute {
		t.Fatalf("Cache.TTL = %v", cfg.Cache.TTL)
	}
	if cfg.Query.MaxLength != 2000 {
		t.Fatalf("Query.MaxLength = %d", cfg.Query.MaxLength)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadRejectsInvalidProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{"ASKDB_PROFILE": "staging"})
	if _, err := Load("askdb-api", lookup); err == nil {
		t.Fatal("Load() should reject unknown profile")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad duration":       {"ASKDB_AI_TIMEOUT": "soon"},
		"bad bool":           {"ASKDB_CACHE_ENABLED": "yep"},
		"bad int":            {"ASKDB_QUERY_MAX_LENGTH": "lots"},
		"bad float":          {"ASKDB_RETRIEVAL_MIN_CONFIDENCE": "high"},
		"bad log level":      {"ASKDB_LOG_LEVEL": "loud"},
		"confidence too big": {"ASKDB_RETRIEVAL_MIN_CONFIDENCE": "1.5"},
		"empty database":     {"ASKDB_CATALOG_DATABASE": ""},
	}
	for name, env := range cases {
		if _, err := Load("askdb-api", mapLookup(env)); err == nil {
			t.Fatalf("%s: Load() should fail", name)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
