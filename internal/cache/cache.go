// Package cache stores executed query results keyed by the normalized
// statement text. A fast in-process map fronts an optional persisted
// tier so results survive restarts.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/askdb/askdb/internal/observability"
)

// ErrNotFound is returned by the persisted tier for unknown keys.
var ErrNotFound = errors.New("cache entry not found")

// Entry is one cached result set. Scope separates identical SQL run
// against different databases or workspaces.
type Entry struct {
	Key       string           `json:"key"`
	SQL       string           `json:"sql"`
	Scope     string           `json:"scope"`
	Rows      []map[string]any `json:"rows"`
	CreatedAt time.Time        `json:"created_at"`
	HitCount  int              `json:"hit_count"`
}

// Store is the persisted tier. Implementations must return ErrNotFound
// for unknown keys.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Put(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
}

// Stats is a point-in-time summary of cache effectiveness.
type Stats struct {
	Entries   int     `json:"entries"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	TTLSecond float64 `json:"ttl_seconds"`
}

type Cache struct {
	mu      sync.RWMutex
	memory  map[string]*Entry
	store   Store
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
	hits    int64
	misses  int64
}

// New builds a cache with an optional persisted tier; pass a nil store
// for memory-only operation.
func New(store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		memory: map[string]*Entry{},
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Key derives the cache key for a statement in a scope. Keys are
// stable across whitespace and case differences in the SQL.
func Key(scope, sql string) string {
	normalized := strings.ToLower(strings.TrimSpace(scope + ":" + sql))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached rows for scope and sql, or ok=false on a miss
// or expired entry. Persisted-tier failures count as misses; they are
// logged and never surfaced.
func (c *Cache) Get(ctx context.Context, scope, sql string) (Entry, bool) {
	key := Key(scope, sql)

	c.mu.Lock()
	entry, ok := c.memory[key]
	if ok {
		if c.expired(entry) {
			delete(c.memory, key)
			ok = false
		} else {
			entry.HitCount++
			copied := *entry
			c.hits++
			c.mu.Unlock()
			observability.ObserveCacheLookup(true)
			return copied, true
		}
	}
	c.mu.Unlock()

	if c.store != nil {
		stored, err := c.store.Get(ctx, key)
		if err == nil && !c.expired(&stored) {
			stored.HitCount++
			c.mu.Lock()
			held := stored
			c.memory[key] = &held
			c.hits++
			c.mu.Unlock()
			observability.ObserveCacheLookup(true)
			return stored, true
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			c.logger.WarnContext(ctx, "persisted cache read failed",
				slog.String("key", key), slog.String("error", err.Error()))
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	observability.ObserveCacheLookup(false)
	return Entry{}, false
}

// Set caches rows for scope and sql. The persisted write is best
// effort; a failing store never fails the caller.
func (c *Cache) Set(ctx context.Context, scope, sql string, rows []map[string]any) {
	key := Key(scope, sql)
	entry := Entry{
		Key:       key,
		SQL:       sql,
		Scope:     scope,
		Rows:      rows,
		CreatedAt: c.now(),
	}

	c.mu.Lock()
	held := entry
	c.memory[key] = &held
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Put(ctx, entry); err != nil {
			c.logger.WarnContext(ctx, "persisted cache write failed",
				slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}

// Invalidate removes the entry for scope and sql from both tiers.
func (c *Cache) Invalidate(ctx context.Context, scope, sql string) {
	key := Key(scope, sql)
	c.mu.Lock()
	delete(c.memory, key)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			c.logger.WarnContext(ctx, "persisted cache delete failed",
				slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}

// InvalidateAll clears both tiers.
func (c *Cache) InvalidateAll(ctx context.Context) {
	c.mu.Lock()
	c.memory = map[string]*Entry{}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Clear(ctx); err != nil {
			c.logger.WarnContext(ctx, "persisted cache clear failed",
				slog.String("error", err.Error()))
		}
	}
}

// CleanupExpired removes expired entries from both tiers and reports
// how many were dropped.
func (c *Cache) CleanupExpired(ctx context.Context) int {
	removed := 0

	c.mu.Lock()
	for key, entry := range c.memory {
		if c.expired(entry) {
			delete(c.memory, key)
			removed++
		}
	}
	c.mu.Unlock()

	if c.store != nil {
		keys, err := c.store.Keys(ctx)
		if err != nil {
			c.logger.WarnContext(ctx, "persisted cache key listing failed",
				slog.String("error", err.Error()))
			return removed
		}
		for _, key := range keys {
			entry, err := c.store.Get(ctx, key)
			if err != nil {
				continue
			}
			if c.expired(&entry) {
				if err := c.store.Delete(ctx, key); err == nil {
					removed++
				}
			}
		}
	}
	return removed
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Entries:   len(c.memory),
		Hits:      c.hits,
		Misses:    c.misses,
		HitRate:   rate,
		TTLSecond: c.ttl.Seconds(),
	}
}

func (c *Cache) expired(entry *Entry) bool {
	// An entry exactly TTL old is already stale.
	return c.now().Sub(entry.CreatedAt) >= c.ttl
}
