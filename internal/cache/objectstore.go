package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/askdb/askdb/internal/storage"
)

// ObjectStoreTier persists cache entries as JSON objects under a
// prefix in an object store.
type ObjectStoreTier struct {
	store  storage.ObjectStore
	prefix string
}

func NewObjectStoreTier(store storage.ObjectStore, prefix string) (*ObjectStoreTier, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = "cache"
	}
	return &ObjectStoreTier{store: store, prefix: strings.TrimSpace(prefix)}, nil
}

func (t *ObjectStoreTier) Get(ctx context.Context, key string) (Entry, error) {
	objectKey, err := storage.BuildCacheEntryPath(t.prefix, key)
	if err != nil {
		return Entry{}, err
	}
	reader, err := t.store.Get(ctx, objectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	defer func() { _ = reader.Close() }()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Entry{}, fmt.Errorf("read cache object %q: %w", objectKey, err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode cache object %q: %w", objectKey, err)
	}
	return entry, nil
}

func (t *ObjectStoreTier) Put(ctx context.Context, entry Entry) error {
	objectKey, err := storage.BuildCacheEntryPath(t.prefix, entry.Key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", entry.Key, err)
	}
	_, err = t.store.Put(ctx, objectKey, bytes.NewReader(raw), int64(len(raw)), storage.PutOptions{ContentType: "application/json"})
	return err
}

func (t *ObjectStoreTier) Delete(ctx context.Context, key string) error {
	objectKey, err := storage.BuildCacheEntryPath(t.prefix, key)
	if err != nil {
		return err
	}
	if err := t.store.Delete(ctx, objectKey); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (t *ObjectStoreTier) Clear(ctx context.Context) error {
	keys, err := t.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := t.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

func (t *ObjectStoreTier) Keys(ctx context.Context) ([]string, error) {
	objects, err := t.store.List(ctx, t.prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(objects))
	for _, object := range objects {
		name := path.Base(object.Key)
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	return keys, nil
}
