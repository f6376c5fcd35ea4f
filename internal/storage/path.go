package storage

import (
	"fmt"
	"path"
	"regexp"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildCacheEntryPath returns the object key that stores a persisted
// cache entry. The key hash is produced by the cache layer and is
// always hex, but it is validated here anyway because it becomes part
// of an object path.
func BuildCacheEntryPath(prefix, keyHash string) (string, error) {
	if err := validatePathComponent(keyHash, "cache key"); err != nil {
		return "", err
	}
	if prefix == "" {
		prefix = "cache"
	}
	if err := validatePathComponent(prefix, "cache prefix"); err != nil {
		return "", err
	}
	return path.Join(prefix, keyHash+".json"), nil
}

// BuildExecutionResultPath returns the object key under which a staged
// asynchronous execution result is stored.
func BuildExecutionResultPath(prefix, executionID string) (string, error) {
	if err := validatePathComponent(executionID, "execution id"); err != nil {
		return "", err
	}
	if prefix == "" {
		prefix = "executions"
	}
	if err := validatePathComponent(prefix, "result prefix"); err != nil {
		return "", err
	}
	return path.Join(prefix, fmt.Sprintf("%s.json", executionID)), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
