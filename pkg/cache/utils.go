package cache

import (
	"fmt"
	"strings"
)

// GenerateKey creates a cache key with prefix and ID.
func GenerateKey(prefix string, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}

// BuildPattern creates a glob pattern matching every key under prefix.
func BuildPattern(prefix string) string {
	return fmt.Sprintf("%s:*", prefix)
}

// TrimKey strips "prefix:" from key.
func TrimKey(prefix, key string) string {
	return strings.TrimPrefix(key, prefix+":")
}
