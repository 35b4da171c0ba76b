package tokenstore

import (
	"context"
	"strings"
)

// StorageMemory selects a process-local MemoryStorage in OpenStorage.
const StorageMemory = "memory"

// OpenStorage builds a Storage from a location: "memory" (or empty), a redis:// or rediss://
// URL, or a postgres:// or sqlite:// database URL. The returned close function releases any
// connection the storage holds.
func OpenStorage(ctx context.Context, location string, namespace string) (Storage, func() error, error) {
	trimmed := strings.TrimSpace(location)
	lowered := strings.ToLower(trimmed)
	switch {
	case trimmed == "" || lowered == StorageMemory:
		return NewMemoryStorage(), func() error { return nil }, nil
	case strings.HasPrefix(lowered, "redis://") || strings.HasPrefix(lowered, "rediss://"):
		storage, err := OpenRedisStorage(trimmed, namespace)
		if err != nil {
			return nil, nil, err
		}
		return storage, storage.Close, nil
	default:
		storage, err := NewDatabaseStorage(ctx, trimmed)
		if err != nil {
			return nil, nil, err
		}
		return storage, storage.Close, nil
	}
}
