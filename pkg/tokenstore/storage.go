package tokenstore

import (
	"context"
	"strings"
	"sync"
)

// Storage is a string key/value backend. GetItem reports found=false for a missing key;
// RemoveItem on a missing key is not an error.
type Storage interface {
	GetItem(ctx context.Context, key string) (value string, found bool, err error)
	SetItem(ctx context.Context, key string, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// MemoryStorage is a process-local Storage. One instance models the storage of one tab.
type MemoryStorage struct {
	mutex  sync.RWMutex
	values map[string]string
}

// NewMemoryStorage constructs an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

// GetItem returns the stored value for key.
func (storage *MemoryStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, ErrEmptyKey
	}
	storage.mutex.RLock()
	defer storage.mutex.RUnlock()
	value, found := storage.values[key]
	return value, found, nil
}

// SetItem stores value under key.
func (storage *MemoryStorage) SetItem(ctx context.Context, key string, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	storage.mutex.Lock()
	defer storage.mutex.Unlock()
	storage.values[key] = value
	return nil
}

// RemoveItem deletes key.
func (storage *MemoryStorage) RemoveItem(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	storage.mutex.Lock()
	defer storage.mutex.Unlock()
	delete(storage.values, key)
	return nil
}

// Len returns the number of stored keys.
func (storage *MemoryStorage) Len() int {
	storage.mutex.RLock()
	defer storage.mutex.RUnlock()
	return len(storage.values)
}
