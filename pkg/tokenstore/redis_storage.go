package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisNamespace = "quizsession"

// RedisStorage keeps values in Redis under "<namespace>:<key>", letting several processes
// share the storage of one logical tab.
type RedisStorage struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisStorage constructs a RedisStorage. An empty namespace falls back to "quizsession".
func NewRedisStorage(client redis.UniversalClient, namespace string) (*RedisStorage, error) {
	if client == nil {
		return nil, fmt.Errorf("tokenstore.redis.new: %w", ErrMissingRedisClient)
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = defaultRedisNamespace
	}
	return &RedisStorage{client: client, namespace: namespace}, nil
}

// OpenRedisStorage parses a redis:// URL and constructs a RedisStorage over a new client.
func OpenRedisStorage(redisURL string, namespace string) (*RedisStorage, error) {
	options, parseErr := redis.ParseURL(redisURL)
	if parseErr != nil {
		return nil, fmt.Errorf("tokenstore.redis.parse_url: %w", parseErr)
	}
	return NewRedisStorage(redis.NewClient(options), namespace)
}

// GetItem returns the stored value for key.
func (storage *RedisStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, ErrEmptyKey
	}
	value, err := storage.client.Get(ctx, storage.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("tokenstore.redis.get: %w", err)
	}
	return value, true, nil
}

// SetItem stores value under key without expiry.
func (storage *RedisStorage) SetItem(ctx context.Context, key string, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if err := storage.client.Set(ctx, storage.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("tokenstore.redis.set: %w", err)
	}
	return nil
}

// RemoveItem deletes key.
func (storage *RedisStorage) RemoveItem(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if err := storage.client.Del(ctx, storage.key(key)).Err(); err != nil {
		return fmt.Errorf("tokenstore.redis.del: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (storage *RedisStorage) Close() error {
	return storage.client.Close()
}

func (storage *RedisStorage) key(key string) string {
	return storage.namespace + ":" + key
}
