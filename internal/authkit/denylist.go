package authkit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrEmptyTokenID indicates a revoke call without a jti.
	ErrEmptyTokenID = errors.New("denylist.empty_token_id")
	// ErrMissingRedisClient indicates NewRedisDenylist received a nil client.
	ErrMissingRedisClient = errors.New("denylist.missing_redis_client")
)

type memoryDenylist struct {
	mutex   sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryDenylist constructs an in-memory AccessTokenDenylist. Entries are purged once the
// token they name has expired.
func NewMemoryDenylist() AccessTokenDenylist {
	return &memoryDenylist{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (store *memoryDenylist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if strings.TrimSpace(tokenID) == "" {
		return ErrEmptyTokenID
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	if store.now().After(expiresAt) {
		return nil
	}
	store.entries[tokenID] = expiresAt
	return nil
}

func (store *memoryDenylist) IsRevoked(ctx context.Context, tokenID string) bool {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	expiry, ok := store.entries[tokenID]
	if !ok {
		return false
	}
	if store.now().After(expiry) {
		delete(store.entries, tokenID)
		return false
	}
	return true
}

func (store *memoryDenylist) purgeExpiredLocked() {
	if len(store.entries) == 0 {
		return
	}
	now := store.now()
	for tokenID, expiry := range store.entries {
		if now.After(expiry) {
			delete(store.entries, tokenID)
		}
	}
}

// RedisDenylist keeps revoked token ids in redis with a TTL matching the token's remaining
// lifetime, so every backend replica sees the same denylist.
type RedisDenylist struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisDenylist constructs a RedisDenylist. Keys are "<prefix>:denylist:<jti>".
func NewRedisDenylist(client redis.UniversalClient, prefix string, logger *zap.Logger) (*RedisDenylist, error) {
	if client == nil {
		return nil, ErrMissingRedisClient
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultIssuer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisDenylist{client: client, prefix: prefix, logger: logger, now: time.Now}, nil
}

// Revoke records tokenID until expiresAt.
func (store *RedisDenylist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if strings.TrimSpace(tokenID) == "" {
		return ErrEmptyTokenID
	}
	remaining := expiresAt.Sub(store.now())
	if remaining <= 0 {
		return nil
	}
	return store.client.Set(ctx, store.key(tokenID), "1", remaining).Err()
}

// IsRevoked reports whether tokenID is on the denylist. A redis failure counts as revoked.
func (store *RedisDenylist) IsRevoked(ctx context.Context, tokenID string) bool {
	count, err := store.client.Exists(ctx, store.key(tokenID)).Result()
	if err != nil {
		store.logger.Warn("denylist lookup failed",
			zap.String("code", "denylist.lookup_failed"),
			zap.Error(err))
		return true
	}
	return count > 0
}

func (store *RedisDenylist) key(tokenID string) string {
	return store.prefix + ":denylist:" + tokenID
}
