package quizapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/tyemirov/quizsession/pkg/tokenstore"
	"go.uber.org/zap"
)

// KeyUserAPIToken is the per-tab storage key of the cached user API token.
const KeyUserAPIToken = "user_api_token"

type userTokenPayload struct {
	Token string `json:"token"`
}

// SaveUserToken stores the user's third-party API token on the backend.
func (client *Client) SaveUserToken(ctx context.Context, token string) error {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ErrEmptyToken
	}
	return client.do(ctx, http.MethodPost, "/api/user/token", nil, userTokenPayload{Token: trimmed}, nil)
}

// UserToken returns the user's stored API token, or "" when the backend has none.
func (client *Client) UserToken(ctx context.Context) (string, error) {
	var payload userTokenPayload
	err := client.do(ctx, http.MethodGet, "/api/user/token", nil, nil, &payload)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return payload.Token, nil
}

// UserTokenCache keeps the user API token in per-tab storage so forms can suggest it
// without a backend round trip. It is session-scoped data: logout clears it.
type UserTokenCache struct {
	mutex   sync.Mutex
	client  *Client
	storage tokenstore.Storage
	logger  *zap.Logger
}

// NewUserTokenCache constructs a cache over storage. A nil storage disables caching.
func NewUserTokenCache(client *Client, storage tokenstore.Storage, logger *zap.Logger) *UserTokenCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserTokenCache{client: client, storage: storage, logger: logger}
}

// Suggestion returns the cached token, fetching it from the backend on a miss.
func (cache *UserTokenCache) Suggestion(ctx context.Context) (string, error) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	if cache.storage != nil {
		value, found, err := cache.storage.GetItem(ctx, KeyUserAPIToken)
		if err != nil {
			cache.logger.Warn("user token cache read failed",
				zap.String("code", "quizapi.user_token.cache_read"),
				zap.Error(err))
		} else if found && value != "" {
			return value, nil
		}
	}

	token, fetchErr := cache.client.UserToken(ctx)
	if fetchErr != nil {
		return "", fmt.Errorf("quizapi.user_token: %w", fetchErr)
	}
	if token != "" {
		cache.remember(ctx, token)
	}
	return token, nil
}

// Save stores token on the backend and in the cache.
func (cache *UserTokenCache) Save(ctx context.Context, token string) error {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	if err := cache.client.SaveUserToken(ctx, token); err != nil {
		return err
	}
	cache.remember(ctx, strings.TrimSpace(token))
	return nil
}

// ClearSessionData drops the cached token.
func (cache *UserTokenCache) ClearSessionData(ctx context.Context) error {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	if cache.storage == nil {
		return nil
	}
	return cache.storage.RemoveItem(ctx, KeyUserAPIToken)
}

func (cache *UserTokenCache) remember(ctx context.Context, token string) {
	if cache.storage == nil {
		return
	}
	if err := cache.storage.SetItem(ctx, KeyUserAPIToken, token); err != nil {
		cache.logger.Warn("user token cache write failed",
			zap.String("code", "quizapi.user_token.cache_write"),
			zap.Error(err))
	}
}
