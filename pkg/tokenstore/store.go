package tokenstore

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Storage keys shared by the per-tab and legacy stores.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyTokenType    = "token_type"
)

// DefaultTokenType is stored when SetTokens receives an empty token type.
const DefaultTokenType = "bearer"

var credentialKeys = []string{KeyAccessToken, KeyRefreshToken, KeyTokenType}

// Credential is the access/refresh token pair and its type.
type Credential struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// Options configures a TokenStore.
type Options struct {
	// Session is the per-tab storage. A nil Session disables the store.
	Session Storage
	// Legacy is the persistent storage read once per key for migration. Optional.
	Legacy Storage
	Logger *zap.Logger
}

// TokenStore holds at most one Credential. It is safe for concurrent use.
type TokenStore struct {
	mutex    sync.Mutex
	session  Storage
	legacy   Storage
	logger   *zap.Logger
	cache    map[string]string
	migrated map[string]bool
}

// New constructs a TokenStore over the supplied storages.
func New(options Options) *TokenStore {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenStore{
		session:  options.Session,
		legacy:   options.Legacy,
		logger:   logger,
		cache:    make(map[string]string, len(credentialKeys)),
		migrated: make(map[string]bool, len(credentialKeys)),
	}
}

// AccessToken returns the stored access token or "".
func (store *TokenStore) AccessToken(ctx context.Context) string {
	return store.get(ctx, KeyAccessToken)
}

// RefreshToken returns the stored refresh token or "".
func (store *TokenStore) RefreshToken(ctx context.Context) string {
	return store.get(ctx, KeyRefreshToken)
}

// TokenType returns the stored token type or "".
func (store *TokenStore) TokenType(ctx context.Context) string {
	return store.get(ctx, KeyTokenType)
}

// Credential resolves all three values under one lock.
func (store *TokenStore) Credential(ctx context.Context) Credential {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return Credential{
		AccessToken:  store.resolveLocked(ctx, KeyAccessToken),
		RefreshToken: store.resolveLocked(ctx, KeyRefreshToken),
		TokenType:    store.resolveLocked(ctx, KeyTokenType),
	}
}

// HasTokens reports whether both the access and the refresh token are resolvable.
func (store *TokenStore) HasTokens(ctx context.Context) bool {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.resolveLocked(ctx, KeyAccessToken) != "" && store.resolveLocked(ctx, KeyRefreshToken) != ""
}

// SetTokens overwrites all three values. An empty tokenType stores DefaultTokenType.
// The cache is updated even when a storage write fails; the write error is returned.
func (store *TokenStore) SetTokens(ctx context.Context, accessToken string, refreshToken string, tokenType string) error {
	if store.session == nil {
		return nil
	}
	if tokenType == "" {
		tokenType = DefaultTokenType
	}
	values := map[string]string{
		KeyAccessToken:  accessToken,
		KeyRefreshToken: refreshToken,
		KeyTokenType:    tokenType,
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	var writeErrs []error
	for _, key := range credentialKeys {
		store.cache[key] = values[key]
		if err := store.session.SetItem(ctx, key, values[key]); err != nil {
			writeErrs = append(writeErrs, err)
		}
	}
	return store.report("tokenstore.set_tokens", errors.Join(writeErrs...))
}

// UpdateAccessToken replaces only the access token.
func (store *TokenStore) UpdateAccessToken(ctx context.Context, accessToken string) error {
	if store.session == nil {
		return nil
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	store.cache[KeyAccessToken] = accessToken
	return store.report("tokenstore.update_access_token", store.session.SetItem(ctx, KeyAccessToken, accessToken))
}

// ClearTokens removes all three values. Clearing an empty store is a no-op.
func (store *TokenStore) ClearTokens(ctx context.Context) error {
	if store.session == nil {
		return nil
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	var removeErrs []error
	for _, key := range credentialKeys {
		delete(store.cache, key)
		if err := store.session.RemoveItem(ctx, key); err != nil {
			removeErrs = append(removeErrs, err)
		}
	}
	return store.report("tokenstore.clear_tokens", errors.Join(removeErrs...))
}

func (store *TokenStore) get(ctx context.Context, key string) string {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.resolveLocked(ctx, key)
}

func (store *TokenStore) resolveLocked(ctx context.Context, key string) string {
	if value := store.cache[key]; value != "" {
		return value
	}
	if store.session == nil {
		return ""
	}
	value, found, err := store.session.GetItem(ctx, key)
	if err != nil {
		store.logger.Warn("session storage read failed",
			zap.String("code", "tokenstore.read_failed"),
			zap.String("key", key),
			zap.Error(err))
		return ""
	}
	if !found || value == "" {
		value = store.migrateLocked(ctx, key)
	}
	if value != "" {
		store.cache[key] = value
	}
	return value
}

// migrateLocked moves key from the legacy storage into the session storage. It runs at
// most once per key for the lifetime of the store.
func (store *TokenStore) migrateLocked(ctx context.Context, key string) string {
	if store.legacy == nil || store.migrated[key] {
		return ""
	}
	store.migrated[key] = true

	value, found, err := store.legacy.GetItem(ctx, key)
	if err != nil {
		store.logger.Warn("legacy storage read failed",
			zap.String("code", "tokenstore.migrate_failed"),
			zap.String("key", key),
			zap.Error(err))
		return ""
	}
	if !found || value == "" {
		return ""
	}
	if setErr := store.session.SetItem(ctx, key, value); setErr != nil {
		store.logger.Warn("session storage write failed during migration",
			zap.String("code", "tokenstore.migrate_failed"),
			zap.String("key", key),
			zap.Error(setErr))
	}
	if removeErr := store.legacy.RemoveItem(ctx, key); removeErr != nil {
		store.logger.Warn("legacy storage cleanup failed",
			zap.String("code", "tokenstore.migrate_cleanup_failed"),
			zap.String("key", key),
			zap.Error(removeErr))
	}
	store.logger.Info("migrated credential value from legacy storage",
		zap.String("code", "tokenstore.migrated"),
		zap.String("key", key))
	return value
}

func (store *TokenStore) report(code string, err error) error {
	if err == nil {
		return nil
	}
	store.logger.Warn("session storage write failed",
		zap.String("code", code),
		zap.Error(err))
	return err
}
