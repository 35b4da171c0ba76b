package authkit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryRefreshTokenStore keeps refresh tokens in process memory. Restarting the backend
// signs every client out.
type MemoryRefreshTokenStore struct {
	mutex    sync.Mutex
	tokens   map[string]*memoryRefreshToken
	idByHash map[string]string
	now      func() time.Time
}

type memoryRefreshToken struct {
	userID          string
	hash            string
	expiresUnix     int64
	revokedAtUnix   int64
	previousTokenID string
}

// NewMemoryRefreshTokenStore creates an empty store.
func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{
		tokens:   make(map[string]*memoryRefreshToken),
		idByHash: make(map[string]string),
		now:      time.Now,
	}
}

// Issue mints a token for applicationUserID. previousTokenID links a rotated token to the
// one it replaces.
func (store *MemoryRefreshTokenStore) Issue(ctx context.Context, applicationUserID string, expiresUnix int64, previousTokenID string) (string, string, error) {
	secret, mintErr := mintRefreshSecret()
	if mintErr != nil {
		return "", "", mintErr
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	store.tokens[secret.TokenID] = &memoryRefreshToken{
		userID:          applicationUserID,
		hash:            secret.Hash,
		expiresUnix:     expiresUnix,
		previousTokenID: previousTokenID,
	}
	store.idByHash[secret.Hash] = secret.TokenID
	return secret.TokenID, secret.Opaque, nil
}

// Validate resolves an opaque token to its user, id, and expiry.
func (store *MemoryRefreshTokenStore) Validate(ctx context.Context, tokenOpaque string) (string, string, int64, error) {
	if strings.TrimSpace(tokenOpaque) == "" {
		return "", "", 0, ErrRefreshTokenEmptyOpaque
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	tokenID, found := store.idByHash[hashRefreshOpaque(tokenOpaque)]
	if !found || store.tokens[tokenID] == nil {
		return "", "", 0, ErrRefreshTokenNotFound
	}
	token := store.tokens[tokenID]
	if token.revokedAtUnix != 0 {
		return token.userID, tokenID, token.expiresUnix, ErrRefreshTokenRevoked
	}
	if time.Unix(token.expiresUnix, 0).Before(store.now().UTC()) {
		return "", "", 0, ErrRefreshTokenExpired
	}
	return token.userID, tokenID, token.expiresUnix, nil
}

// Revoke marks a token as revoked. Revoking twice returns ErrRefreshTokenAlreadyRevoked.
func (store *MemoryRefreshTokenStore) Revoke(ctx context.Context, tokenID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	token := store.tokens[tokenID]
	if token == nil {
		return ErrRefreshTokenNotFound
	}
	if token.revokedAtUnix != 0 {
		return ErrRefreshTokenAlreadyRevoked
	}
	token.revokedAtUnix = store.now().UTC().Unix()
	return nil
}

// RevokeDescendants revokes every live token rotated, directly or transitively, from
// tokenID and reports how many were revoked.
func (store *MemoryRefreshTokenStore) RevokeDescendants(ctx context.Context, tokenID string) (int, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	revokedAtUnix := store.now().UTC().Unix()
	revoked := 0
	frontier := map[string]bool{tokenID: true}
	for len(frontier) > 0 {
		next := make(map[string]bool)
		for childID, token := range store.tokens {
			if !frontier[token.previousTokenID] {
				continue
			}
			next[childID] = true
			if token.revokedAtUnix == 0 {
				token.revokedAtUnix = revokedAtUnix
				revoked++
			}
		}
		frontier = next
	}
	return revoked, nil
}
