package authkit

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Refresh token store errors. Validate returns the owning user and token id alongside
// ErrRefreshTokenRevoked so callers can react to a replayed rotated token.
var (
	ErrRefreshTokenNotFound       = errors.New("refresh_token.not_found")
	ErrRefreshTokenRevoked        = errors.New("refresh_token.revoked")
	ErrRefreshTokenExpired        = errors.New("refresh_token.expired")
	ErrRefreshTokenAlreadyRevoked = errors.New("refresh_token.already_revoked")
	ErrRefreshTokenEmptyOpaque    = errors.New("refresh_token.empty_token")
)

const refreshSecretByteLength = 32

// refreshSecret is a freshly minted refresh token: the opaque value handed to the client
// and the hash the stores keep.
type refreshSecret struct {
	TokenID string
	Opaque  string
	Hash    string
}

func mintRefreshSecret() (refreshSecret, error) {
	randomBytes := make([]byte, refreshSecretByteLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return refreshSecret{}, fmt.Errorf("refresh_token.random: %w", err)
	}
	opaque := base64.RawURLEncoding.EncodeToString(randomBytes)
	return refreshSecret{
		TokenID: uuid.NewString(),
		Opaque:  opaque,
		Hash:    hashRefreshOpaque(opaque),
	}, nil
}

func hashRefreshOpaque(opaque string) string {
	sum := sha256.Sum256([]byte(opaque))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
