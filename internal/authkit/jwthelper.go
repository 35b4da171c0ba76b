package authkit

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tyemirov/quizsession/pkg/sessionvalidator"
)

// MintAccessToken creates a signed HS256 access token for user with a fresh jti.
func MintAccessToken(clock sessionvalidator.Clock, user UserRecord, issuer string, signingKey []byte, ttl time.Duration) (string, *sessionvalidator.Claims, error) {
	issuedAt := clock.Now().UTC()
	claims := &sessionvalidator.Claims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}
