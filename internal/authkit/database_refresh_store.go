package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tyemirov/quizsession/internal/database"
	"gorm.io/gorm"
)

// DatabaseRefreshTokenStore persists rotating refresh tokens with GORM so sessions survive
// backend restarts and are shared by replicas.
type DatabaseRefreshTokenStore struct {
	db          *gorm.DB
	driverLabel string
	now         func() time.Time
}

type refreshTokenRow struct {
	TokenID         string `gorm:"column:token_id;primaryKey"`
	UserID          string `gorm:"column:user_id;index;not null"`
	TokenHash       string `gorm:"column:token_hash;uniqueIndex;not null"`
	ExpiresUnix     int64  `gorm:"column:expires_unix;not null"`
	RevokedAtUnix   int64  `gorm:"column:revoked_at_unix;not null;default:0"`
	PreviousTokenID string `gorm:"column:previous_token_id;index;not null;default:''"`
	IssuedAtUnix    int64  `gorm:"column:issued_at_unix;not null"`
}

func (refreshTokenRow) TableName() string {
	return "quiz_refresh_tokens"
}

// NewDatabaseRefreshTokenStore opens a postgres:// or sqlite:// database and migrates the
// refresh token table.
func NewDatabaseRefreshTokenStore(ctx context.Context, databaseURL string) (*DatabaseRefreshTokenStore, error) {
	gormDB, driverLabel, err := database.Open(ctx, databaseURL, &refreshTokenRow{})
	if err != nil {
		return nil, fmt.Errorf("refresh_token.open: %w", err)
	}
	return &DatabaseRefreshTokenStore{db: gormDB, driverLabel: driverLabel, now: time.Now}, nil
}

// Driver exposes the selected database driver label.
func (store *DatabaseRefreshTokenStore) Driver() string {
	return store.driverLabel
}

// Issue mints and stores a token for applicationUserID.
func (store *DatabaseRefreshTokenStore) Issue(ctx context.Context, applicationUserID string, expiresUnix int64, previousTokenID string) (string, string, error) {
	secret, mintErr := mintRefreshSecret()
	if mintErr != nil {
		return "", "", store.wrap("issue", mintErr)
	}
	row := refreshTokenRow{
		TokenID:         secret.TokenID,
		UserID:          applicationUserID,
		TokenHash:       secret.Hash,
		ExpiresUnix:     expiresUnix,
		PreviousTokenID: previousTokenID,
		IssuedAtUnix:    store.now().UTC().Unix(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", "", store.wrap("issue", err)
	}
	return secret.TokenID, secret.Opaque, nil
}

// Validate resolves an opaque token to its user, id, and expiry.
func (store *DatabaseRefreshTokenStore) Validate(ctx context.Context, tokenOpaque string) (string, string, int64, error) {
	if strings.TrimSpace(tokenOpaque) == "" {
		return "", "", 0, store.wrap("validate", ErrRefreshTokenEmptyOpaque)
	}
	row, findErr := store.find(ctx, "token_hash = ?", hashRefreshOpaque(tokenOpaque))
	if findErr != nil {
		return "", "", 0, store.wrap("validate", findErr)
	}
	if row.RevokedAtUnix != 0 {
		return row.UserID, row.TokenID, row.ExpiresUnix, store.wrap("validate", ErrRefreshTokenRevoked)
	}
	if time.Unix(row.ExpiresUnix, 0).Before(store.now().UTC()) {
		return "", "", 0, store.wrap("validate", ErrRefreshTokenExpired)
	}
	return row.UserID, row.TokenID, row.ExpiresUnix, nil
}

// Revoke marks a token as revoked. Revoking twice returns ErrRefreshTokenAlreadyRevoked.
func (store *DatabaseRefreshTokenStore) Revoke(ctx context.Context, tokenID string) error {
	result := store.db.WithContext(ctx).Model(&refreshTokenRow{}).
		Where("token_id = ? AND revoked_at_unix = 0", tokenID).
		Update("revoked_at_unix", store.now().UTC().Unix())
	if result.Error != nil {
		return store.wrap("revoke", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if _, findErr := store.find(ctx, "token_id = ?", tokenID); findErr != nil {
		return store.wrap("revoke", findErr)
	}
	return store.wrap("revoke", ErrRefreshTokenAlreadyRevoked)
}

// RevokeDescendants revokes every live token rotated, directly or transitively, from
// tokenID and reports how many were revoked.
func (store *DatabaseRefreshTokenStore) RevokeDescendants(ctx context.Context, tokenID string) (int, error) {
	revokedAtUnix := store.now().UTC().Unix()
	revoked := 0
	frontier := []string{tokenID}
	for len(frontier) > 0 {
		var childIDs []string
		if err := store.db.WithContext(ctx).Model(&refreshTokenRow{}).
			Where("previous_token_id IN ?", frontier).
			Pluck("token_id", &childIDs).Error; err != nil {
			return revoked, store.wrap("revoke_descendants", err)
		}
		if len(childIDs) == 0 {
			break
		}
		result := store.db.WithContext(ctx).Model(&refreshTokenRow{}).
			Where("token_id IN ? AND revoked_at_unix = 0", childIDs).
			Update("revoked_at_unix", revokedAtUnix)
		if result.Error != nil {
			return revoked, store.wrap("revoke_descendants", result.Error)
		}
		revoked += int(result.RowsAffected)
		frontier = childIDs
	}
	return revoked, nil
}

func (store *DatabaseRefreshTokenStore) find(ctx context.Context, query string, argument string) (refreshTokenRow, error) {
	var row refreshTokenRow
	err := store.db.WithContext(ctx).Where(query, argument).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return refreshTokenRow{}, ErrRefreshTokenNotFound
	}
	return row, err
}

func (store *DatabaseRefreshTokenStore) wrap(operation string, err error) error {
	return fmt.Errorf("refresh_token.%s.%s: %w", operation, store.driverLabel, err)
}
