package authkit

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserExists          = errors.New("users.exists")
	ErrUserNotFound        = errors.New("users.not_found")
	ErrInvalidCredentials  = errors.New("users.invalid_credentials")
	ErrInvalidRegistration = errors.New("users.invalid_registration")
	ErrAPITokenNotFound    = errors.New("users.api_token_not_found")
)

// UserRecord is the public view of an account.
type UserRecord struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name"`
	Bio         string    `json:"bio"`
	Location    string    `json:"location"`
	Website     string    `json:"website"`
	AvatarColor string    `json:"avatar_color"`
	IsActive    bool      `json:"is_active"`
	IsVerified  bool      `json:"is_verified"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Registration is a sign-up request.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// ProfileChanges carries editable fields; nil leaves a field unchanged.
type ProfileChanges struct {
	FullName    *string `json:"full_name"`
	Bio         *string `json:"bio"`
	Location    *string `json:"location"`
	Website     *string `json:"website"`
	AvatarColor *string `json:"avatar_color"`
}

// UserStore persists and retrieves application users.
type UserStore interface {
	Register(ctx context.Context, registration Registration) (UserRecord, error)
	Authenticate(ctx context.Context, identifier string, password string) (UserRecord, error)
	GetUser(ctx context.Context, applicationUserID string) (UserRecord, error)
	UpdateProfile(ctx context.Context, applicationUserID string, changes ProfileChanges) (UserRecord, error)
	SaveAPIToken(ctx context.Context, applicationUserID string, token string) error
	APIToken(ctx context.Context, applicationUserID string) (string, error)
}

// RefreshTokenStore manages long-lived rotating refresh tokens. Each rotated token
// remembers the token it replaced, so a replayed old token can revoke its descendants.
type RefreshTokenStore interface {
	Issue(ctx context.Context, applicationUserID string, expiresUnix int64, previousTokenID string) (tokenID string, tokenOpaque string, err error)
	Validate(ctx context.Context, tokenOpaque string) (applicationUserID string, tokenID string, expiresUnix int64, err error)
	Revoke(ctx context.Context, tokenID string) error
	RevokeDescendants(ctx context.Context, tokenID string) (int, error)
}

// AccessTokenDenylist records access tokens revoked before their expiry.
type AccessTokenDenylist interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) bool
}
