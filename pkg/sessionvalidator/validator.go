// Package sessionvalidator validates HS256 access tokens presented as bearer credentials.
package sessionvalidator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewSystemClock returns a Clock backed by time.Now.
func NewSystemClock() Clock {
	return systemClock{}
}

// RevocationChecker reports whether an access token id has been revoked before expiry.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) bool
}

// Config configures the Validator.
type Config struct {
	SigningKey  []byte
	Issuer      string
	Clock       Clock
	Revocations RevocationChecker
}

// DefaultContextKey is used by GinMiddleware when no explicit key is provided.
const DefaultContextKey = "auth_claims"

// Sentinel errors exposed by the validator.
var (
	ErrMissingSigningKey    = errors.New("session.validator.missing_signing_key")
	ErrMissingIssuer        = errors.New("session.validator.missing_issuer")
	ErrMissingToken         = errors.New("session.validator.missing_token")
	ErrMissingAuthorization = errors.New("session.validator.missing_authorization")
	ErrUnsupportedScheme    = errors.New("session.validator.unsupported_scheme")
	ErrInvalidToken         = errors.New("session.validator.invalid_token")
	ErrInvalidIssuer        = errors.New("session.validator.invalid_issuer")
	ErrTokenExpired         = errors.New("session.validator.expired")
	ErrTokenRevoked         = errors.New("session.validator.revoked")
)

// Validator validates bearer access tokens.
type Validator struct {
	signingKey  []byte
	issuer      string
	clock       Clock
	revocations RevocationChecker
}

// Claims represent the payload embedded inside access tokens.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// GetUserID returns the user identifier from the token.
func (claims *Claims) GetUserID() string {
	if claims == nil {
		return ""
	}
	return claims.UserID
}

// GetUsername returns the username stored in the token.
func (claims *Claims) GetUsername() string {
	if claims == nil {
		return ""
	}
	return claims.Username
}

// GetUserEmail returns the email associated with the token.
func (claims *Claims) GetUserEmail() string {
	if claims == nil {
		return ""
	}
	return claims.Email
}

// GetTokenID returns the jti.
func (claims *Claims) GetTokenID() string {
	if claims == nil {
		return ""
	}
	return claims.ID
}

// GetExpiresAt returns the expiry timestamp.
func (claims *Claims) GetExpiresAt() time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// New constructs a Validator after validating the supplied configuration.
func New(configuration Config) (*Validator, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("session.validator.new: %w", ErrMissingSigningKey)
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		return nil, fmt.Errorf("session.validator.new: %w", ErrMissingIssuer)
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Validator{
		signingKey:  configuration.SigningKey,
		issuer:      configuration.Issuer,
		clock:       clock,
		revocations: configuration.Revocations,
	}, nil
}

// ValidateToken validates the provided JWT string and returns the parsed claims.
func (validator *Validator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrMissingToken)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &Claims{}, func(parsed *jwt.Token) (interface{}, error) {
		return validator.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return validator.clock.Now()
	}))
	if parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("session.validator.validate_token: %w", ErrTokenExpired)
		}
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrInvalidToken)
	}
	if parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrInvalidToken)
	}
	claims, ok := parsedToken.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrInvalidToken)
	}
	if claims.Issuer != validator.issuer {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrInvalidIssuer)
	}
	current := validator.clock.Now()
	if claims.ExpiresAt != nil && current.After(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrTokenExpired)
	}
	if claims.NotBefore != nil && current.Before(claims.NotBefore.Time) {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrInvalidToken)
	}
	if validator.revocations != nil && claims.ID != "" && validator.revocations.IsRevoked(ctx, claims.ID) {
		return nil, fmt.Errorf("session.validator.validate_token: %w", ErrTokenRevoked)
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header. The scheme
// is matched case-insensitively.
func BearerToken(request *http.Request) (string, error) {
	if request == nil {
		return "", ErrMissingAuthorization
	}
	header := strings.TrimSpace(request.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingAuthorization
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrUnsupportedScheme
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// ValidateRequest reads the bearer token from the request and validates it.
func (validator *Validator) ValidateRequest(request *http.Request) (*Claims, error) {
	token, extractErr := BearerToken(request)
	if extractErr != nil {
		return nil, fmt.Errorf("session.validator.validate_request: %w", extractErr)
	}
	return validator.ValidateToken(request.Context(), token)
}

// GinMiddleware returns a Gin middleware that validates the bearer token and injects claims.
// Rejections answer 401 with a {"detail": ...} body and a WWW-Authenticate challenge.
func (validator *Validator) GinMiddleware(contextKey string) gin.HandlerFunc {
	if strings.TrimSpace(contextKey) == "" {
		contextKey = DefaultContextKey
	}
	return func(contextGin *gin.Context) {
		claims, err := validator.ValidateRequest(contextGin.Request)
		if err != nil {
			contextGin.Header("WWW-Authenticate", "Bearer")
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": rejectionDetail(err)})
			return
		}
		contextGin.Set(contextKey, claims)
		contextGin.Next()
	}
}

// ClaimsFromContext returns the claims GinMiddleware stored under contextKey.
func ClaimsFromContext(contextGin *gin.Context, contextKey string) (*Claims, bool) {
	if strings.TrimSpace(contextKey) == "" {
		contextKey = DefaultContextKey
	}
	value, found := contextGin.Get(contextKey)
	if !found {
		return nil, false
	}
	claims, ok := value.(*Claims)
	return claims, ok && claims != nil
}

func rejectionDetail(err error) string {
	switch {
	case errors.Is(err, ErrMissingAuthorization), errors.Is(err, ErrMissingToken):
		return "Not authenticated"
	case errors.Is(err, ErrTokenExpired):
		return "Token has expired"
	case errors.Is(err, ErrTokenRevoked):
		return "Token has been revoked"
	default:
		return "Could not validate credentials"
	}
}
