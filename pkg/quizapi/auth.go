package quizapi

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Profile is the signed-in user's record as returned by the backend.
type Profile struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	Location    string    `json:"location,omitempty"`
	Website     string    `json:"website,omitempty"`
	AvatarColor string    `json:"avatar_color,omitempty"`
	IsActive    bool      `json:"is_active"`
	IsVerified  bool      `json:"is_verified"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Registration is the sign-up payload.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Password string `json:"password"`
}

// ProfileUpdate carries the editable profile fields; nil fields are left unchanged.
type ProfileUpdate struct {
	FullName    *string `json:"full_name,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	Location    *string `json:"location,omitempty"`
	Website     *string `json:"website,omitempty"`
	AvatarColor *string `json:"avatar_color,omitempty"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type updateProfileResponse struct {
	Message string  `json:"message"`
	User    Profile `json:"user"`
}

// Register creates an account and returns the new profile.
func (client *Client) Register(ctx context.Context, registration Registration) (Profile, error) {
	var profile Profile
	err := client.do(ctx, http.MethodPost, "/auth/register/", nil, registration, &profile)
	return profile, err
}

// Login exchanges an identifier (username or email) and password for a token triple.
func (client *Client) Login(ctx context.Context, identifier string, password string) (*oauth2.Token, error) {
	var token oauth2.Token
	if err := client.do(ctx, http.MethodPost, "/auth/login", nil, loginRequest{Identifier: identifier, Password: password}, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, ErrEmptyToken
	}
	return &token, nil
}

// Refresh exchanges a refresh token for a new access token. The credential pipeline refreshes
// through authclient.EndpointRefresher; this call is for tooling that manages tokens itself.
func (client *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	var token oauth2.Token
	if err := client.do(ctx, http.MethodPost, "/auth/refresh", nil, refreshRequest{RefreshToken: refreshToken}, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, ErrEmptyToken
	}
	return &token, nil
}

// Profile fetches the signed-in user's profile.
func (client *Client) Profile(ctx context.Context) (Profile, error) {
	var profile Profile
	err := client.do(ctx, http.MethodGet, "/auth/profile", nil, nil, &profile)
	return profile, err
}

// UpdateProfile applies update and returns the stored profile.
func (client *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (Profile, error) {
	var response updateProfileResponse
	err := client.do(ctx, http.MethodPut, "/auth/profile", nil, update, &response)
	return response.User, err
}

// RefreshTokenSource supplies the refresh token current at the moment a request is sent.
type RefreshTokenSource interface {
	RefreshToken(ctx context.Context) string
}

// StaticRefreshToken is a RefreshTokenSource that always answers the same token.
type StaticRefreshToken string

// RefreshToken returns the token itself.
func (token StaticRefreshToken) RefreshToken(context.Context) string {
	return string(token)
}

// Logout revokes the current access token and the refresh token answered by refreshTokens.
// The body is read from refreshTokens on every send, so a logout replayed after a token
// rotation revokes the rotated refresh token.
func (client *Client) Logout(ctx context.Context, refreshTokens RefreshTokenSource) error {
	body := payloadBuilder(func() any {
		if refreshTokens == nil {
			return logoutRequest{}
		}
		return logoutRequest{RefreshToken: refreshTokens.RefreshToken(ctx)}
	})
	return client.do(ctx, http.MethodPost, "/auth/logout", nil, body, nil)
}
