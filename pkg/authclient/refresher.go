package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// Refresher exchanges a refresh token for a new access token. The returned token may
// carry a rotated refresh token.
type Refresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

// RefreshAccessToken calls refresherFunc.
func (refresherFunc RefresherFunc) RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	return refresherFunc(ctx, refreshToken)
}

// EndpointRefresher posts {"refresh_token": ...} to a refresh endpoint and decodes the
// {"access_token", "refresh_token", "token_type"} answer.
type EndpointRefresher struct {
	refreshURL string
	httpClient *http.Client
}

// NewEndpointRefresher constructs an EndpointRefresher. The HTTP client must not route
// through an authenticating Transport; nil selects http.DefaultClient.
func NewEndpointRefresher(refreshURL string, httpClient *http.Client) (*EndpointRefresher, error) {
	if strings.TrimSpace(refreshURL) == "" {
		return nil, fmt.Errorf("authclient.new_endpoint_refresher: %w", ErrMissingRefreshURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &EndpointRefresher{refreshURL: refreshURL, httpClient: httpClient}, nil
}

// RefreshAccessToken performs the refresh call.
func (refresher *EndpointRefresher) RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	payload, encodeErr := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if encodeErr != nil {
		return nil, fmt.Errorf("authclient.refresh.encode: %w", encodeErr)
	}
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, refresher.refreshURL, bytes.NewReader(payload))
	if requestErr != nil {
		return nil, fmt.Errorf("authclient.refresh.request: %w", requestErr)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, sendErr := refresher.httpClient.Do(request)
	if sendErr != nil {
		return nil, fmt.Errorf("authclient.refresh.send: %w", sendErr)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil, fmt.Errorf("authclient.refresh: %w", &RefreshStatusError{StatusCode: response.StatusCode})
	}

	var token oauth2.Token
	if decodeErr := json.NewDecoder(response.Body).Decode(&token); decodeErr != nil {
		return nil, fmt.Errorf("authclient.refresh.decode: %w", decodeErr)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return nil, fmt.Errorf("authclient.refresh: %w", ErrEmptyAccessToken)
	}
	return &token, nil
}
