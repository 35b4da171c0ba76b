package authclient

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionExpired is returned when a refresh attempt fails and the credential is cleared.
	ErrSessionExpired = errors.New("authclient.session_expired")
	// ErrRefreshRejected indicates the refresh endpoint answered with a non-success status.
	ErrRefreshRejected = errors.New("authclient.refresh_rejected")
	// ErrEmptyAccessToken indicates the refresh endpoint answered without an access token.
	ErrEmptyAccessToken = errors.New("authclient.empty_access_token")
	// ErrMissingTokenStore indicates a Transport was configured without a token store.
	ErrMissingTokenStore = errors.New("authclient.missing_token_store")
	// ErrMissingRefresher indicates a Transport was configured without a refresher.
	ErrMissingRefresher = errors.New("authclient.missing_refresher")
	// ErrMissingRefreshURL indicates an EndpointRefresher was configured without a URL.
	ErrMissingRefreshURL = errors.New("authclient.missing_refresh_url")
)

// SessionExpiredError reports a terminal authentication failure. It matches both
// ErrSessionExpired and the underlying refresh failure under errors.Is.
type SessionExpiredError struct {
	Cause error
}

func (sessionErr *SessionExpiredError) Error() string {
	if sessionErr.Cause == nil {
		return ErrSessionExpired.Error()
	}
	return fmt.Sprintf("%s: %v", ErrSessionExpired.Error(), sessionErr.Cause)
}

func (sessionErr *SessionExpiredError) Unwrap() []error {
	if sessionErr.Cause == nil {
		return []error{ErrSessionExpired}
	}
	return []error{ErrSessionExpired, sessionErr.Cause}
}

// RefreshStatusError carries the status code returned by a rejecting refresh endpoint.
type RefreshStatusError struct {
	StatusCode int
}

func (statusErr *RefreshStatusError) Error() string {
	return fmt.Sprintf("%s: status %d", ErrRefreshRejected.Error(), statusErr.StatusCode)
}

func (statusErr *RefreshStatusError) Unwrap() error {
	return ErrRefreshRejected
}
