package session

import "errors"

var (
	ErrMissingTokenStore = errors.New("session.missing_token_store")
	ErrMissingBackend    = errors.New("session.missing_backend")
	ErrProfileFetch      = errors.New("session.profile_fetch")
	ErrNotAuthenticated  = errors.New("session.not_authenticated")
)
