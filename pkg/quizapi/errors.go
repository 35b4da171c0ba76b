package quizapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrMissingBaseURL = errors.New("quizapi.missing_base_url")
	ErrUnauthorized   = errors.New("quizapi.unauthorized")
	ErrNotFound       = errors.New("quizapi.not_found")
	ErrEmptyToken     = errors.New("quizapi.empty_token")
	ErrNoQuestions    = errors.New("quizapi.no_questions")
)

// APIError is a non-2xx backend answer. Detail carries the backend's "detail" message when
// the body has one, otherwise the raw body text.
type APIError struct {
	StatusCode int
	Detail     string
}

func (apiErr *APIError) Error() string {
	if apiErr.Detail == "" {
		return fmt.Sprintf("quizapi: status %d", apiErr.StatusCode)
	}
	return fmt.Sprintf("quizapi: status %d: %s", apiErr.StatusCode, apiErr.Detail)
}

func (apiErr *APIError) Unwrap() error {
	switch apiErr.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

func newAPIError(statusCode int, body []byte) *APIError {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	detail := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Detail) > 0 {
		var message string
		if json.Unmarshal(envelope.Detail, &message) == nil {
			detail = message
		} else {
			detail = string(envelope.Detail)
		}
	}
	return &APIError{StatusCode: statusCode, Detail: detail}
}
