// Package quizapi wraps the quiz backend's REST endpoints. Authentication is the job of the
// http.Client passed in; build it on authclient.Transport so calls carry the stored credential.
package quizapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const maxErrorBody = 64 << 10

// Client calls the quiz backend rooted at a base URL.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *zap.Logger
}

// New constructs a Client. A nil httpClient selects http.DefaultClient.
func New(baseURL string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("quizapi.new: %w", ErrMissingBaseURL)
	}
	parsed, parseErr := url.Parse(trimmed)
	if parseErr != nil {
		return nil, fmt.Errorf("quizapi.new: %w", parseErr)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("quizapi.new: %w", ErrMissingBaseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: parsed, httpClient: httpClient, logger: logger}, nil
}

// BaseURL returns the backend root.
func (client *Client) BaseURL() string {
	return client.baseURL.String()
}

// Endpoint resolves path against the base URL.
func (client *Client) Endpoint(path string) string {
	return client.baseURL.String() + path
}

func (client *Client) do(ctx context.Context, method string, path string, query url.Values, payload any, out any) error {
	target := client.Endpoint(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		encoded, encodeErr := encodePayload(payload)
		if encodeErr != nil {
			return encodeErr
		}
		body = bytes.NewReader(encoded)
	}

	request, requestErr := http.NewRequestWithContext(ctx, method, target, body)
	if requestErr != nil {
		return fmt.Errorf("quizapi.request: %w", requestErr)
	}
	if build, deferred := payload.(payloadBuilder); deferred {
		// A replayed send encodes the payload again so it reflects state changed in between.
		request.GetBody = func() (io.ReadCloser, error) {
			encoded, encodeErr := encodePayload(build)
			if encodeErr != nil {
				return nil, encodeErr
			}
			return io.NopCloser(bytes.NewReader(encoded)), nil
		}
	}
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, sendErr := client.httpClient.Do(request)
	if sendErr != nil {
		return fmt.Errorf("quizapi.%s %s: %w", strings.ToLower(method), path, sendErr)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
		apiErr := newAPIError(response.StatusCode, raw)
		client.logger.Debug("backend rejected request",
			zap.String("code", "quizapi.status"),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", response.StatusCode))
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	if decodeErr := json.NewDecoder(response.Body).Decode(out); decodeErr != nil && decodeErr != io.EOF {
		return fmt.Errorf("quizapi.decode %s: %w", path, decodeErr)
	}
	return nil
}

// payloadBuilder produces a request payload when the request is sent rather than when
// it is built.
type payloadBuilder func() any

func encodePayload(payload any) ([]byte, error) {
	if build, deferred := payload.(payloadBuilder); deferred {
		payload = build()
	}
	encoded, encodeErr := json.Marshal(payload)
	if encodeErr != nil {
		return nil, fmt.Errorf("quizapi.encode: %w", encodeErr)
	}
	return encoded, nil
}
