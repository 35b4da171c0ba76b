// Package authclient attaches bearer credentials to outgoing requests and recovers from
// access-token expiry with a single refresh-and-retry.
package authclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tyemirov/quizsession/pkg/sessionevents"
	"github.com/tyemirov/quizsession/pkg/tokenstore"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Metric event names recorded by the Transport.
const (
	MetricRefreshSuccess = "client.refresh.success"
	MetricRefreshFailure = "client.refresh.failure"
	MetricRetry          = "client.retry"
)

// DefaultRefreshTimeout bounds a refresh call when Config.RefreshTimeout is zero.
const DefaultRefreshTimeout = 30 * time.Second

// MetricsRecorder increments counters for client events.
type MetricsRecorder interface {
	Increment(event string)
}

type noopMetrics struct{}

func (noopMetrics) Increment(string) {}

// Config wires a Transport.
type Config struct {
	Tokens    *tokenstore.TokenStore
	Refresher Refresher
	// Events receives EventTokenExpired when a refresh fails. Optional.
	Events *sessionevents.Bus
	// Base sends the requests; nil selects http.DefaultTransport.
	Base    http.RoundTripper
	Logger  *zap.Logger
	Metrics MetricsRecorder
	// RefreshTimeout bounds the shared refresh call. It runs detached from the request that
	// started it, so a caller giving up neither cancels it nor ends the session.
	RefreshTimeout time.Duration
}

// Transport is an http.RoundTripper that authenticates requests from a TokenStore. A
// request answered with 401 triggers one refresh and one replay; the replayed response is
// final. Concurrent 401s sharing a refresh token share one refresh call.
type Transport struct {
	tokens         *tokenstore.TokenStore
	refresher      Refresher
	events         *sessionevents.Bus
	base           http.RoundTripper
	logger         *zap.Logger
	metrics        MetricsRecorder
	refreshTimeout time.Duration
	refreshes      singleflight.Group
}

// NewTransport validates configuration and constructs a Transport.
func NewTransport(configuration Config) (*Transport, error) {
	if configuration.Tokens == nil {
		return nil, fmt.Errorf("authclient.new_transport: %w", ErrMissingTokenStore)
	}
	if configuration.Refresher == nil {
		return nil, fmt.Errorf("authclient.new_transport: %w", ErrMissingRefresher)
	}
	base := configuration.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var metrics MetricsRecorder = noopMetrics{}
	if configuration.Metrics != nil {
		metrics = configuration.Metrics
	}
	refreshTimeout := configuration.RefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = DefaultRefreshTimeout
	}
	return &Transport{
		tokens:         configuration.Tokens,
		refresher:      configuration.Refresher,
		events:         configuration.Events,
		base:           base,
		logger:         logger,
		metrics:        metrics,
		refreshTimeout: refreshTimeout,
	}, nil
}

// NewHTTPClient returns an http.Client that sends through transport.
func NewHTTPClient(transport http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{Transport: transport, Timeout: timeout}
}

// RoundTrip sends request with the stored credential.
func (transport *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	ctx := request.Context()
	replayable, bufferErr := replayableRequest(request)
	if bufferErr != nil {
		return nil, bufferErr
	}

	credential := transport.tokens.Credential(ctx)
	response, sendErr := transport.send(replayable, credential.AccessToken, credential.TokenType, false)
	if sendErr != nil {
		return nil, sendErr
	}
	if response.StatusCode != http.StatusUnauthorized {
		return response, nil
	}

	current := transport.tokens.Credential(ctx)
	if current.RefreshToken == "" {
		return response, nil
	}
	discardBody(response)

	if current.AccessToken != "" && current.AccessToken != credential.AccessToken {
		// Another request refreshed while this one was in flight.
		transport.metrics.Increment(MetricRetry)
		return transport.send(replayable, current.AccessToken, current.TokenType, true)
	}

	refreshed, refreshErr := transport.refresh(ctx, current.RefreshToken)
	if refreshErr != nil {
		return nil, refreshErr
	}

	tokenType := refreshed.TokenType
	if tokenType == "" {
		tokenType = credential.TokenType
	}
	transport.metrics.Increment(MetricRetry)
	return transport.send(replayable, refreshed.AccessToken, tokenType, true)
}

func (transport *Transport) send(request *http.Request, accessToken string, tokenType string, replay bool) (*http.Response, error) {
	outbound := request.Clone(request.Context())
	if replay && request.GetBody != nil {
		body, bodyErr := request.GetBody()
		if bodyErr != nil {
			return nil, fmt.Errorf("authclient.send.body: %w", bodyErr)
		}
		// GetBody may build the payload anew, so its length can differ from the first send.
		payload, readErr := io.ReadAll(body)
		_ = body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("authclient.send.body: %w", readErr)
		}
		outbound.Body = io.NopCloser(bytes.NewReader(payload))
		outbound.ContentLength = int64(len(payload))
	}
	if accessToken != "" {
		outbound.Header.Set("Authorization", authorizationScheme(tokenType)+" "+accessToken)
	}
	return transport.base.RoundTrip(outbound)
}

// refresh shares one refresh call among every request holding refreshToken. The call runs
// on a context detached from ctx; a caller whose ctx ends stops waiting and gets ctx.Err()
// while the refresh completes for the others.
func (transport *Transport) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	flight := transport.refreshes.DoChan(refreshToken, func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), transport.refreshTimeout)
		defer cancel()

		token, refreshErr := transport.refresher.RefreshAccessToken(refreshCtx, refreshToken)
		if refreshErr == nil && (token == nil || token.AccessToken == "") {
			refreshErr = ErrEmptyAccessToken
		}
		if refreshErr != nil {
			transport.expireSession(refreshCtx, refreshErr)
			return nil, &SessionExpiredError{Cause: refreshErr}
		}
		transport.storeRefreshed(refreshCtx, refreshToken, token)
		transport.metrics.Increment(MetricRefreshSuccess)
		return token, nil
	})
	select {
	case result := <-flight:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*oauth2.Token), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (transport *Transport) storeRefreshed(ctx context.Context, previousRefreshToken string, token *oauth2.Token) {
	var storeErr error
	if token.RefreshToken != "" && token.RefreshToken != previousRefreshToken {
		tokenType := token.TokenType
		if tokenType == "" {
			tokenType = transport.tokens.TokenType(ctx)
		}
		storeErr = transport.tokens.SetTokens(ctx, token.AccessToken, token.RefreshToken, tokenType)
	} else {
		storeErr = transport.tokens.UpdateAccessToken(ctx, token.AccessToken)
	}
	if storeErr != nil {
		transport.logger.Warn("refreshed credential not persisted",
			zap.String("code", "authclient.refresh.store_failed"),
			zap.Error(storeErr))
	}
}

func (transport *Transport) expireSession(ctx context.Context, cause error) {
	transport.metrics.Increment(MetricRefreshFailure)
	transport.logger.Warn("token refresh failed; clearing session",
		zap.String("code", "authclient.refresh.failed"),
		zap.Error(cause))
	if clearErr := transport.tokens.ClearTokens(ctx); clearErr != nil {
		transport.logger.Warn("credential clear failed",
			zap.String("code", "authclient.refresh.clear_failed"),
			zap.Error(clearErr))
	}
	if transport.events != nil {
		transport.events.Publish(sessionevents.EventTokenExpired)
	}
}

// replayableRequest guarantees GetBody is set so the request can be sent twice.
func replayableRequest(request *http.Request) (*http.Request, error) {
	if request.Body == nil || request.Body == http.NoBody || request.GetBody != nil {
		return request, nil
	}
	payload, readErr := io.ReadAll(request.Body)
	_ = request.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("authclient.buffer_body: %w", readErr)
	}
	buffered := request.Clone(request.Context())
	buffered.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}
	buffered.Body, _ = buffered.GetBody()
	buffered.ContentLength = int64(len(payload))
	return buffered, nil
}

func authorizationScheme(tokenType string) string {
	return (&oauth2.Token{TokenType: tokenType}).Type()
}

func discardBody(response *http.Response) {
	if response == nil || response.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 64<<10))
	_ = response.Body.Close()
}
