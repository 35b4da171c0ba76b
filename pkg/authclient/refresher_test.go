package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"
)

func TestEndpointRefresherRequiresURL(t *testing.T) {
	t.Parallel()
	if _, err := NewEndpointRefresher(" ", nil); !errors.Is(err, ErrMissingRefreshURL) {
		t.Fatalf("expected ErrMissingRefreshURL, got %v", err)
	}
}

func TestEndpointRefresherSuccess(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", request.Method)
		}
		var inbound map[string]string
		if err := json.NewDecoder(request.Body).Decode(&inbound); err != nil || inbound["refresh_token"] != "refresh-1" {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(`{"access_token":"new","refresh_token":"refresh-2","token_type":"bearer"}`))
	}))
	defer server.Close()

	refresher, err := NewEndpointRefresher(server.URL+"/auth/refresh", server.Client())
	if err != nil {
		t.Fatalf("new refresher: %v", err)
	}
	token, err := refresher.RefreshAccessToken(context.Background(), "refresh-1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if token.AccessToken != "new" || token.RefreshToken != "refresh-2" || token.Type() != "Bearer" {
		t.Fatalf("unexpected token: %#v", token)
	}
}

func TestEndpointRefresherRejected(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	refresher, err := NewEndpointRefresher(server.URL, server.Client())
	if err != nil {
		t.Fatalf("new refresher: %v", err)
	}
	_, refreshErr := refresher.RefreshAccessToken(context.Background(), "refresh")
	if !errors.Is(refreshErr, ErrRefreshRejected) {
		t.Fatalf("expected ErrRefreshRejected, got %v", refreshErr)
	}
	var statusErr *RefreshStatusError
	if !errors.As(refreshErr, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected status error with 401, got %v", refreshErr)
	}
}

func TestEndpointRefresherRequiresAccessToken(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(`{"token_type":"bearer"}`))
	}))
	defer server.Close()

	refresher, err := NewEndpointRefresher(server.URL, server.Client())
	if err != nil {
		t.Fatalf("new refresher: %v", err)
	}
	if _, refreshErr := refresher.RefreshAccessToken(context.Background(), "refresh"); !errors.Is(refreshErr, ErrEmptyAccessToken) {
		t.Fatalf("expected ErrEmptyAccessToken, got %v", refreshErr)
	}
}

func TestRefresherFunc(t *testing.T) {
	t.Parallel()
	called := false
	var refresher Refresher = RefresherFunc(func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
		called = true
		return nil, nil
	})
	_, _ = refresher.RefreshAccessToken(context.Background(), "refresh")
	if !called {
		t.Fatalf("expected function to be invoked")
	}
}
