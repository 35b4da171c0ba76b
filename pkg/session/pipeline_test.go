package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tyemirov/quizsession/pkg/authclient"
	"github.com/tyemirov/quizsession/pkg/quizapi"
	"github.com/tyemirov/quizsession/pkg/sessionevents"
	"github.com/tyemirov/quizsession/pkg/tokenstore"
	"go.uber.org/zap/zaptest"
)

func TestRefreshFailureEndsSessionThroughPipeline(t *testing.T) {
	t.Parallel()
	var refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/profile", func(writer http.ResponseWriter, request *http.Request) {
		if request.Header.Get("Authorization") == "Bearer good" {
			_, _ = writer.Write([]byte(`{"id":"u1","username":"ada"}`))
			return
		}
		writer.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/auth/refresh", func(writer http.ResponseWriter, request *http.Request) {
		refreshCalls.Add(1)
		writer.WriteHeader(http.StatusUnauthorized)
		_, _ = writer.Write([]byte(`{"detail":"Refresh token expired"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	logger := zaptest.NewLogger(t)
	tokens := tokenstore.New(tokenstore.Options{Session: tokenstore.NewMemoryStorage(), Logger: logger})
	bus := sessionevents.NewBus()
	refresher, err := authclient.NewEndpointRefresher(server.URL+"/auth/refresh", server.Client())
	if err != nil {
		t.Fatalf("refresher: %v", err)
	}
	transport, err := authclient.NewTransport(authclient.Config{Tokens: tokens, Refresher: refresher, Events: bus, Logger: logger})
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	api, err := quizapi.New(server.URL, authclient.NewHTTPClient(transport, 5*time.Second), logger)
	if err != nil {
		t.Fatalf("api: %v", err)
	}
	navigator := &recordingNavigator{}
	controller, err := New(Config{Tokens: tokens, Backend: api, Events: bus, Navigator: navigator, Logger: logger})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	defer controller.Close()

	ctx := context.Background()
	if loginErr := controller.Login(ctx, "good", "refresh", "bearer"); loginErr != nil {
		t.Fatalf("login: %v", loginErr)
	}
	if !controller.IsAuthenticated(ctx) {
		t.Fatalf("expected authenticated")
	}

	if updateErr := tokens.UpdateAccessToken(ctx, "stale"); updateErr != nil {
		t.Fatalf("update: %v", updateErr)
	}
	refreshErr := controller.RefreshUser(ctx)
	if !errors.Is(refreshErr, authclient.ErrSessionExpired) {
		t.Fatalf("expected session expired, got %v", refreshErr)
	}
	if refreshCalls.Load() != 1 {
		t.Fatalf("expected one refresh call, got %d", refreshCalls.Load())
	}
	if tokens.HasTokens(ctx) || controller.IsAuthenticated(ctx) {
		t.Fatalf("expected session cleared")
	}
	if len(navigator.destinations) != 1 || navigator.destinations[0] != "/" {
		t.Fatalf("expected one navigation home, got %v", navigator.destinations)
	}
}

func TestLogoutAfterRotationRevokesRotatedRefreshToken(t *testing.T) {
	t.Parallel()
	var refreshCalls atomic.Int32
	var mutex sync.Mutex
	var revokedRefreshTokens []string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/profile", func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte(`{"id":"u1","username":"ada"}`))
	})
	mux.HandleFunc("/auth/refresh", func(writer http.ResponseWriter, request *http.Request) {
		refreshCalls.Add(1)
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(request.Body).Decode(&body)
		if body.RefreshToken != "r1" {
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = writer.Write([]byte(`{"access_token":"fresh","refresh_token":"r2","token_type":"bearer"}`))
	})
	mux.HandleFunc("/auth/logout", func(writer http.ResponseWriter, request *http.Request) {
		if request.Header.Get("Authorization") != "Bearer fresh" {
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		mutex.Lock()
		revokedRefreshTokens = append(revokedRefreshTokens, body.RefreshToken)
		mutex.Unlock()
		writer.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	logger := zaptest.NewLogger(t)
	tokens := tokenstore.New(tokenstore.Options{Session: tokenstore.NewMemoryStorage(), Logger: logger})
	bus := sessionevents.NewBus()
	refresher, err := authclient.NewEndpointRefresher(server.URL+"/auth/refresh", server.Client())
	if err != nil {
		t.Fatalf("refresher: %v", err)
	}
	transport, err := authclient.NewTransport(authclient.Config{Tokens: tokens, Refresher: refresher, Events: bus, Logger: logger})
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	api, err := quizapi.New(server.URL, authclient.NewHTTPClient(transport, 5*time.Second), logger)
	if err != nil {
		t.Fatalf("api: %v", err)
	}
	controller, err := New(Config{Tokens: tokens, Backend: api, Events: bus, Navigator: &recordingNavigator{}, Logger: logger})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	defer controller.Close()

	ctx := context.Background()
	if loginErr := controller.Login(ctx, "good", "r1", "bearer"); loginErr != nil {
		t.Fatalf("login: %v", loginErr)
	}
	if updateErr := tokens.UpdateAccessToken(ctx, "stale"); updateErr != nil {
		t.Fatalf("update: %v", updateErr)
	}

	controller.Logout(ctx)

	if refreshCalls.Load() != 1 {
		t.Fatalf("expected one refresh call, got %d", refreshCalls.Load())
	}
	mutex.Lock()
	defer mutex.Unlock()
	if len(revokedRefreshTokens) != 1 || revokedRefreshTokens[0] != "r2" {
		t.Fatalf("expected logout to revoke the rotated refresh token, got %v", revokedRefreshTokens)
	}
	if tokens.HasTokens(ctx) || controller.IsAuthenticated(ctx) {
		t.Fatalf("expected session cleared")
	}
}
