package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/quizsession/internal/authkit"
	"github.com/tyemirov/quizsession/pkg/sessionvalidator"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func newTestUsers() *InMemoryUsers {
	users := NewInMemoryUsers()
	users.passwordCost = bcrypt.MinCost
	return users
}

func registerTestUser(t *testing.T, users *InMemoryUsers) authkit.UserRecord {
	t.Helper()
	record, err := users.Register(context.Background(), authkit.Registration{
		Username: "ada",
		Email:    "Ada@Example.com",
		FullName: "Ada Lovelace",
		Password: "Abcd1234!",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return record
}

func withClaims(userID string) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		contextGin.Set(sessionvalidator.DefaultContextKey, &sessionvalidator.Claims{UserID: userID})
		contextGin.Next()
	}
}

func TestConfigureCORS(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	middleware, err := ConfigureCORS(zap.NewNop(), []string{"http://localhost:3000", "http://localhost:3000/"})
	if err != nil {
		t.Fatalf("unexpected error configuring CORS: %v", err)
	}
	router.Use(middleware)
	router.GET("/resource", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodOptions, "/resource", nil)
	request.Header.Set("Origin", "http://localhost:3000")
	request.Header.Set("Access-Control-Request-Method", http.MethodGet)
	request.Header.Set("Access-Control-Request-Headers", "Authorization")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from preflight, got %d", recorder.Code)
	}
	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "http://localhost:3000" {
		t.Fatalf("unexpected allowed origin header: %q", origin)
	}
	if allowed := recorder.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(strings.ToLower(allowed), "authorization") {
		t.Fatalf("expected Authorization to be allowed, got %q", allowed)
	}
}

func TestConfigureCORSValidation(t *testing.T) {
	t.Parallel()
	if _, err := ConfigureCORS(nil, nil); !errors.Is(err, errEmptyAllowedOrigins) {
		t.Fatalf("expected empty origins error, got %v", err)
	}
	if _, err := ConfigureCORS(nil, []string{"  "}); !errors.Is(err, errEmptyAllowedOrigins) {
		t.Fatalf("expected error for whitespace origin, got %v", err)
	}
	for _, origin := range []string{"ftp://example.com", "https://example.com/path", "example.com"} {
		if _, err := ConfigureCORS(nil, []string{origin}); !errors.Is(err, errInvalidOrigin) {
			t.Fatalf("expected invalid origin for %q, got %v", origin, err)
		}
	}
	if _, err := ConfigureCORS(nil, []string{"*", "https://example.com"}); !errors.Is(err, errInvalidOrigin) {
		t.Fatalf("expected wildcard mixed with origins to be rejected, got %v", err)
	}
	if _, err := ConfigureCORS(zaptest.NewLogger(t), []string{"*"}); err != nil {
		t.Fatalf("expected lone wildcard to be accepted, got %v", err)
	}
}

func TestInMemoryUsers(t *testing.T) {
	t.Parallel()
	users := newTestUsers()
	ctx := context.Background()
	record := registerTestUser(t, users)

	if record.ID == "" || record.Email != "ada@example.com" || !record.IsActive || record.AvatarColor == "" {
		t.Fatalf("unexpected record: %#v", record)
	}
	if _, err := users.Register(ctx, authkit.Registration{Username: "ADA", Email: "other@example.com", Password: "Abcd1234!"}); !errors.Is(err, authkit.ErrUserExists) {
		t.Fatalf("expected duplicate username to be rejected, got %v", err)
	}
	if _, err := users.Register(ctx, authkit.Registration{Username: "other", Email: "ada@example.com", Password: "Abcd1234!"}); !errors.Is(err, authkit.ErrUserExists) {
		t.Fatalf("expected duplicate email to be rejected, got %v", err)
	}
	if _, err := users.Register(ctx, authkit.Registration{Username: "bob", Email: "bob@example.com", Password: "short"}); !errors.Is(err, authkit.ErrInvalidRegistration) {
		t.Fatalf("expected short password to be rejected, got %v", err)
	}

	for _, identifier := range []string{"ada", "ADA@example.com"} {
		authenticated, err := users.Authenticate(ctx, identifier, "Abcd1234!")
		if err != nil || authenticated.ID != record.ID {
			t.Fatalf("authenticate %q: %v", identifier, err)
		}
	}
	if _, err := users.Authenticate(ctx, "ada", "wrong-password"); !errors.Is(err, authkit.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := users.Authenticate(ctx, "nobody", "Abcd1234!"); !errors.Is(err, authkit.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}

	bio := " mathematician "
	updated, err := users.UpdateProfile(ctx, record.ID, authkit.ProfileChanges{Bio: &bio})
	if err != nil || updated.Bio != "mathematician" || updated.FullName != "Ada Lovelace" {
		t.Fatalf("unexpected update result: %#v %v", updated, err)
	}
	if _, err := users.GetUser(ctx, "missing"); !errors.Is(err, authkit.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestHandleWhoAmI(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	users := newTestUsers()
	record := registerTestUser(t, users)

	router := gin.New()
	router.GET("/auth/profile", withClaims(record.ID), HandleWhoAmI(zaptest.NewLogger(t), users))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/auth/profile", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["id"] != record.ID || payload["username"] != "ada" || payload["full_name"] != "Ada Lovelace" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if _, present := payload["password"]; present {
		t.Fatalf("password material must not be exposed")
	}
}

func TestHandleWhoAmIMissingClaimsOrUser(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	users := newTestUsers()

	router := gin.New()
	router.GET("/anonymous", HandleWhoAmI(nil, users))
	router.GET("/ghost", withClaims("ghost"), HandleWhoAmI(nil, users))

	for _, path := range []string{"/anonymous", "/ghost"} {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, recorder.Code)
		}
	}
}

func TestHandleUpdateProfile(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	users := newTestUsers()
	record := registerTestUser(t, users)

	router := gin.New()
	router.PUT("/auth/profile", withClaims(record.ID), HandleUpdateProfile(zaptest.NewLogger(t), users))

	request := httptest.NewRequest(http.MethodPut, "/auth/profile", strings.NewReader(`{"location":"London","website":"https://ada.dev"}`))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload struct {
		User authkit.UserRecord `json:"user"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.User.Location != "London" || payload.User.Website != "https://ada.dev" {
		t.Fatalf("unexpected user: %#v", payload.User)
	}
}

func TestUserTokenHandlers(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	users := newTestUsers()
	record := registerTestUser(t, users)

	router := gin.New()
	MountProfileRoutes(router, zaptest.NewLogger(t), users, withClaims(record.ID))

	missing := httptest.NewRecorder()
	router.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/api/user/token", nil))
	if missing.Code != http.StatusNotFound || !strings.Contains(missing.Body.String(), "No stored token for user") {
		t.Fatalf("expected 404 detail, got %d %s", missing.Code, missing.Body.String())
	}

	empty := httptest.NewRecorder()
	emptyRequest := httptest.NewRequest(http.MethodPost, "/api/user/token", strings.NewReader(`{"token":" "}`))
	emptyRequest.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(empty, emptyRequest)
	if empty.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty token, got %d", empty.Code)
	}

	save := httptest.NewRecorder()
	saveRequest := httptest.NewRequest(http.MethodPost, "/api/user/token", strings.NewReader(`{"token":"sk-123"}`))
	saveRequest.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(save, saveRequest)
	if save.Code != http.StatusOK {
		t.Fatalf("expected 200 on save, got %d", save.Code)
	}

	fetched := httptest.NewRecorder()
	router.ServeHTTP(fetched, httptest.NewRequest(http.MethodGet, "/api/user/token", nil))
	if fetched.Code != http.StatusOK || !strings.Contains(fetched.Body.String(), `"token":"sk-123"`) {
		t.Fatalf("expected stored token, got %d %s", fetched.Code, fetched.Body.String())
	}
}

func TestRegisterStampsTimestamps(t *testing.T) {
	t.Parallel()
	users := newTestUsers()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	users.now = func() time.Time { return fixed }
	record := registerTestUser(t, users)
	if !record.CreatedAt.Equal(fixed) || !record.UpdatedAt.Equal(fixed) {
		t.Fatalf("unexpected timestamps: %v %v", record.CreatedAt, record.UpdatedAt)
	}
}
