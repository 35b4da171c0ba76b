package web

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tyemirov/quizsession/internal/authkit"
	"golang.org/x/crypto/bcrypt"
)

const minimumPasswordLength = 8

var avatarColors = []string{"#6366F1", "#EC4899", "#14B8A6", "#F59E0B", "#8B5CF6", "#10B981"}

// InMemoryUsers is a user store used for local runs and tests.
type InMemoryUsers struct {
	mutex        sync.RWMutex
	users        map[string]*storedUser
	byUsername   map[string]string
	byEmail      map[string]string
	now          func() time.Time
	passwordCost int
}

type storedUser struct {
	record       authkit.UserRecord
	passwordHash []byte
	apiToken     string
}

// NewInMemoryUsers constructs an empty store.
func NewInMemoryUsers() *InMemoryUsers {
	return &InMemoryUsers{
		users:        make(map[string]*storedUser),
		byUsername:   make(map[string]string),
		byEmail:      make(map[string]string),
		now:          time.Now,
		passwordCost: bcrypt.DefaultCost,
	}
}

// Register creates an account with a bcrypt password hash.
func (store *InMemoryUsers) Register(ctx context.Context, registration authkit.Registration) (authkit.UserRecord, error) {
	username := strings.TrimSpace(registration.Username)
	email := strings.ToLower(strings.TrimSpace(registration.Email))
	if username == "" {
		return authkit.UserRecord{}, fmt.Errorf("%w: username is required", authkit.ErrInvalidRegistration)
	}
	if _, parseErr := mail.ParseAddress(email); parseErr != nil {
		return authkit.UserRecord{}, fmt.Errorf("%w: email is invalid", authkit.ErrInvalidRegistration)
	}
	if len(registration.Password) < minimumPasswordLength {
		return authkit.UserRecord{}, fmt.Errorf("%w: password must be at least %d characters", authkit.ErrInvalidRegistration, minimumPasswordLength)
	}
	passwordHash, hashErr := bcrypt.GenerateFromPassword([]byte(registration.Password), store.passwordCost)
	if hashErr != nil {
		return authkit.UserRecord{}, fmt.Errorf("users.hash_password: %w", hashErr)
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()

	if _, exists := store.byUsername[strings.ToLower(username)]; exists {
		return authkit.UserRecord{}, authkit.ErrUserExists
	}
	if _, exists := store.byEmail[email]; exists {
		return authkit.UserRecord{}, authkit.ErrUserExists
	}
	now := store.now().UTC()
	record := authkit.UserRecord{
		ID:          uuid.NewString(),
		Username:    username,
		Email:       email,
		FullName:    strings.TrimSpace(registration.FullName),
		AvatarColor: avatarColors[len(store.users)%len(avatarColors)],
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	store.users[record.ID] = &storedUser{record: record, passwordHash: passwordHash}
	store.byUsername[strings.ToLower(username)] = record.ID
	store.byEmail[email] = record.ID
	return record, nil
}

// Authenticate matches identifier against usernames, then emails, and checks the password.
func (store *InMemoryUsers) Authenticate(ctx context.Context, identifier string, password string) (authkit.UserRecord, error) {
	store.mutex.RLock()
	normalized := strings.ToLower(strings.TrimSpace(identifier))
	userID, found := store.byUsername[normalized]
	if !found {
		userID, found = store.byEmail[normalized]
	}
	var user *storedUser
	if found {
		user = store.users[userID]
	}
	store.mutex.RUnlock()

	if user == nil {
		return authkit.UserRecord{}, authkit.ErrInvalidCredentials
	}
	if compareErr := bcrypt.CompareHashAndPassword(user.passwordHash, []byte(password)); compareErr != nil {
		return authkit.UserRecord{}, authkit.ErrInvalidCredentials
	}
	return user.record, nil
}

// GetUser returns a user by application user id.
func (store *InMemoryUsers) GetUser(ctx context.Context, applicationUserID string) (authkit.UserRecord, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	user, ok := store.users[applicationUserID]
	if !ok {
		return authkit.UserRecord{}, authkit.ErrUserNotFound
	}
	return user.record, nil
}

// UpdateProfile applies the non-nil fields of changes.
func (store *InMemoryUsers) UpdateProfile(ctx context.Context, applicationUserID string, changes authkit.ProfileChanges) (authkit.UserRecord, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	user, ok := store.users[applicationUserID]
	if !ok {
		return authkit.UserRecord{}, authkit.ErrUserNotFound
	}
	applyChange(&user.record.FullName, changes.FullName)
	applyChange(&user.record.Bio, changes.Bio)
	applyChange(&user.record.Location, changes.Location)
	applyChange(&user.record.Website, changes.Website)
	applyChange(&user.record.AvatarColor, changes.AvatarColor)
	user.record.UpdatedAt = store.now().UTC()
	return user.record, nil
}

// SaveAPIToken stores the user's third-party API token.
func (store *InMemoryUsers) SaveAPIToken(ctx context.Context, applicationUserID string, token string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	user, ok := store.users[applicationUserID]
	if !ok {
		return authkit.ErrUserNotFound
	}
	user.apiToken = token
	return nil
}

// APIToken returns the user's stored API token.
func (store *InMemoryUsers) APIToken(ctx context.Context, applicationUserID string) (string, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	user, ok := store.users[applicationUserID]
	if !ok {
		return "", authkit.ErrUserNotFound
	}
	if user.apiToken == "" {
		return "", authkit.ErrAPITokenNotFound
	}
	return user.apiToken, nil
}

func applyChange(target *string, value *string) {
	if value != nil {
		*target = strings.TrimSpace(*value)
	}
}
