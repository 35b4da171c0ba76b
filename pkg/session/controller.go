// Package session tracks who is signed in. A Controller resolves the user profile from the
// stored credential at startup, performs login and logout transitions, and reacts to the
// token-expired signal raised by the credential pipeline.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/tyemirov/quizsession/pkg/quizapi"
	"github.com/tyemirov/quizsession/pkg/sessionevents"
	"github.com/tyemirov/quizsession/pkg/tokenstore"
	"go.uber.org/zap"
)

// Status is the controller's lifecycle state.
type Status string

const (
	StatusLoading       Status = "loading"
	StatusAuthenticated Status = "authenticated"
	StatusAnonymous     Status = "anonymous"
)

// DefaultHomeDestination is where logout and expiry navigate when none is configured.
const DefaultHomeDestination = "/"

// State is a snapshot of the session.
type State struct {
	Status    Status
	User      *quizapi.Profile
	IsLoading bool
}

// Backend is the subset of the quiz API the controller needs.
type Backend interface {
	Profile(ctx context.Context) (quizapi.Profile, error)
	Logout(ctx context.Context, refreshTokens quizapi.RefreshTokenSource) error
}

// Navigator moves the user to a destination after logout or session expiry.
type Navigator interface {
	Navigate(destination string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(destination string)

// Navigate calls navigatorFunc.
func (navigatorFunc NavigatorFunc) Navigate(destination string) {
	navigatorFunc(destination)
}

// SessionDataCleaner drops session-scoped data that must not outlive the credential.
type SessionDataCleaner interface {
	ClearSessionData(ctx context.Context) error
}

// Listener observes state transitions.
type Listener func(State)

// Config wires a Controller.
type Config struct {
	Tokens    *tokenstore.TokenStore
	Backend   Backend
	Events    *sessionevents.Bus
	Navigator Navigator
	// HomeDestination defaults to DefaultHomeDestination.
	HomeDestination string
	Cleaners        []SessionDataCleaner
	Logger          *zap.Logger
}

// Controller owns the session state machine. It is safe for concurrent use; transitions
// are idempotent and the last one wins.
type Controller struct {
	tokens          *tokenstore.TokenStore
	backend         Backend
	navigator       Navigator
	homeDestination string
	cleaners        []SessionDataCleaner
	logger          *zap.Logger

	initializeOnce sync.Once
	unsubscribe    func()

	mutex     sync.RWMutex
	state     State
	listeners map[int]Listener
	nextID    int
}

// New constructs a Controller in the loading state and subscribes it to token-expired.
func New(configuration Config) (*Controller, error) {
	if configuration.Tokens == nil {
		return nil, fmt.Errorf("session.new: %w", ErrMissingTokenStore)
	}
	if configuration.Backend == nil {
		return nil, fmt.Errorf("session.new: %w", ErrMissingBackend)
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	homeDestination := configuration.HomeDestination
	if homeDestination == "" {
		homeDestination = DefaultHomeDestination
	}
	controller := &Controller{
		tokens:          configuration.Tokens,
		backend:         configuration.Backend,
		navigator:       configuration.Navigator,
		homeDestination: homeDestination,
		cleaners:        configuration.Cleaners,
		logger:          logger,
		state:           State{Status: StatusLoading, IsLoading: true},
		listeners:       make(map[int]Listener),
		unsubscribe:     func() {},
	}
	if configuration.Events != nil {
		controller.unsubscribe = configuration.Events.Subscribe(sessionevents.EventTokenExpired, controller.handleTokenExpired)
	}
	return controller, nil
}

// Initialize resolves the startup state once. With a stored credential the profile is
// fetched; a failed fetch clears the credential. Later calls return immediately.
func (controller *Controller) Initialize(ctx context.Context) {
	controller.initializeOnce.Do(func() {
		if !controller.tokens.HasTokens(ctx) {
			controller.transition(State{Status: StatusAnonymous})
			return
		}
		if err := controller.loadProfile(ctx); err != nil {
			controller.logger.Info("stored credential rejected at startup",
				zap.String("code", "session.initialize.profile_failed"),
				zap.Error(err))
			controller.clearCredential(ctx)
			controller.transition(State{Status: StatusAnonymous})
		}
	})
}

// Login stores the credential and fetches the profile. The previous user is dropped as soon
// as the new credential is stored. A failed fetch is returned, leaves the session anonymous
// and keeps the new credential stored so RefreshUser can retry.
func (controller *Controller) Login(ctx context.Context, accessToken string, refreshToken string, tokenType string) error {
	if err := controller.tokens.SetTokens(ctx, accessToken, refreshToken, tokenType); err != nil {
		controller.logger.Warn("credential write failed during login",
			zap.String("code", "session.login.store_failed"),
			zap.Error(err))
	}
	controller.transition(State{Status: StatusLoading})
	if err := controller.loadProfile(ctx); err != nil {
		controller.transition(State{Status: StatusAnonymous})
		return err
	}
	controller.logger.Info("signed in",
		zap.String("code", "session.login"),
		zap.String("user_id", controller.State().userID()))
	return nil
}

// Logout asks the backend to revoke the credential, then clears local session data,
// enters anonymous and navigates home. Backend failures are logged, never returned.
func (controller *Controller) Logout(ctx context.Context) {
	if controller.tokens.AccessToken(ctx) != "" {
		if err := controller.backend.Logout(ctx, controller.tokens); err != nil {
			controller.logger.Warn("backend logout failed",
				zap.String("code", "session.logout_failed"),
				zap.Error(err))
		}
	}
	controller.endSession(ctx, "session.logout")
}

// RefreshUser re-fetches the profile without touching the credential. A failed fetch clears
// the credential and enters anonymous.
func (controller *Controller) RefreshUser(ctx context.Context) error {
	if !controller.tokens.HasTokens(ctx) {
		controller.transition(State{Status: StatusAnonymous})
		return ErrNotAuthenticated
	}
	if err := controller.loadProfile(ctx); err != nil {
		controller.clearCredential(ctx)
		controller.transition(State{Status: StatusAnonymous})
		return err
	}
	return nil
}

// State returns a snapshot of the current state.
func (controller *Controller) State() State {
	controller.mutex.RLock()
	defer controller.mutex.RUnlock()
	return controller.state.copy()
}

// IsAuthenticated reports whether a user is present and the credential is still stored.
func (controller *Controller) IsAuthenticated(ctx context.Context) bool {
	current := controller.State()
	return current.Status == StatusAuthenticated && current.User != nil && controller.tokens.HasTokens(ctx)
}

// Subscribe registers listener for state transitions and returns its unsubscribe function.
func (controller *Controller) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	controller.mutex.Lock()
	listenerID := controller.nextID
	controller.nextID++
	controller.listeners[listenerID] = listener
	controller.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			controller.mutex.Lock()
			delete(controller.listeners, listenerID)
			controller.mutex.Unlock()
		})
	}
}

// Close detaches the controller from the event bus.
func (controller *Controller) Close() {
	controller.unsubscribe()
}

func (controller *Controller) handleTokenExpired() {
	controller.endSession(context.Background(), "session.token_expired")
}

func (controller *Controller) endSession(ctx context.Context, code string) {
	controller.clearCredential(ctx)
	for _, cleaner := range controller.cleaners {
		if err := cleaner.ClearSessionData(ctx); err != nil {
			controller.logger.Warn("session data cleanup failed",
				zap.String("code", "session.cleanup_failed"),
				zap.Error(err))
		}
	}
	controller.transition(State{Status: StatusAnonymous})
	controller.logger.Info("session ended", zap.String("code", code))
	if controller.navigator != nil {
		controller.navigator.Navigate(controller.homeDestination)
	}
}

func (controller *Controller) loadProfile(ctx context.Context) error {
	profile, err := controller.backend.Profile(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProfileFetch, err)
	}
	if !controller.tokens.HasTokens(ctx) {
		// The credential was cleared while the profile was in flight.
		controller.transition(State{Status: StatusAnonymous})
		return fmt.Errorf("%w: %w", ErrProfileFetch, ErrNotAuthenticated)
	}
	controller.transition(State{Status: StatusAuthenticated, User: &profile})
	return nil
}

func (controller *Controller) clearCredential(ctx context.Context) {
	if err := controller.tokens.ClearTokens(ctx); err != nil {
		controller.logger.Warn("credential clear failed",
			zap.String("code", "session.clear_failed"),
			zap.Error(err))
	}
}

func (controller *Controller) transition(next State) {
	next.IsLoading = next.Status == StatusLoading
	controller.mutex.Lock()
	controller.state = next
	listeners := make([]Listener, 0, len(controller.listeners))
	for listenerID := 0; listenerID < controller.nextID; listenerID++ {
		if listener, ok := controller.listeners[listenerID]; ok {
			listeners = append(listeners, listener)
		}
	}
	controller.mutex.Unlock()

	snapshot := next.copy()
	for _, listener := range listeners {
		listener(snapshot)
	}
}

func (state State) copy() State {
	if state.User != nil {
		user := *state.User
		state.User = &user
	}
	return state
}

func (state State) userID() string {
	if state.User == nil {
		return ""
	}
	return state.User.ID
}

var _ SessionDataCleaner = (*quizapi.UserTokenCache)(nil)
var _ Backend = (*quizapi.Client)(nil)
