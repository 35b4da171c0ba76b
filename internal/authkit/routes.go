package authkit

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/quizsession/pkg/sessionvalidator"
	"go.uber.org/zap"
)

// TokenTypeBearer is the token_type returned with every token pair.
const TokenTypeBearer = "bearer"

// RouteDependencies wires MountAuthRoutes.
type RouteDependencies struct {
	Config        ServerConfig
	Users         UserStore
	RefreshTokens RefreshTokenStore
	Denylist      AccessTokenDenylist
	Validator     *sessionvalidator.Validator
	Clock         sessionvalidator.Clock
	Logger        *zap.Logger
	Metrics       MetricsRecorder
}

type authHandlers struct {
	configuration ServerConfig
	users         UserStore
	refreshTokens RefreshTokenStore
	denylist      AccessTokenDenylist
	clock         sessionvalidator.Clock
	logger        *zap.Logger
	metrics       MetricsRecorder
}

// MountAuthRoutes registers /auth/register/, /auth/login, /auth/refresh, and /auth/logout.
func MountAuthRoutes(router gin.IRouter, dependencies RouteDependencies) {
	if dependencies.Users == nil || dependencies.RefreshTokens == nil || dependencies.Validator == nil {
		panic("users, refresh token store, and validator are required")
	}
	handlers := &authHandlers{
		configuration: dependencies.Config,
		users:         dependencies.Users,
		refreshTokens: dependencies.RefreshTokens,
		denylist:      dependencies.Denylist,
		clock:         dependencies.Clock,
		logger:        dependencies.Logger,
		metrics:       dependencies.Metrics,
	}
	if handlers.clock == nil {
		handlers.clock = sessionvalidator.NewSystemClock()
	}
	if handlers.logger == nil {
		handlers.logger = zap.NewNop()
	}
	if handlers.metrics == nil {
		handlers.metrics = noopMetrics{}
	}

	router.POST("/auth/register/", handlers.register)
	router.POST("/auth/login", handlers.login)
	router.POST("/auth/refresh", handlers.refresh)
	router.POST("/auth/logout", RequireBearer(dependencies.Validator), handlers.logout)
}

func (handlers *authHandlers) register(contextGin *gin.Context) {
	var inbound Registration
	if err := contextGin.ShouldBindJSON(&inbound); err != nil {
		abortWithDetail(contextGin, http.StatusUnprocessableEntity, "Invalid registration payload")
		return
	}
	user, registerErr := handlers.users.Register(contextGin, inbound)
	switch {
	case errors.Is(registerErr, ErrUserExists):
		abortWithDetail(contextGin, http.StatusBadRequest, "Username or email already registered")
		return
	case errors.Is(registerErr, ErrInvalidRegistration):
		abortWithDetail(contextGin, http.StatusUnprocessableEntity, registerErr.Error())
		return
	case registerErr != nil:
		handlers.logger.Error("registration failed",
			zap.String("code", "auth.register.error"),
			zap.Error(registerErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	handlers.metrics.Increment(MetricRegisterSuccess)
	contextGin.JSON(http.StatusOK, user)
}

func (handlers *authHandlers) login(contextGin *gin.Context) {
	var inbound struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Identifier) == "" || inbound.Password == "" {
		abortWithDetail(contextGin, http.StatusUnprocessableEntity, "identifier and password are required")
		return
	}
	user, authErr := handlers.users.Authenticate(contextGin, inbound.Identifier, inbound.Password)
	if authErr != nil {
		handlers.metrics.Increment(MetricLoginFailure)
		if errors.Is(authErr, ErrInvalidCredentials) || errors.Is(authErr, ErrUserNotFound) {
			abortWithDetail(contextGin, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		handlers.logger.Error("login failed",
			zap.String("code", "auth.login.error"),
			zap.Error(authErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if !user.IsActive {
		handlers.metrics.Increment(MetricLoginFailure)
		abortWithDetail(contextGin, http.StatusForbidden, "Account is inactive")
		return
	}

	payload, issueErr := handlers.issueTokenPair(contextGin, user, "")
	if issueErr != nil {
		handlers.logger.Error("token issue failed",
			zap.String("code", "auth.login.issue_failed"),
			zap.Error(issueErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	handlers.metrics.Increment(MetricLoginSuccess)
	handlers.logger.Info("user signed in",
		zap.String("code", "auth.login.success"),
		zap.String("user_id", user.ID))
	contextGin.JSON(http.StatusOK, payload)
}

func (handlers *authHandlers) refresh(contextGin *gin.Context) {
	var inbound struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.RefreshToken) == "" {
		handlers.metrics.Increment(MetricRefreshFailure)
		abortWithDetail(contextGin, http.StatusUnauthorized, "Refresh token required")
		return
	}

	applicationUserID, currentTokenID, _, validateErr := handlers.refreshTokens.Validate(contextGin, inbound.RefreshToken)
	if validateErr != nil {
		handlers.metrics.Increment(MetricRefreshFailure)
		handlers.logger.Info("refresh token rejected",
			zap.String("code", "auth.refresh.rejected"),
			zap.Error(validateErr))
		if errors.Is(validateErr, ErrRefreshTokenRevoked) && currentTokenID != "" {
			handlers.revokeReplayedChain(contextGin, applicationUserID, currentTokenID)
		}
		abortWithDetail(contextGin, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	user, userErr := handlers.users.GetUser(contextGin, applicationUserID)
	if userErr != nil || !user.IsActive {
		handlers.metrics.Increment(MetricRefreshFailure)
		abortWithDetail(contextGin, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	payload, issueErr := handlers.issueTokenPair(contextGin, user, currentTokenID)
	if issueErr != nil {
		handlers.logger.Error("token issue failed",
			zap.String("code", "auth.refresh.issue_failed"),
			zap.Error(issueErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if revokeErr := handlers.refreshTokens.Revoke(contextGin, currentTokenID); revokeErr != nil {
		handlers.logger.Error("refresh token revoke failed",
			zap.String("code", "auth.refresh.revoke_failed"),
			zap.Error(revokeErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	handlers.metrics.Increment(MetricRefreshSuccess)
	contextGin.JSON(http.StatusOK, payload)
}

// revokeReplayedChain handles a rotated refresh token presented again: every token issued
// from it is revoked, signing out whoever holds the newer tokens.
func (handlers *authHandlers) revokeReplayedChain(contextGin *gin.Context, applicationUserID string, tokenID string) {
	revoked, err := handlers.refreshTokens.RevokeDescendants(contextGin, tokenID)
	if err != nil {
		handlers.logger.Error("refresh token chain revoke failed",
			zap.String("code", "auth.refresh.reuse_revoke_failed"),
			zap.Error(err))
		return
	}
	if revoked == 0 {
		return
	}
	handlers.metrics.Increment(MetricRefreshReuse)
	handlers.logger.Warn("rotated refresh token replayed; descendants revoked",
		zap.String("code", "auth.refresh.reuse_detected"),
		zap.String("user_id", applicationUserID),
		zap.Int("revoked", revoked))
}

func (handlers *authHandlers) logout(contextGin *gin.Context) {
	claims, ok := sessionvalidator.ClaimsFromContext(contextGin, sessionvalidator.DefaultContextKey)
	if !ok {
		abortWithDetail(contextGin, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if handlers.denylist != nil && claims.GetTokenID() != "" {
		if err := handlers.denylist.Revoke(contextGin, claims.GetTokenID(), claims.GetExpiresAt()); err != nil {
			handlers.logger.Error("access token revoke failed",
				zap.String("code", "auth.logout.denylist_failed"),
				zap.Error(err))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
	}

	var inbound struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = contextGin.ShouldBindJSON(&inbound)
	if strings.TrimSpace(inbound.RefreshToken) != "" {
		ownerID, tokenID, _, validateErr := handlers.refreshTokens.Validate(contextGin, inbound.RefreshToken)
		if validateErr == nil && ownerID == claims.GetUserID() {
			_ = handlers.refreshTokens.Revoke(contextGin, tokenID)
		}
	}

	handlers.metrics.Increment(MetricLogout)
	contextGin.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

func (handlers *authHandlers) issueTokenPair(contextGin *gin.Context, user UserRecord, previousTokenID string) (gin.H, error) {
	accessToken, claims, mintErr := MintAccessToken(handlers.clock, user, handlers.configuration.issuer(), handlers.configuration.SigningKey, handlers.configuration.SessionTTL)
	if mintErr != nil {
		return nil, mintErr
	}
	refreshExpiresUnix := handlers.clock.Now().UTC().Add(handlers.configuration.RefreshTTL).Unix()
	_, refreshOpaque, issueErr := handlers.refreshTokens.Issue(contextGin, user.ID, refreshExpiresUnix, previousTokenID)
	if issueErr != nil {
		return nil, issueErr
	}
	return gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshOpaque,
		"token_type":    TokenTypeBearer,
		"expires_in":    int64(claims.GetExpiresAt().Sub(handlers.clock.Now().UTC()).Seconds()),
	}, nil
}

// abortWithDetail answers with a {"detail": message} body.
func abortWithDetail(contextGin *gin.Context, status int, message string) {
	contextGin.AbortWithStatusJSON(status, gin.H{"detail": message})
}
