package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/quizsession/internal/authkit"
	"github.com/tyemirov/quizsession/pkg/sessionvalidator"
	"go.uber.org/zap"
)

// MountProfileRoutes registers GET|PUT /auth/profile and GET|POST /api/user/token behind
// requireBearer.
func MountProfileRoutes(router gin.IRouter, logger *zap.Logger, users authkit.UserStore, requireBearer gin.HandlerFunc) {
	router.GET("/auth/profile", requireBearer, HandleWhoAmI(logger, users))
	router.PUT("/auth/profile", requireBearer, HandleUpdateProfile(logger, users))
	router.GET("/api/user/token", requireBearer, HandleGetUserToken(logger, users))
	router.POST("/api/user/token", requireBearer, HandleSaveUserToken(logger, users))
}

// HandleWhoAmI resolves the authenticated user's profile payload.
func HandleWhoAmI(logger *zap.Logger, users authkit.UserStore) gin.HandlerFunc {
	logger, users = requireDependencies(logger, users)

	return func(contextGin *gin.Context) {
		claims, ok := requireClaims(contextGin, logger, "api.profile")
		if !ok {
			return
		}
		user, profileErr := users.GetUser(contextGin, claims.GetUserID())
		if profileErr != nil {
			respondUserError(contextGin, logger, "api.profile", claims.GetUserID(), profileErr)
			return
		}
		contextGin.JSON(http.StatusOK, user)
	}
}

// HandleUpdateProfile applies profile changes for the authenticated user.
func HandleUpdateProfile(logger *zap.Logger, users authkit.UserStore) gin.HandlerFunc {
	logger, users = requireDependencies(logger, users)

	return func(contextGin *gin.Context) {
		claims, ok := requireClaims(contextGin, logger, "api.profile_update")
		if !ok {
			return
		}
		var changes authkit.ProfileChanges
		if err := contextGin.ShouldBindJSON(&changes); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": "Invalid profile payload"})
			return
		}
		user, updateErr := users.UpdateProfile(contextGin, claims.GetUserID(), changes)
		if updateErr != nil {
			respondUserError(contextGin, logger, "api.profile_update", claims.GetUserID(), updateErr)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{
			"message": "Profile updated successfully",
			"user":    user,
		})
	}
}

// HandleGetUserToken returns the stored user API token, or 404 when none is stored.
func HandleGetUserToken(logger *zap.Logger, users authkit.UserStore) gin.HandlerFunc {
	logger, users = requireDependencies(logger, users)

	return func(contextGin *gin.Context) {
		claims, ok := requireClaims(contextGin, logger, "api.user_token")
		if !ok {
			return
		}
		token, tokenErr := users.APIToken(contextGin, claims.GetUserID())
		if errors.Is(tokenErr, authkit.ErrAPITokenNotFound) {
			contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "No stored token for user"})
			return
		}
		if tokenErr != nil {
			respondUserError(contextGin, logger, "api.user_token", claims.GetUserID(), tokenErr)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"token": token})
	}
}

// HandleSaveUserToken stores the user API token.
func HandleSaveUserToken(logger *zap.Logger, users authkit.UserStore) gin.HandlerFunc {
	logger, users = requireDependencies(logger, users)

	return func(contextGin *gin.Context) {
		claims, ok := requireClaims(contextGin, logger, "api.user_token_save")
		if !ok {
			return
		}
		var inbound struct {
			Token string `json:"token"`
		}
		if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Token) == "" {
			contextGin.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"detail": "token is required"})
			return
		}
		if saveErr := users.SaveAPIToken(contextGin, claims.GetUserID(), strings.TrimSpace(inbound.Token)); saveErr != nil {
			respondUserError(contextGin, logger, "api.user_token_save", claims.GetUserID(), saveErr)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"message": "Token saved successfully"})
	}
}

func requireDependencies(logger *zap.Logger, users authkit.UserStore) (*zap.Logger, authkit.UserStore) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if users == nil {
		panic("user store is required")
	}
	return logger, users
}

func requireClaims(contextGin *gin.Context, logger *zap.Logger, codePrefix string) (*sessionvalidator.Claims, bool) {
	claims, ok := sessionvalidator.ClaimsFromContext(contextGin, sessionvalidator.DefaultContextKey)
	if !ok || claims.GetUserID() == "" {
		logger.Warn("missing auth claims on context",
			zap.String("code", codePrefix+".missing_claims"))
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return nil, false
	}
	return claims, true
}

func respondUserError(contextGin *gin.Context, logger *zap.Logger, codePrefix string, userID string, err error) {
	if errors.Is(err, authkit.ErrUserNotFound) {
		logger.Warn("user missing",
			zap.String("code", codePrefix+".user_missing"),
			zap.String("user_id", userID))
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "User not found"})
		return
	}
	logger.Error("user lookup error",
		zap.String("code", codePrefix+".error"),
		zap.String("user_id", userID),
		zap.Error(err))
	contextGin.AbortWithStatus(http.StatusInternalServerError)
}
