package authkit

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/quizsession/pkg/sessionvalidator"
	"go.uber.org/zap"
)

// RequireBearer validates the bearer access token and injects claims under
// sessionvalidator.DefaultContextKey.
func RequireBearer(validator *sessionvalidator.Validator) gin.HandlerFunc {
	if validator == nil {
		panic("validator is required")
	}
	return validator.GinMiddleware(sessionvalidator.DefaultContextKey)
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", time.Since(startTime)),
		)
	}
}
