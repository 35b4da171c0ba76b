package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/quizsession/internal/authkit"
	"github.com/tyemirov/quizsession/internal/web"
	"github.com/tyemirov/quizsession/pkg/sessionvalidator"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

const (
	configCodeMissingJWTSigningKey   = "config.missing_jwt_signing_key"
	configCodeInvalidSessionTTL      = "config.invalid_session_ttl"
	configCodeInvalidRefreshTTL      = "config.invalid_refresh_ttl"
	configCodeMissingCORSOrigins     = "config.missing_cors_allowed_origins"
	configCodeUninitializedServeConf = "config.uninitialized_serve_config"
	configCodeInvalidRedisURL        = "config.invalid_redis_url"
)

// serveConfig carries the reference backend settings.
type serveConfig struct {
	Server             authkit.ServerConfig
	ListenAddr         string
	DatabaseURL        string
	RedisURL           string
	EnableCORS         bool
	CORSAllowedOrigins []string
}

func newServeCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the reference auth backend (register, login, refresh, profile, logout)",
		PreRunE: prepareServeConfig,
		RunE:    runServer,
	}

	serveCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	serveCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for access tokens")
	serveCmd.Flags().Duration("session_ttl", 15*time.Minute, "Access token TTL")
	serveCmd.Flags().Duration("refresh_ttl", 60*24*time.Hour, "Refresh token TTL")
	serveCmd.Flags().String("database_url", "", "Database URL for refresh tokens (postgres:// or sqlite://; leave empty for in-memory store)")
	serveCmd.Flags().String("redis_url", "", "Redis URL for the access token denylist (leave empty for in-memory denylist)")
	serveCmd.Flags().Bool("enable_cors", false, "Enable CORS for browser clients on other origins")
	serveCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	_ = viper.BindPFlag("listen_addr", serveCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("jwt_signing_key", serveCmd.Flags().Lookup("jwt_signing_key"))
	_ = viper.BindPFlag("session_ttl", serveCmd.Flags().Lookup("session_ttl"))
	_ = viper.BindPFlag("refresh_ttl", serveCmd.Flags().Lookup("refresh_ttl"))
	_ = viper.BindPFlag("database_url", serveCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("redis_url", serveCmd.Flags().Lookup("redis_url"))
	_ = viper.BindPFlag("enable_cors", serveCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", serveCmd.Flags().Lookup("cors_allowed_origins"))

	return serveCmd
}

func prepareServeConfig(command *cobra.Command, arguments []string) error {
	configuration, loadErr := LoadServeConfig()
	if loadErr != nil {
		return loadErr
	}
	withCommandValue(command, serveConfigContextKey, configuration)
	return nil
}

// LoadServeConfig reads and validates the backend settings from viper.
func LoadServeConfig() (serveConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return serveConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	sessionTTL := viper.GetDuration("session_ttl")
	if sessionTTL <= 0 {
		return serveConfig{}, configError(configCodeInvalidSessionTTL, "session_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return serveConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}

	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")
	if enableCORS && len(corsAllowedOrigins) == 0 {
		return serveConfig{}, configError(configCodeMissingCORSOrigins, "cors_allowed_origins must be provided when enable_cors is true")
	}

	listenAddr := viper.GetString("listen_addr")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	return serveConfig{
		Server: authkit.ServerConfig{
			SigningKey: []byte(jwtSigningKey),
			Issuer:     authkit.DefaultIssuer,
			SessionTTL: sessionTTL,
			RefreshTTL: refreshTTL,
		},
		ListenAddr:         listenAddr,
		DatabaseURL:        viper.GetString("database_url"),
		RedisURL:           viper.GetString("redis_url"),
		EnableCORS:         enableCORS,
		CORSAllowedOrigins: corsAllowedOrigins,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	configuration, ok := commandValue(command, serveConfigContextKey).(serveConfig)
	if !ok {
		return configError(configCodeUninitializedServeConf, "serve configuration not prepared; PreRunE must execute before RunE")
	}

	logger, loggerErr := newLogger()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	gin.SetMode(gin.ReleaseMode)
	router, release, buildErr := buildRouter(commandContext(command), configuration, logger, prometheus.NewRegistry())
	if buildErr != nil {
		return buildErr
	}
	defer func() { _ = release() }()

	server := &http.Server{
		Addr:              configuration.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", configuration.ListenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

// buildRouter assembles the backend. The returned release function closes the
// connections opened for the refresh token store and the denylist.
func buildRouter(ctx context.Context, configuration serveConfig, logger *zap.Logger, registry *prometheus.Registry) (*gin.Engine, func() error, error) {
	release := func() error { return nil }

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(authkit.RequestLogger(logger))

	if configuration.EnableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, configuration.CORSAllowedOrigins)
		if corsErr != nil {
			return nil, nil, corsErr
		}
		router.Use(corsMiddleware)
	}

	var refreshStore authkit.RefreshTokenStore
	if configuration.DatabaseURL != "" {
		persistentStore, storeErr := authkit.NewDatabaseRefreshTokenStore(ctx, configuration.DatabaseURL)
		if storeErr != nil {
			return nil, nil, storeErr
		}
		refreshStore = persistentStore
		logger.Info("using persistent refresh token store", zap.String("driver", persistentStore.Driver()))
	} else {
		refreshStore = authkit.NewMemoryRefreshTokenStore()
		logger.Info("using in-memory refresh token store")
	}

	var denylist authkit.AccessTokenDenylist
	if configuration.RedisURL != "" {
		redisOptions, parseErr := redis.ParseURL(configuration.RedisURL)
		if parseErr != nil {
			return nil, nil, fmt.Errorf("%s: %w", configCodeInvalidRedisURL, parseErr)
		}
		redisClient := redis.NewClient(redisOptions)
		redisDenylist, denylistErr := authkit.NewRedisDenylist(redisClient, configuration.Server.Issuer, logger)
		if denylistErr != nil {
			_ = redisClient.Close()
			return nil, nil, denylistErr
		}
		denylist = redisDenylist
		release = redisClient.Close
		logger.Info("using redis access token denylist")
	} else {
		denylist = authkit.NewMemoryDenylist()
	}

	clock := sessionvalidator.NewSystemClock()
	validator, validatorErr := sessionvalidator.New(sessionvalidator.Config{
		SigningKey:  configuration.Server.SigningKey,
		Issuer:      configuration.Server.Issuer,
		Clock:       clock,
		Revocations: denylist,
	})
	if validatorErr != nil {
		_ = release()
		return nil, nil, validatorErr
	}

	metricsRecorder, metricsErr := authkit.NewPrometheusMetrics(registry)
	if metricsErr != nil {
		_ = release()
		return nil, nil, metricsErr
	}

	userStore := web.NewInMemoryUsers()
	authkit.MountAuthRoutes(router, authkit.RouteDependencies{
		Config:        configuration.Server,
		Users:         userStore,
		RefreshTokens: refreshStore,
		Denylist:      denylist,
		Validator:     validator,
		Clock:         clock,
		Logger:        logger,
		Metrics:       metricsRecorder,
	})
	web.MountProfileRoutes(router, logger, userStore, authkit.RequireBearer(validator))
	router.GET("/metrics", authkit.MetricsHandler(registry))

	return router, release, nil
}
