package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/quizsession/internal/authkit"
	"github.com/tyemirov/quizsession/pkg/authclient"
	"github.com/tyemirov/quizsession/pkg/quizapi"
	"github.com/tyemirov/quizsession/pkg/session"
	"github.com/tyemirov/quizsession/pkg/sessionevents"
	"github.com/tyemirov/quizsession/pkg/tokenstore"
	"go.uber.org/zap"
)

const (
	configCodeMissingBaseURL          = "config.missing_base_url"
	configCodeInvalidRequestTimeout   = "config.invalid_request_timeout"
	configCodeMissingIdentifier       = "config.missing_identifier"
	configCodeMissingPassword         = "config.missing_password"
	configCodeUninitializedClientConf = "config.uninitialized_client_config"
)

var errNotSignedIn = errors.New("cli.not_signed_in")

// clientConfig carries the settings shared by the client commands.
type clientConfig struct {
	BaseURL           string
	SessionStorage    string
	SessionNamespace  string
	LegacyDatabaseURL string
	RequestTimeout    time.Duration
}

// LoadClientConfig reads and validates the client settings from viper.
func LoadClientConfig() (clientConfig, error) {
	baseURL := strings.TrimSpace(viper.GetString("base_url"))
	if baseURL == "" {
		return clientConfig{}, configError(configCodeMissingBaseURL, "base_url must be provided")
	}

	requestTimeout := viper.GetDuration("request_timeout")
	if requestTimeout <= 0 {
		return clientConfig{}, configError(configCodeInvalidRequestTimeout, "request_timeout must be greater than zero")
	}

	return clientConfig{
		BaseURL:           baseURL,
		SessionStorage:    viper.GetString("session_storage"),
		SessionNamespace:  viper.GetString("session_namespace"),
		LegacyDatabaseURL: viper.GetString("legacy_database_url"),
		RequestTimeout:    requestTimeout,
	}, nil
}

func prepareClientConfig(command *cobra.Command, arguments []string) error {
	configuration, loadErr := LoadClientConfig()
	if loadErr != nil {
		return loadErr
	}
	withCommandValue(command, clientConfigContextKey, configuration)
	return nil
}

// clientStack is the credential pipeline a command works through: token store,
// refreshing transport, API client, and session controller.
type clientStack struct {
	tokens     *tokenstore.TokenStore
	api        *quizapi.Client
	publicAPI  *quizapi.Client
	controller *session.Controller
	userTokens *quizapi.UserTokenCache
	metrics    *authkit.CounterMetrics
	logger     *zap.Logger
	closers    []func() error
}

func buildClientStack(ctx context.Context, configuration clientConfig, logger *zap.Logger) (*clientStack, error) {
	stack := &clientStack{metrics: authkit.NewCounterMetrics(), logger: logger}

	sessionStorage, closeSession, sessionErr := tokenstore.OpenStorage(ctx, configuration.SessionStorage, configuration.SessionNamespace)
	if sessionErr != nil {
		return nil, fmt.Errorf("cli.session_storage: %w", sessionErr)
	}
	stack.closers = append(stack.closers, closeSession)

	var legacyStorage tokenstore.Storage
	if configuration.LegacyDatabaseURL != "" {
		opened, closeLegacy, legacyErr := tokenstore.OpenStorage(ctx, configuration.LegacyDatabaseURL, "")
		if legacyErr != nil {
			_ = stack.Close()
			return nil, fmt.Errorf("cli.legacy_storage: %w", legacyErr)
		}
		legacyStorage = opened
		stack.closers = append(stack.closers, closeLegacy)
	}

	stack.tokens = tokenstore.New(tokenstore.Options{
		Session: sessionStorage,
		Legacy:  legacyStorage,
		Logger:  logger,
	})

	plainHTTPClient := &http.Client{Timeout: configuration.RequestTimeout}
	publicAPI, publicErr := quizapi.New(configuration.BaseURL, plainHTTPClient, logger)
	if publicErr != nil {
		_ = stack.Close()
		return nil, publicErr
	}
	stack.publicAPI = publicAPI

	refresher, refresherErr := authclient.NewEndpointRefresher(publicAPI.Endpoint("/auth/refresh"), plainHTTPClient)
	if refresherErr != nil {
		_ = stack.Close()
		return nil, refresherErr
	}

	events := sessionevents.NewBus()
	transport, transportErr := authclient.NewTransport(authclient.Config{
		Tokens:    stack.tokens,
		Refresher: refresher,
		Events:    events,
		Logger:    logger,
		Metrics:   stack.metrics,
	})
	if transportErr != nil {
		_ = stack.Close()
		return nil, transportErr
	}

	api, apiErr := quizapi.New(configuration.BaseURL, authclient.NewHTTPClient(transport, configuration.RequestTimeout), logger)
	if apiErr != nil {
		_ = stack.Close()
		return nil, apiErr
	}
	stack.api = api
	stack.userTokens = quizapi.NewUserTokenCache(api, sessionStorage, logger)

	controller, controllerErr := session.New(session.Config{
		Tokens:  stack.tokens,
		Backend: api,
		Events:  events,
		Navigator: session.NavigatorFunc(func(destination string) {
			logger.Info("session ended", zap.String("code", "cli.navigate"), zap.String("destination", destination))
		}),
		Cleaners: []session.SessionDataCleaner{stack.userTokens},
		Logger:   logger,
	})
	if controllerErr != nil {
		_ = stack.Close()
		return nil, controllerErr
	}
	stack.controller = controller
	return stack, nil
}

// Close detaches the controller and releases the storages.
func (stack *clientStack) Close() error {
	if stack.controller != nil {
		stack.controller.Close()
	}
	var closeErrs []error
	for _, closeFn := range stack.closers {
		if err := closeFn(); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}
	stack.logger.Debug("client metrics", zap.Any("counts", stack.metrics.Snapshot()))
	return errors.Join(closeErrs...)
}

// runWithClientStack builds the stack for command and hands it to action.
func runWithClientStack(command *cobra.Command, action func(ctx context.Context, stack *clientStack) error) error {
	configuration, ok := commandValue(command, clientConfigContextKey).(clientConfig)
	if !ok {
		return configError(configCodeUninitializedClientConf, "client configuration not prepared; PreRunE must execute before RunE")
	}

	logger, loggerErr := newLogger()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	ctx := commandContext(command)
	stack, buildErr := buildClientStack(ctx, configuration, logger)
	if buildErr != nil {
		return buildErr
	}
	defer func() { _ = stack.Close() }()

	return action(ctx, stack)
}

func newLoginCommand() *cobra.Command {
	loginCmd := &cobra.Command{
		Use:     "login",
		Short:   "Sign in and store the credential in the session storage",
		PreRunE: prepareClientConfig,
		RunE: func(command *cobra.Command, arguments []string) error {
			identifier := strings.TrimSpace(viper.GetString("identifier"))
			if identifier == "" {
				return configError(configCodeMissingIdentifier, "identifier must be provided")
			}
			password := viper.GetString("password")
			if password == "" {
				return configError(configCodeMissingPassword, "password must be provided")
			}
			return runWithClientStack(command, func(ctx context.Context, stack *clientStack) error {
				token, loginErr := stack.publicAPI.Login(ctx, identifier, password)
				if loginErr != nil {
					return loginErr
				}
				if err := stack.controller.Login(ctx, token.AccessToken, token.RefreshToken, token.TokenType); err != nil {
					return err
				}
				user := stack.controller.State().User
				_, err := fmt.Fprintf(command.OutOrStdout(), "signed in as %s\n", user.Username)
				return err
			})
		},
	}

	loginCmd.Flags().String("identifier", "", "Username or email")
	loginCmd.Flags().String("password", "", "Password (prefer the QUIZ_PASSWORD environment variable)")

	_ = viper.BindPFlag("identifier", loginCmd.Flags().Lookup("identifier"))
	_ = viper.BindPFlag("password", loginCmd.Flags().Lookup("password"))

	return loginCmd
}

func newWhoAmICommand() *cobra.Command {
	return &cobra.Command{
		Use:     "whoami",
		Short:   "Print the signed-in user's profile",
		PreRunE: prepareClientConfig,
		RunE: func(command *cobra.Command, arguments []string) error {
			return runWithClientStack(command, func(ctx context.Context, stack *clientStack) error {
				stack.controller.Initialize(ctx)
				state := stack.controller.State()
				if state.Status != session.StatusAuthenticated || state.User == nil {
					return errNotSignedIn
				}
				encoder := json.NewEncoder(command.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(state.User)
			})
		},
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "logout",
		Short:   "Revoke the session on the backend and clear the stored credential",
		PreRunE: prepareClientConfig,
		RunE: func(command *cobra.Command, arguments []string) error {
			return runWithClientStack(command, func(ctx context.Context, stack *clientStack) error {
				stack.controller.Logout(ctx)
				_, err := fmt.Fprintln(command.OutOrStdout(), "signed out")
				return err
			})
		},
	}
}

func newTokenCommand() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Read or store the user API token kept by the backend",
	}

	tokenCmd.AddCommand(&cobra.Command{
		Use:     "get",
		Short:   "Print the stored user API token",
		PreRunE: prepareClientConfig,
		RunE: func(command *cobra.Command, arguments []string) error {
			return runWithClientStack(command, func(ctx context.Context, stack *clientStack) error {
				if !stack.tokens.HasTokens(ctx) {
					return errNotSignedIn
				}
				token, err := stack.userTokens.Suggestion(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(command.OutOrStdout(), token)
				return err
			})
		},
	})

	tokenCmd.AddCommand(&cobra.Command{
		Use:     "set <token>",
		Short:   "Store a user API token on the backend",
		Args:    cobra.ExactArgs(1),
		PreRunE: prepareClientConfig,
		RunE: func(command *cobra.Command, arguments []string) error {
			return runWithClientStack(command, func(ctx context.Context, stack *clientStack) error {
				if !stack.tokens.HasTokens(ctx) {
					return errNotSignedIn
				}
				return stack.userTokens.Save(ctx, arguments[0])
			})
		},
	})

	return tokenCmd
}
