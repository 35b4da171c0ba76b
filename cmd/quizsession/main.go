package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/quizsession/pkg/tokenstore"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "quizsession",
		Short:        "Quiz session client and reference auth backend with rotating refresh tokens",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("base_url", "http://localhost:8080", "Base URL of the quiz API")
	rootCmd.PersistentFlags().String("session_storage", tokenstore.StorageMemory, "Per-session credential storage (memory, redis://, rediss://, postgres:// or sqlite://)")
	rootCmd.PersistentFlags().String("session_namespace", "", "Namespace isolating this session inside shared storage")
	rootCmd.PersistentFlags().String("legacy_database_url", "", "Persistent storage migrated into the session storage on first read (postgres:// or sqlite://)")
	rootCmd.PersistentFlags().Duration("request_timeout", 30*time.Second, "Timeout for each API request")
	rootCmd.PersistentFlags().Bool("log_development", false, "Use the human-readable development logger")

	_ = viper.BindPFlag("base_url", rootCmd.PersistentFlags().Lookup("base_url"))
	_ = viper.BindPFlag("session_storage", rootCmd.PersistentFlags().Lookup("session_storage"))
	_ = viper.BindPFlag("session_namespace", rootCmd.PersistentFlags().Lookup("session_namespace"))
	_ = viper.BindPFlag("legacy_database_url", rootCmd.PersistentFlags().Lookup("legacy_database_url"))
	_ = viper.BindPFlag("request_timeout", rootCmd.PersistentFlags().Lookup("request_timeout"))
	_ = viper.BindPFlag("log_development", rootCmd.PersistentFlags().Lookup("log_development"))

	rootCmd.AddCommand(
		newServeCommand(),
		newLoginCommand(),
		newWhoAmICommand(),
		newLogoutCommand(),
		newTokenCommand(),
	)

	viper.SetEnvPrefix("QUIZ")
	viper.AutomaticEnv()

	return rootCmd
}

type contextKey string

const (
	serveConfigContextKey  contextKey = "serveConfig"
	clientConfigContextKey contextKey = "clientConfig"
)

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func newLogger() (*zap.Logger, error) {
	if viper.GetBool("log_development") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func withCommandValue(command *cobra.Command, key contextKey, value any) {
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, key, value))
}

func commandValue(command *cobra.Command, key contextKey) any {
	ctx := command.Context()
	if ctx == nil {
		return nil
	}
	return ctx.Value(key)
}

func commandContext(command *cobra.Command) context.Context {
	if ctx := command.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
