// Command facecloud runs the FaceCloud clinic-management API and its
// maintenance tasks.
//
//	facecloud serve        start the HTTP server
//	facecloud migrate      create or update the database schema
//	facecloud issue-link   print a sign-in link for an email address
//
// Configuration comes from the environment (see internal/config); a .env
// file in the working directory is loaded first when present.
//
// @title                       FaceCloud API
// @version                     1.0
// @description                 Clinic onboarding wizards, team and room management, and the owner dashboard.
// @BasePath                    /api/v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the access token.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/facecloud/internal/config"
	"github.com/tbourn/facecloud/internal/observability"
	"github.com/tbourn/facecloud/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

var (
	envFile  string
	logLevel string
)

// loadConfig is replaced in tests.
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "facecloud",
		Short:         "FaceCloud clinic-management API",
		Version:       appVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newIssueLinkCmd())
	return root
}

func appVersion() string {
	return sysutil.FirstNonEmpty(version, os.Getenv("FACECLOUD_VERSION"), "dev")
}

// setup reads the configuration and configures the global logger from it.
func setup(cmd *cobra.Command) (config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = strings.ToLower(logLevel)
	}

	var lg zerolog.Logger
	if cfg.LogPretty && !sysutil.IsTruthy(os.Getenv("NO_COLOR")) {
		lg = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()})
	} else {
		lg = zerolog.New(cmd.ErrOrStderr())
	}
	log.Logger = lg.With().Timestamp().Str("service", cfg.OTEL.ServiceName).Logger().Hook(observability.TraceHook{})
	sysutil.SetLogLevel(cfg.LogLevel)
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("facecloud")
		os.Exit(1)
	}
}
