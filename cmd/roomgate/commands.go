package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomgate/internal/app"
	"github.com/vovakirdan/roomgate/internal/config"
	"github.com/vovakirdan/roomgate/internal/identity"
	applog "github.com/vovakirdan/roomgate/internal/log"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "roomgate",
		Short: "Google sign-in, nickname onboarding and room issuance service",
		Args:  cobra.NoArgs,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to config file (env: ROOMGATE_CONFIG_DEFAULT_PATH)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(newServeCmd(opts), newTokenCmd(opts))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

// loadConfig resolves the config file and env vars, then applies overrides.
func loadConfig(opts *rootOptions, overrides config.Config) (*config.Config, *zerolog.Logger, error) {
	bootLogger := applog.NewWithWriter(opts.logLevel, os.Stderr)

	cfg, path, err := config.Load(bootLogger, opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	overrides.LogLevel = opts.logLevel
	cfg.UpdateFrom(overrides)

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	logger := applog.New(cfg.LogLevel)
	logger.Debug().Str("path", path).Msg("config loaded")
	return &cfg, logger, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts, overrides)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting roomgate server")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	fs.DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	fs.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	fs.StringVar(&overrides.Store.Driver, "store-driver", "", "document store: sqlite or redis")
	fs.StringVar(&overrides.Store.SQLitePath, "sqlite-path", "", "sqlite database file")
	fs.StringVar(&overrides.Store.RedisAddr, "redis-addr", "", "redis address host:port")

	return cmd
}

type tokenOptions struct {
	uid   string
	name  string
	email string
	ttl   time.Duration
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	topts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development ID token (identity.emulator mode only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts, config.Config{})
			if err != nil {
				return err
			}
			if !cfg.Identity.Emulator {
				return errors.New("token minting requires identity.emulator")
			}
			if topts.uid == "" {
				return errors.New("--uid is required")
			}

			token, err := identity.GenerateToken(&identity.VerifierConfig{
				ProjectID: cfg.Firebase.ProjectID,
				Secret:    []byte(cfg.Identity.SigningSecret),
			}, identity.User{
				UID:         topts.uid,
				DisplayName: topts.name,
				Email:       topts.email,
			}, topts.ttl)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&topts.uid, "uid", "", "user id (token subject)")
	fs.StringVar(&topts.name, "name", "", "display name")
	fs.StringVar(&topts.email, "email", "", "email address")
	fs.DurationVar(&topts.ttl, "ttl", time.Hour, "token lifetime")

	return cmd
}
