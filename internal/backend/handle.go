// Package backend builds the process-wide connection to the identity and
// document services every browser session shares.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomgate/internal/config"
	"github.com/vovakirdan/roomgate/internal/docstore"
	"github.com/vovakirdan/roomgate/internal/docstore/redisstore"
	"github.com/vovakirdan/roomgate/internal/docstore/sqlite"
	"github.com/vovakirdan/roomgate/internal/identity"
)

// Handle is initialized once per process and outlives every session.
type Handle struct {
	Firebase config.Firebase
	Verifier identity.Verifier
	Store    docstore.Store
	log      *zerolog.Logger
}

// New opens the configured document store and builds the token verifier.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Handle, error) {
	verifierCfg, err := verifierConfig(cfg)
	if err != nil {
		return nil, err
	}

	verifier, err := identity.NewTokenVerifier(verifierCfg)
	if err != nil {
		return nil, fmt.Errorf("init verifier: %w", err)
	}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().
		Str("project_id", cfg.Firebase.ProjectID).
		Str("store_driver", cfg.Store.Driver).
		Bool("identity_emulator", cfg.Identity.Emulator).
		Msg("backend initialized")

	return &Handle{
		Firebase: cfg.Firebase,
		Verifier: verifier,
		Store:    st,
		log:      logger,
	}, nil
}

// verifierConfig picks the token keys. The signing secret is only honored
// in emulator mode; otherwise tokens must be signed by the public key's owner.
func verifierConfig(cfg *config.Config) (identity.VerifierConfig, error) {
	vc := identity.VerifierConfig{ProjectID: cfg.Firebase.ProjectID}

	if cfg.Identity.Emulator {
		if cfg.Identity.PublicKeyFile != "" {
			return vc, identity.ErrMixedKeys
		}
		vc.Secret = []byte(cfg.Identity.SigningSecret)
		return vc, nil
	}

	if cfg.Identity.PublicKeyFile == "" {
		return vc, errors.New("identity.public_key_file is required outside emulator mode")
	}
	key, err := identity.LoadPublicKey(cfg.Identity.PublicKeyFile)
	if err != nil {
		return vc, fmt.Errorf("load public key: %w", err)
	}
	vc.PublicKey = key
	return vc, nil
}

func openStore(ctx context.Context, cfg config.Store) (docstore.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.New(cfg.SQLitePath)
	case config.DriverRedis:
		return redisstore.Open(ctx, &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// NewAuth returns a signed-out identity state for one browser session.
func (h *Handle) NewAuth() *identity.Auth {
	return identity.NewAuth(h.Verifier, h.log)
}

// Close releases the document store.
func (h *Handle) Close() error {
	if h.Store == nil {
		return nil
	}
	return h.Store.Close()
}
