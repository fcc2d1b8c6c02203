package config

import (
	"errors"
	"fmt"
	"time"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Firebase is the client configuration block the front end initializes its SDK with.
// The server uses ProjectID to verify ID tokens and hands the whole block to the browser.
type Firebase struct {
	APIKey            string `mapstructure:"api_key" yaml:"api_key" json:"apiKey"`
	AuthDomain        string `mapstructure:"auth_domain" yaml:"auth_domain" json:"authDomain"`
	ProjectID         string `mapstructure:"project_id" yaml:"project_id" json:"projectId"`
	StorageBucket     string `mapstructure:"storage_bucket" yaml:"storage_bucket" json:"storageBucket"`
	MessagingSenderID string `mapstructure:"messaging_sender_id" yaml:"messaging_sender_id" json:"messagingSenderId"`
	AppID             string `mapstructure:"app_id" yaml:"app_id" json:"appId"`
}

// Store selects and configures the document store backend.
type Store struct {
	Driver        string `mapstructure:"driver" yaml:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
}

// MinSigningSecretLen is the shortest emulator signing secret Validate accepts.
const MinSigningSecretLen = 32

// Identity holds ID token verification keys.
// PublicKeyFile points at a PEM encoded RSA key for RS256 tokens.
// Emulator switches to HS256 tokens signed with SigningSecret instead, for
// local development only; the two modes never mix.
type Identity struct {
	Emulator      bool   `mapstructure:"emulator" yaml:"emulator"`
	SigningSecret string `mapstructure:"signing_secret" yaml:"signing_secret"`
	PublicKeyFile string `mapstructure:"public_key_file" yaml:"public_key_file"`
}

// Config holds server configuration values.
type Config struct {
	Addr               string        `mapstructure:"addr" yaml:"addr"`
	LogLevel           string        `mapstructure:"log_level" yaml:"log_level"`
	ReadHeaderTimeout  time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins     []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	SecureCookies      bool          `mapstructure:"secure_cookies" yaml:"secure_cookies"`
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout" yaml:"session_idle_timeout"`
	RateLimit          float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst          int           `mapstructure:"rate_burst" yaml:"rate_burst"`

	Firebase Firebase `mapstructure:"firebase" yaml:"firebase"`
	Store    Store    `mapstructure:"store" yaml:"store"`
	Identity Identity `mapstructure:"identity" yaml:"identity"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		LogLevel:           "info",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		SessionIdleTimeout: 24 * time.Hour,
		RateLimit:          10,
		RateBurst:          20,
		Firebase: Firebase{
			ProjectID: "roomgate-dev",
		},
		Store: Store{
			Driver:     DriverSQLite,
			SQLitePath: "roomgate.db",
			RedisAddr:  "localhost:6379",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the top-level knobs exposed as command line flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}
	if other.Store.SQLitePath != "" {
		c.Store.SQLitePath = other.Store.SQLitePath
	}
	if other.Store.RedisAddr != "" {
		c.Store.RedisAddr = other.Store.RedisAddr
	}
}

// Validate reports configuration that cannot produce a working server.
func (c *Config) Validate() error {
	if c.Firebase.ProjectID == "" {
		return errors.New("firebase.project_id is required")
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	case DriverRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if err := c.Identity.validate(); err != nil {
		return err
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return errors.New("rate_limit and rate_burst must not be negative")
	}
	return nil
}

func (i Identity) validate() error {
	if !i.Emulator {
		if i.SigningSecret != "" {
			return errors.New("identity.signing_secret is only allowed with identity.emulator")
		}
		if i.PublicKeyFile == "" {
			return errors.New("identity.public_key_file is required")
		}
		return nil
	}

	if i.PublicKeyFile != "" {
		return errors.New("identity.emulator cannot be combined with identity.public_key_file")
	}
	if len(i.SigningSecret) < MinSigningSecretLen {
		return fmt.Errorf("identity.signing_secret must be at least %d bytes in emulator mode", MinSigningSecretLen)
	}
	return nil
}
