package jwtauth

import (
	"errors"
	"time"

	"github.com/zeroing/jwtauth/internal/logging"
	"github.com/zeroing/jwtauth/jwt"
	"github.com/zeroing/jwtauth/password"
	"go.uber.org/zap"
)

// Config is the complete engine configuration. Start from DefaultConfig or LoadConfig and
// treat the value as immutable once passed to the Builder.
type Config struct {
	JWT      JWTConfig      `mapstructure:"jwt"`
	Password PasswordConfig `mapstructure:"password"`
	Store    StoreConfig    `mapstructure:"store"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the HS512 signing secret and token lifetimes.
//
// The secret has no default and must come from the config file or JWTAUTH_JWT_SECRET.
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	TTL        time.Duration `mapstructure:"ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory         uint32 `mapstructure:"memory"` // in KB
	Time           uint32 `mapstructure:"time"`
	Parallelism    uint8  `mapstructure:"parallelism"`
	SaltLength     uint32 `mapstructure:"salt_length"`
	KeyLength      uint32 `mapstructure:"key_length"`
	MinLength      int    `mapstructure:"min_length"`
	UpgradeOnLogin bool   `mapstructure:"upgrade_on_login"`
}

func (p PasswordConfig) argon2() password.Config {
	return password.Config{
		Memory:      p.Memory,
		Time:        p.Time,
		Parallelism: p.Parallelism,
		SaltLength:  p.SaltLength,
		KeyLength:   p.KeyLength,
		MinLength:   p.MinLength,
	}
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig selects the identity backend used by the command-line tools.
// Driver is "redis" or "postgres".
type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

/*
====================================
AUDIT / METRICS / LOG
====================================
*/

type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

// LogConfig selects the zap level ("debug", "info", "warn", "error") and encoding
// ("json" or "console").
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NewLogger builds the zap logger described by l.
func (l LogConfig) NewLogger() (*zap.Logger, error) {
	return logging.New(logging.Config{Level: l.Level, Format: l.Format})
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns every setting except the signing secret.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			TTL:        jwt.DefaultTTL,
			RefreshTTL: jwt.DefaultTTL,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		Store: StoreConfig{
			Driver:      "redis",
			RedisAddr:   "127.0.0.1:6379",
			RedisPrefix: "jwtauth",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.Secret == "" {
		return errors.New("JWT Secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT Secret must be at least 32 bytes")
	}
	if c.JWT.TTL <= 0 {
		return errors.New("JWT TTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}

	// Password
	if err := c.Password.argon2().Validate(); err != nil {
		return err
	}

	// Store
	switch c.Store.Driver {
	case "redis":
		if c.Store.RedisAddr == "" {
			return errors.New("Store RedisAddr is required for the redis driver")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return errors.New("Store PostgresDSN is required for the postgres driver")
		}
	default:
		return errors.New("Store Driver must be redis or postgres")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	// Log
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "" && c.Log.Format != "json" && c.Log.Format != "console" {
		return errors.New("Log Format must be json or console")
	}

	return nil
}
