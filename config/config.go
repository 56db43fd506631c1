// Package config centralises configuration parsing for the footprint server.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/warp/footprint-ledger/ledger"
)

// Config captures runtime configuration values.
type Config struct {
	HTTPAddress string   `env:"FOOTPRINT_HTTP_ADDRESS" envDefault:":8080"`
	Store       string   `env:"FOOTPRINT_STORE"        envDefault:"sqlite"`
	SQLitePath  string   `env:"FOOTPRINT_SQLITE_PATH"  envDefault:"footprint.db"`
	CORSOrigins []string `env:"FOOTPRINT_CORS_ORIGINS" envDefault:"http://localhost:5173,http://localhost:8080" envSeparator:","`
	LogLevel    string   `env:"FOOTPRINT_LOG_LEVEL"    envDefault:"info"`

	// JWTSecret signs caller tokens. It has no default: anyone holding it can
	// mint a token for the admin.
	JWTSecret string `env:"FOOTPRINT_JWT_SECRET,required,notEmpty"`
	JWTIssuer string `env:"FOOTPRINT_JWT_ISSUER" envDefault:"footprint.identity"`

	// Admin seeds the registry admin on first start only.
	Admin string `env:"FOOTPRINT_ADMIN" envDefault:"admin"`

	MaxActivitiesPerAccount uint64 `env:"FOOTPRINT_MAX_ACTIVITIES"       envDefault:"10000"`
	MaxCategoryLength       int    `env:"FOOTPRINT_MAX_CATEGORY_LEN"     envDefault:"64"`
	MaxUnitLength           int    `env:"FOOTPRINT_MAX_UNIT_LEN"         envDefault:"32"`
	MaxDescriptionLength    int    `env:"FOOTPRINT_MAX_DESCRIPTION_LEN"  envDefault:"256"`
	TicksPerDay             uint64 `env:"FOOTPRINT_TICKS_PER_DAY"        envDefault:"144"`

	TickDuration time.Duration `env:"FOOTPRINT_TICK_DURATION" envDefault:"10m"`
	Epoch        time.Time     `env:"FOOTPRINT_EPOCH"         envDefault:"2024-01-01T00:00:00Z"`
}

// Load reads environment variables into Config and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env.Parse cannot.
func (c Config) Validate() error {
	switch c.Store {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown store %q (want memory or sqlite)", c.Store)
	}
	if c.TickDuration <= 0 {
		return fmt.Errorf("tick duration must be positive")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("jwt secret must not be blank")
	}
	if strings.TrimSpace(c.Admin) == "" {
		return fmt.Errorf("admin identity must not be empty")
	}
	return c.Limits().Validate()
}

// Limits returns the ledger limits described by the configuration.
func (c Config) Limits() ledger.Limits {
	return ledger.Limits{
		MaxActivitiesPerAccount: c.MaxActivitiesPerAccount,
		MaxCategoryLength:       c.MaxCategoryLength,
		MaxUnitLength:           c.MaxUnitLength,
		MaxDescriptionLength:    c.MaxDescriptionLength,
		TicksPerDay:             c.TicksPerDay,
	}
}

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
