// Package config loads server settings from the environment and an optional
// .env file.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/ulule/limiter/v3"

	"github.com/mmynk/splitton/internal/currency"
)

const devJWTSecret = "splitton-dev-secret-change-me"

// Config holds application configuration.
type Config struct {
	Port     int
	DBPath   string
	LogLevel string

	JWTSecret string
	JWTTTL    time.Duration

	RateAPIURL string
	RateTTL    time.Duration

	SettlementUnit string
	TransferDelay  time.Duration
	RailURL        string
	RailSender     string

	SyncInterval    time.Duration
	SyncMaxAttempts int
	ArchiveAfter    time.Duration

	// AuthRateLimit uses the limiter format, e.g. "10-M" for ten per minute.
	AuthRateLimit string
}

// Load reads configuration from environment variables, after loading .env
// if one exists. Real environment variables win over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_PATH", "./data/splitton.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("RATE_API_URL", "https://api.coingecko.com/api/v3")
	v.SetDefault("RATE_TTL", "5m")
	v.SetDefault("SETTLEMENT_UNIT", currency.TON)
	v.SetDefault("TRANSFER_DELAY", "2s")
	v.SetDefault("RAIL_URL", "")
	v.SetDefault("RAIL_SENDER", "")
	v.SetDefault("SYNC_INTERVAL", "30s")
	v.SetDefault("SYNC_MAX_ATTEMPTS", 3)
	v.SetDefault("ARCHIVE_AFTER", "720h")
	v.SetDefault("AUTH_RATE_LIMIT", "10-M")
	v.AutomaticEnv()

	cfg := &Config{
		Port:            v.GetInt("PORT"),
		DBPath:          v.GetString("DB_PATH"),
		LogLevel:        strings.ToLower(v.GetString("LOG_LEVEL")),
		JWTSecret:       v.GetString("JWT_SECRET"),
		JWTTTL:          v.GetDuration("JWT_TTL"),
		RateAPIURL:      v.GetString("RATE_API_URL"),
		RateTTL:         v.GetDuration("RATE_TTL"),
		SettlementUnit:  strings.ToUpper(v.GetString("SETTLEMENT_UNIT")),
		TransferDelay:   v.GetDuration("TRANSFER_DELAY"),
		RailURL:         v.GetString("RAIL_URL"),
		RailSender:      v.GetString("RAIL_SENDER"),
		SyncInterval:    v.GetDuration("SYNC_INTERVAL"),
		SyncMaxAttempts: v.GetInt("SYNC_MAX_ATTEMPTS"),
		ArchiveAfter:    v.GetDuration("ARCHIVE_AFTER"),
		AuthRateLimit:   v.GetString("AUTH_RATE_LIMIT"),
	}

	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set, using an insecure development secret")
		cfg.JWTSecret = devJWTSecret
	}
	if cfg.RailURL == "" || cfg.RailSender == "" {
		slog.Warn("RAIL_URL or RAIL_SENDER not set, settlement transfers will fail")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.RateTTL <= 0 {
		return fmt.Errorf("RATE_TTL must be positive")
	}
	if _, ok := currency.Lookup(c.SettlementUnit); !ok {
		return fmt.Errorf("unsupported SETTLEMENT_UNIT %q", c.SettlementUnit)
	}
	if c.TransferDelay < 0 {
		return fmt.Errorf("TRANSFER_DELAY must not be negative")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive")
	}
	if c.SyncMaxAttempts < 1 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be at least 1")
	}
	if _, err := limiter.NewRateFromFormatted(c.AuthRateLimit); err != nil {
		return fmt.Errorf("invalid AUTH_RATE_LIMIT %q: %w", c.AuthRateLimit, err)
	}
	return nil
}
