// Package config loads runtime settings from the environment.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"slotmanager/internal/domain/schedule"
)

// Prefix is prepended to every variable name.
const Prefix = "SLOTS_"

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`
	Env  string `env:"ENV" envDefault:"development"`

	Store    string `env:"STORE" envDefault:"sqlite"`
	DBPath   string `env:"DB_PATH" envDefault:"slots.db"`
	MongoURI string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB  string `env:"MONGO_DB" envDefault:"slot_manager"`

	Day      string `env:"DAY" envDefault:"wednesday"`
	Start    string `env:"START" envDefault:"19:00"`
	End      string `env:"END" envDefault:"20:00"`
	Timezone string `env:"TIMEZONE" envDefault:"Local"`

	MaxOccupancy int `env:"MAX_OCCUPANCY" envDefault:"10"`
	MaxGuests    int `env:"MAX_GUESTS" envDefault:"5"`

	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`
	StoreRetries uint          `env:"STORE_RETRIES" envDefault:"3"`

	IdentityHeader string `env:"IDENTITY_HEADER" envDefault:"X-Remote-User"`
	CSRFKey        string `env:"CSRF_KEY"`
	RateLimit      int    `env:"RATE_LIMIT" envDefault:"10"`

	SlowQueryMs   int `env:"SLOW_QUERY_MS" envDefault:"50"`
	SlowRequestMs int `env:"SLOW_REQUEST_MS" envDefault:"200"`

	ResendKey  string `env:"RESEND_KEY"`
	ResendFrom string `env:"RESEND_FROM" envDefault:"Weekly Football <noreply@example.com>"`
	ReplyTo    string `env:"REPLY_TO"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`

	FounderEmail string `env:"FOUNDER_EMAIL"`
	FounderName  string `env:"FOUNDER_NAME" envDefault:"Founder"`
}

// Load reads optional .env files (default ".env") then parses SLOTS_* variables.
// Variables already set in the environment win over the file.
// POST: Returns a validated Config or an error naming the bad setting
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that can be wrong independently of the host.
func (c Config) Validate() error {
	switch c.Store {
	case StoreSQLite, StoreMongo:
	default:
		return fmt.Errorf("%sSTORE must be %q or %q, got %q", Prefix, StoreSQLite, StoreMongo, c.Store)
	}
	rule, err := c.Rule()
	if err != nil {
		return err
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if c.MaxOccupancy < 0 {
		return fmt.Errorf("%sMAX_OCCUPANCY cannot be negative", Prefix)
	}
	if c.MaxGuests < 0 {
		return fmt.Errorf("%sMAX_GUESTS cannot be negative", Prefix)
	}
	if c.StoreRetries == 0 {
		return fmt.Errorf("%sSTORE_RETRIES must be at least 1", Prefix)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("%sSTORE_TIMEOUT must be positive", Prefix)
	}
	if c.IsProduction() && c.CSRFKey == "" {
		return fmt.Errorf("%sCSRF_KEY is required in production", Prefix)
	}
	if c.CSRFKey != "" {
		if _, err := c.CSRFKeyBytes(); err != nil {
			return err
		}
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves the configured IANA time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%sTIMEZONE: %w", Prefix, err)
	}
	return loc, nil
}

// Rule builds the weekly schedule rule.
func (c Config) Rule() (schedule.Rule, error) {
	loc, err := c.Location()
	if err != nil {
		return schedule.Rule{}, err
	}
	return schedule.Rule{Day: c.Day, StartTime: c.Start, EndTime: c.End, Location: loc}, nil
}

// CSRFKeyBytes decodes the hex CSRF key. gorilla/csrf wants 32 bytes.
func (c Config) CSRFKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.CSRFKey)
	if err != nil {
		return nil, fmt.Errorf("%sCSRF_KEY must be hex: %w", Prefix, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%sCSRF_KEY must decode to 32 bytes, got %d", Prefix, len(key))
	}
	return key, nil
}
