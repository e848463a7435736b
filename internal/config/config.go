// Package config loads authctl settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

// Config is the authctl configuration.
type Config struct {
	// Verbose enables trace logging
	Verbose bool `env:"AUTH_VERBOSE" envDefault:"false"`

	API       APIConfig       `envPrefix:"AUTH_API_"`
	Store     StoreConfig     `envPrefix:"AUTH_STORE_"`
	Redis     RedisConfig     `envPrefix:"AUTH_REDIS_"`
	DevServer DevServerConfig `envPrefix:"AUTH_DEV_"`
}

// APIConfig points at the library backend.
type APIConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"http://localhost:8573"`
	Timeout time.Duration `env:"TIMEOUT"  envDefault:"10s"`
}

// StoreConfig controls where the credential is kept.
type StoreConfig struct {
	DSN  string `env:"DSN"  envDefault:"file:authctl.db?cache=shared"`
	Slot string `env:"SLOT" envDefault:"default"`
	// PollInterval is how often watchers check the shared store.
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
}

// RedisConfig enables the cross-process signal bridge when Addr is set.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB"      envDefault:"0"`
	Channel  string `env:"CHANNEL" envDefault:"auth:signals"`
}

// Enabled reports whether a redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// DevServerConfig drives the serve-dev command.
type DevServerConfig struct {
	Addr       string        `env:"ADDR"        envDefault:":8573"`
	SigningKey string        `env:"SIGNING_KEY" envDefault:"dev-signing-key"`
	Issuer     string        `env:"ISSUER"      envDefault:"authctl-dev"`
	TokenTTL   time.Duration `env:"TOKEN_TTL"   envDefault:"1h"`
	CodeTTL    time.Duration `env:"CODE_TTL"    envDefault:"15m"`
	// SeedFile is an optional JSON list of users to load at startup.
	SeedFile string `env:"SEED_FILE"`
}

// Load reads the optional .env files, then the environment. Without paths
// godotenv looks for .env in the working directory; a missing file is not
// an error.
func Load(paths ...string) (Config, error) {
	if err := godotenv.Load(paths...); err != nil {
		var pathErr *os.PathError
		if !goerrors.As(err, &pathErr) {
			return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to load .env file")
		}
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse config")
	}

	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Sanitize trims values loaded from the environment.
func (c *Config) Sanitize() {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	c.Store.DSN = strings.TrimSpace(c.Store.DSN)
	c.Store.Slot = strings.TrimSpace(c.Store.Slot)
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	c.Redis.Channel = strings.TrimSpace(c.Redis.Channel)
}

// Validate will run validation rules
func (c Config) Validate() error {
	errs := validation.Errors{
		"AUTH_API_BASE_URL":        validation.Validate(c.API.BaseURL, validation.Required, is.URL),
		"AUTH_API_TIMEOUT":         validation.Validate(c.API.Timeout, validation.Required, validation.Min(time.Millisecond)),
		"AUTH_STORE_DSN":           validation.Validate(c.Store.DSN, validation.Required),
		"AUTH_STORE_SLOT":          validation.Validate(c.Store.Slot, validation.Required, validation.Length(1, 64)),
		"AUTH_STORE_POLL_INTERVAL": validation.Validate(c.Store.PollInterval, validation.Required, validation.Min(10*time.Millisecond)),
		"AUTH_DEV_TOKEN_TTL":       validation.Validate(c.DevServer.TokenTTL, validation.Min(time.Duration(0))),
		"AUTH_DEV_CODE_TTL":        validation.Validate(c.DevServer.CodeTTL, validation.Min(time.Duration(0))),
	}
	if c.Redis.Enabled() {
		errs["AUTH_REDIS_CHANNEL"] = validation.Validate(c.Redis.Channel, validation.Required)
	}
	if err := errs.Filter(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration")
	}
	return nil
}
