// Package config loads spendlens configuration through viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/spendlens/internal/common"
	"github.com/Veraticus/spendlens/internal/plaid"
	"github.com/Veraticus/spendlens/internal/storage"
	"github.com/Veraticus/spendlens/internal/truelayer"
)

// DefaultDatabasePath is used when no database path is configured.
const DefaultDatabasePath = "$HOME/.local/share/spendlens/spendlens.db"

// Config is the complete application configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	User       UserConfig       `mapstructure:"user"`
	Challenges ChallengesConfig `mapstructure:"challenges"`
	TrueLayer  TrueLayerConfig  `mapstructure:"truelayer"`
	Plaid      PlaidConfig      `mapstructure:"plaid"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// UserConfig identifies the local user.
type UserConfig struct {
	ID string `mapstructure:"id"`
}

// ChallengesConfig holds challenge evaluation settings.
type ChallengesConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// TrueLayerConfig holds TrueLayer credentials.
type TrueLayerConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Environment  string `mapstructure:"environment"`
	RedirectURL  string `mapstructure:"redirect_url"`
	RefreshToken string `mapstructure:"refresh_token"`
	AccountID    string `mapstructure:"account_id"`
}

// PlaidConfig holds Plaid credentials.
type PlaidConfig struct {
	ClientID    string `mapstructure:"client_id"`
	Secret      string `mapstructure:"secret"`
	Environment string `mapstructure:"environment"`
	AccessToken string `mapstructure:"access_token"`
	AccountID   string `mapstructure:"account_id"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", storage.DriverSQLite)
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("user.id", "local")
	v.SetDefault("challenges.timezone", "Local")
	v.SetDefault("truelayer.environment", "sandbox")
	v.SetDefault("plaid.environment", "sandbox")
}

// Load reads the configuration from v. It follows this precedence:
// 1. Viper configuration (from config file, flags or SPENDLENS_ env vars)
// 2. Provider environment variables (TRUELAYER_*, PLAID_*)
// 3. Default values
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	fromEnv(&cfg.TrueLayer.ClientID, "TRUELAYER_CLIENT_ID")
	fromEnv(&cfg.TrueLayer.ClientSecret, "TRUELAYER_CLIENT_SECRET")
	fromEnv(&cfg.TrueLayer.RefreshToken, "TRUELAYER_REFRESH_TOKEN")
	fromEnv(&cfg.Plaid.ClientID, "PLAID_CLIENT_ID")
	fromEnv(&cfg.Plaid.Secret, "PLAID_SECRET")
	fromEnv(&cfg.Plaid.AccessToken, "PLAID_ACCESS_TOKEN")

	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Database.Driver)); driver {
	case "", "sqlite":
		cfg.Database.Driver = storage.DriverSQLite
	case "postgres", "postgresql":
		cfg.Database.Driver = storage.DriverPostgres
	default:
		cfg.Database.Driver = driver
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func fromEnv(field *string, key string) {
	if *field == "" {
		*field = os.Getenv(key)
	}
}

// Validate checks the sections every command depends on. Provider
// credentials are validated by the provider clients when used.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case storage.DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database.path is required for sqlite", common.ErrMissingConfig)
		}
	case storage.DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn is required for postgres", common.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported database driver %q", common.ErrInvalidConfig, c.Database.Driver)
	}

	if strings.TrimSpace(c.User.ID) == "" {
		return fmt.Errorf("%w: user.id is required", common.ErrMissingConfig)
	}

	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// StorageConfig returns the storage.Open configuration.
func (c *Config) StorageConfig() storage.Config {
	if c.Database.Driver == storage.DriverSQLite {
		return storage.Config{Driver: storage.DriverSQLite, DSN: c.Database.Path}
	}
	return storage.Config{Driver: storage.DriverPostgres, DSN: c.Database.DSN}
}

// Location resolves the challenge timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Challenges.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Challenges.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: challenges.timezone %q: %w", common.ErrInvalidConfig, c.Challenges.Timezone, err)
	}
	return loc, nil
}

// TrueLayerClientConfig converts the section to a client configuration.
func (c *Config) TrueLayerClientConfig() truelayer.Config {
	return truelayer.Config{
		ClientID:     c.TrueLayer.ClientID,
		ClientSecret: c.TrueLayer.ClientSecret,
		Environment:  c.TrueLayer.Environment,
		RedirectURL:  c.TrueLayer.RedirectURL,
		RefreshToken: c.TrueLayer.RefreshToken,
	}
}

// PlaidClientConfig converts the section to a client configuration.
func (c *Config) PlaidClientConfig() *plaid.Config {
	return &plaid.Config{
		ClientID:    c.Plaid.ClientID,
		Secret:      c.Plaid.Secret,
		Environment: c.Plaid.Environment,
		AccessToken: c.Plaid.AccessToken,
		AccountID:   c.Plaid.AccountID,
	}
}
