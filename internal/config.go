package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/landchain/internal/photos"
	"github.com/starford/landchain/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Storage StorageConfig     `yaml:"storage"`
	Ledger  LedgerConfig      `yaml:"ledger"`
	Photos  PhotosConfig      `yaml:"photos"`
	Inbox   InboxConfig       `yaml:"inbox"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Photos.Validate(); err != nil {
		return fmt.Errorf("photos: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig selects the ledger backend.
//
// Path is the SQLite database file for the sqlite driver and the snapshot
// directory for the file driver. The redis driver uses RedisURL and
// KeyPrefix instead.
type StorageConfig struct {
	Driver    string `yaml:"driver"`
	Path      string `yaml:"path"`
	RedisURL  string `yaml:"redis_url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = storage.DriverSQLite
	}
	redis := c.Driver == storage.DriverRedis
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.In(storage.DriverSQLite, storage.DriverFile, storage.DriverRedis)),
		validation.Field(&c.Path, validation.When(!redis, validation.Required)),
		validation.Field(&c.RedisURL, validation.When(redis, validation.Required)),
	)
}

// Options converts the section into backend options.
func (c *StorageConfig) Options() storage.Options {
	return storage.Options{
		Driver:    c.Driver,
		Path:      c.Path,
		RedisURL:  c.RedisURL,
		KeyPrefix: c.KeyPrefix,
	}
}

// LedgerConfig holds ledger behaviour switches.
type LedgerConfig struct {
	SeedSamples bool `yaml:"seed_samples"`
}

// PhotosConfig holds the owner photo blob store configuration.
type PhotosConfig struct {
	Path     string `yaml:"path"`
	MaxBytes int64  `yaml:"max_bytes"`
}

// Validate validates the photos configuration.
func (c *PhotosConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.MaxBytes, validation.Min(int64(0))),
	)
}

// InboxConfig holds the application drop directory. An empty path disables
// the inbox.
type InboxConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether the inbox watcher should run.
func (c *InboxConfig) Enabled() bool {
	return c.Path != ""
}

// AuthConfig holds authentication configuration.
//
// Mode controls how write endpoints are protected:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			Driver:    storage.DriverSQLite,
			Path:      "./data/landchain.db",
			KeyPrefix: storage.DefaultKeyPrefix,
		},
		Ledger: LedgerConfig{
			SeedSamples: true,
		},
		Photos: PhotosConfig{
			Path:     "./data/photos",
			MaxBytes: photos.DefaultMaxBytes,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
