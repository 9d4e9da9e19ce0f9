package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/notelock/internal/guard"
	"github.com/starford/notelock/internal/i18n"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Lock   LockConfig        `yaml:"lock"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Lock.Validate()
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

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
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

// LockConfig holds the password and relock policy for protected notes.
//
// PasswordHash is a bcrypt hash as printed by "notelock passwd"; leaving it
// empty means no protected note can be unlocked. IdleMinutes of 0 disables
// idle expiry.
type LockConfig struct {
	PasswordHash       string        `yaml:"password_hash"`
	PasswordHint       string        `yaml:"password_hint"`
	IdleMinutes        int           `yaml:"idle_minutes"`
	AutoEncryptOnClose bool          `yaml:"auto_encrypt_on_close"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	Locale             string        `yaml:"locale"`
}

// Validate validates the lock configuration.
func (c *LockConfig) Validate() error {
	c.PasswordHash = strings.TrimSpace(c.PasswordHash)
	return validation.ValidateStruct(c,
		validation.Field(&c.PasswordHash, validation.By(bcryptHash)),
		validation.Field(&c.IdleMinutes, validation.Min(0)),
		validation.Field(&c.SweepInterval, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.Locale, validation.Required, validation.In(toAny(i18n.Supported)...)),
	)
}

// Policy returns the guard policy the configuration starts with.
func (c *LockConfig) Policy() guard.Policy {
	return guard.Policy{
		IdleTimeout:        time.Duration(c.IdleMinutes) * time.Minute,
		AutoEncryptOnClose: c.AutoEncryptOnClose,
	}
}

func bcryptHash(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	if _, err := bcrypt.Cost([]byte(s)); err != nil {
		return errors.New("must be a bcrypt hash")
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
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
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./notelock.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Lock: LockConfig{
			IdleMinutes:   5,
			SweepInterval: time.Second,
			Locale:        "en",
		},
	}
}
