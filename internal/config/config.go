// Package config loads process-wide settings for the ssh-api binaries.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DevJWTSecret is the fallback secret; servers warn when it is in use.
const DevJWTSecret = "dev-secret"

// Config is read once at startup and treated as immutable afterwards.
type Config struct {
	// JWTSecret verifies HS256 bearer tokens.
	JWTSecret string `mapstructure:"jwt_secret" validate:"required"`

	// APIKeys is the comma separated list of accepted static keys.
	APIKeys string `mapstructure:"api_keys"`

	// SSHDir is the default ssh directory used when a request names none.
	SSHDir string `mapstructure:"ssh_dir" validate:"max=4096"`

	// SSHBinary is the ssh client to execute.
	SSHBinary string `mapstructure:"ssh_binary" validate:"required"`

	// APIHost and APIPort form the HTTP listen address.
	APIHost string `mapstructure:"api_host" validate:"required"`
	APIPort int    `mapstructure:"api_port" validate:"min=1,max=65535"`

	// MaxRequestBytes caps HTTP request bodies.
	MaxRequestBytes int64 `mapstructure:"max_request_bytes" validate:"min=1"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" validate:"oneof=trace debug info warn warning error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=console json"`
	LogFile   string `mapstructure:"log_file"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		JWTSecret:       DevJWTSecret,
		SSHBinary:       "ssh",
		APIHost:         "0.0.0.0",
		APIPort:         8090,
		MaxRequestBytes: 1024 * 1024,
		ReadTimeout:     15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

// Keys returns the configured API keys with blanks dropped.
func (c *Config) Keys() []string {
	var keys []string
	for _, k := range strings.Split(c.APIKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// UsingDevSecret reports whether the insecure fallback secret is active.
func (c *Config) UsingDevSecret() bool {
	return c.JWTSecret == DevJWTSecret
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
