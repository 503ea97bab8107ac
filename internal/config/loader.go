package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envKeys are bound to the environment variable of the same name, upper-cased.
var envKeys = []string{
	"jwt_secret",
	"api_keys",
	"ssh_dir",
	"ssh_binary",
	"api_host",
	"api_port",
	"max_request_bytes",
	"read_timeout",
	"idle_timeout",
	"shutdown_timeout",
	"log_level",
	"log_format",
	"log_file",
}

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
	envFiles   []string
	overrides  map[string]any

	dotenvLoaded bool
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		overrides: make(map[string]any),
	}
}

// SetConfigFile sets an explicit YAML config file path.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// SetEnvFiles sets the dotenv files loaded before reading the environment.
// Without any, ".env" in the working directory is tried.
func (l *Loader) SetEnvFiles(paths ...string) {
	l.envFiles = paths
}

// SetDefault overrides a built-in default, e.g. the ssh_dir fallback.
func (l *Loader) SetDefault(key string, value any) {
	l.overrides[key] = value
}

// Load loads configuration with precedence:
// defaults < config file < .env < environment.
func (l *Loader) Load() (*Config, error) {
	if err := godotenv.Load(l.envFiles...); err != nil {
		if len(l.envFiles) > 0 {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		l.dotenvLoaded = true
	}

	cfg := DefaultConfig()
	l.setDefaults(cfg)

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	for _, key := range envKeys {
		if err := l.v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// DotenvLoaded reports whether the last Load read a dotenv file. Load runs
// before logging is configured, so callers log this themselves.
func (l *Loader) DotenvLoaded() bool {
	return l.dotenvLoaded
}

func (l *Loader) setDefaults(cfg *Config) {
	v := l.v
	v.SetDefault("jwt_secret", cfg.JWTSecret)
	v.SetDefault("api_keys", cfg.APIKeys)
	v.SetDefault("ssh_dir", cfg.SSHDir)
	v.SetDefault("ssh_binary", cfg.SSHBinary)
	v.SetDefault("api_host", cfg.APIHost)
	v.SetDefault("api_port", cfg.APIPort)
	v.SetDefault("max_request_bytes", cfg.MaxRequestBytes)
	v.SetDefault("read_timeout", cfg.ReadTimeout)
	v.SetDefault("idle_timeout", cfg.IdleTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("log_file", cfg.LogFile)

	for key, value := range l.overrides {
		v.SetDefault(key, value)
	}
}
