package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultListen is the default API listen address.
	DefaultListen = ":8080"

	// DefaultDatabaseDriver is used when no driver is configured.
	DefaultDatabaseDriver = "sqlite"

	// DefaultSQLitePath is the default SQLite database file.
	DefaultSQLitePath = "./promotoor.db"

	// DefaultImageMaxBytes caps uploaded promotion level and validation
	// stamp images at 16 KiB.
	DefaultImageMaxBytes = 16 * 1024

	// DefaultPageSize is the default pagination count for listings.
	DefaultPageSize = 20
)

// Config is the root configuration for promotoor.
type Config struct {
	Global GlobalConfig `yaml:"global" mapstructure:"global"`
	API    *APIConfig   `yaml:"api,omitempty" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// Load reads configuration files in order, later files overriding
// earlier ones, and applies PROMOTOOR_* environment overrides.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PROMOTOOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for i, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening config file %q: %w", path, err)
		}

		if i == 0 {
			err = v.ReadConfig(f)
		} else {
			err = v.MergeConfig(f)
		}

		f.Close()

		if err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.API != nil {
		c.API.applyDefaults()
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.API != nil {
		if err := c.API.Validate(); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	return nil
}

// Default returns a configuration populated with defaults, suitable for
// writing out as a starter config file.
func Default() *Config {
	cfg := &Config{
		API: &APIConfig{},
	}
	cfg.applyDefaults()

	return cfg
}

// WriteFile marshals the configuration to YAML at the given path. It
// refuses to overwrite an existing file.
func (c *Config) WriteFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %q already exists", path)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}

	return nil
}
