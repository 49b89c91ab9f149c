package config

import (
	"fmt"
)

// APIConfig contains all API server configuration.
type APIConfig struct {
	Server   APIServerConfig `yaml:"server" mapstructure:"server"`
	Auth     APIAuthConfig   `yaml:"auth,omitempty" mapstructure:"auth"`
	Database DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Images   ImageConfig     `yaml:"images,omitempty" mapstructure:"images"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Public        RateLimitTier `yaml:"public,omitempty" mapstructure:"public"`
	Authenticated RateLimitTier `yaml:"authenticated,omitempty" mapstructure:"authenticated"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// APIAuthConfig contains authentication settings.
type APIAuthConfig struct {
	AnonymousRead bool          `yaml:"anonymous_read" mapstructure:"anonymous_read"`
	Accounts      []SeedAccount `yaml:"accounts,omitempty" mapstructure:"accounts"`
}

// SeedAccount defines an account provisioned from configuration.
type SeedAccount struct {
	Username string `yaml:"username" mapstructure:"username"`
	FullName string `yaml:"full_name,omitempty" mapstructure:"full_name"`
	Password string `yaml:"password" mapstructure:"password"`
	Role     string `yaml:"role" mapstructure:"role"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// ImageConfig bounds uploaded entity images.
type ImageConfig struct {
	MaxBytes int `yaml:"max_bytes" mapstructure:"max_bytes"`
}

// validRoles lists the account roles accepted from configuration.
var validRoles = map[string]struct{}{
	"admin":      {},
	"controller": {},
	"user":       {},
}

func (c *APIConfig) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.Public.RequestsPerMinute == 0 {
			c.Server.RateLimit.Public.RequestsPerMinute = 120
		}

		if c.Server.RateLimit.Authenticated.RequestsPerMinute == 0 {
			c.Server.RateLimit.Authenticated.RequestsPerMinute = 600
		}
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDatabaseDriver
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.Database.Driver == "postgres" {
		if c.Database.Postgres.Port == 0 {
			c.Database.Postgres.Port = 5432
		}

		if c.Database.Postgres.SSLMode == "" {
			c.Database.Postgres.SSLMode = "disable"
		}
	}

	if c.Images.MaxBytes == 0 {
		c.Images.MaxBytes = DefaultImageMaxBytes
	}
}

// Validate checks the API configuration for errors.
func (c *APIConfig) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("postgres database is required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	seen := make(map[string]struct{}, len(c.Auth.Accounts))

	for i, a := range c.Auth.Accounts {
		if a.Username == "" {
			return fmt.Errorf("account %d: username is required", i)
		}

		if _, exists := seen[a.Username]; exists {
			return fmt.Errorf("account %d: duplicate username %q", i, a.Username)
		}

		seen[a.Username] = struct{}{}

		if a.Password == "" {
			return fmt.Errorf("account %q: password is required", a.Username)
		}

		if _, ok := validRoles[a.Role]; !ok {
			return fmt.Errorf("account %q: unknown role %q", a.Username, a.Role)
		}
	}

	if c.Images.MaxBytes < 0 {
		return fmt.Errorf("images max_bytes must be positive")
	}

	return nil
}
