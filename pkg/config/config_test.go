package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
global:
  log_level: info
api:
  server:
    listen: ":9090"
  auth:
    anonymous_read: true
    accounts:
      - username: admin
        password: admin-secret
        role: admin
  database:
    driver: sqlite
    sqlite:
      path: ./test.db
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configPath := writeTestConfig(t, testConfig)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t, ":9090", cfg.API.Server.Listen)
				assert.Equal(t, "./test.db", cfg.API.Database.SQLite.Path)
			},
		},
		{
			name: "string override - log_level",
			envVars: map[string]string{
				"PROMOTOOR_GLOBAL_LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Global.LogLevel)
			},
		},
		{
			name: "nested override - server listen",
			envVars: map[string]string{
				"PROMOTOOR_API_SERVER_LISTEN": ":7070",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ":7070", cfg.API.Server.Listen)
			},
		},
		{
			name: "nested override - sqlite path",
			envVars: map[string]string{
				"PROMOTOOR_API_DATABASE_SQLITE_PATH": "/tmp/other.db",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/tmp/other.db", cfg.API.Database.SQLite.Path)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)
			require.NotNil(t, cfg.API)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_DefaultsAppliedWhenEmpty(t *testing.T) {
	configPath := writeTestConfig(t, "api:\n  database: {}\n")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg.API)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultListen, cfg.API.Server.Listen)
	assert.Equal(t, DefaultDatabaseDriver, cfg.API.Database.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.API.Database.SQLite.Path)
	assert.Equal(t, DefaultImageMaxBytes, cfg.API.Images.MaxBytes)
}

func TestLoad_MergeOverridesEarlierFiles(t *testing.T) {
	base := writeTestConfig(t, testConfig)
	override := writeTestConfig(t, "api:\n  server:\n    listen: \":6060\"\n")

	cfg, err := Load(base, override)
	require.NoError(t, err)
	require.NotNil(t, cfg.API)

	assert.Equal(t, ":6060", cfg.API.Server.Listen)
	assert.Equal(t, "./test.db", cfg.API.Database.SQLite.Path)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening config file")
}

func TestAPIConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(cfg *APIConfig)
		wantErr   bool
		errSubstr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(cfg *APIConfig) {},
		},
		{
			name: "unknown driver",
			mutate: func(cfg *APIConfig) {
				cfg.Database.Driver = "oracle"
			},
			wantErr:   true,
			errSubstr: "unknown database driver",
		},
		{
			name: "postgres without host",
			mutate: func(cfg *APIConfig) {
				cfg.Database.Driver = "postgres"
				cfg.Database.Postgres.Database = "promotoor"
			},
			wantErr:   true,
			errSubstr: "postgres host is required",
		},
		{
			name: "account without password",
			mutate: func(cfg *APIConfig) {
				cfg.Auth.Accounts = []SeedAccount{
					{Username: "admin", Role: "admin"},
				}
			},
			wantErr:   true,
			errSubstr: "password is required",
		},
		{
			name: "duplicate account username",
			mutate: func(cfg *APIConfig) {
				cfg.Auth.Accounts = []SeedAccount{
					{Username: "admin", Password: "x", Role: "admin"},
					{Username: "admin", Password: "y", Role: "user"},
				}
			},
			wantErr:   true,
			errSubstr: "duplicate username",
		},
		{
			name: "unknown role",
			mutate: func(cfg *APIConfig) {
				cfg.Auth.Accounts = []SeedAccount{
					{Username: "admin", Password: "x", Role: "superuser"},
				}
			},
			wantErr:   true,
			errSubstr: "unknown role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &APIConfig{}
			cfg.applyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_WriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	require.NoError(t, cfg.WriteFile(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded.API)
	assert.Equal(t, DefaultListen, loaded.API.Server.Listen)

	// Refuses to overwrite.
	err = cfg.WriteFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
