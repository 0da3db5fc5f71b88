package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SEQNUM_STORAGE_DRIVER", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Database.LockTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, "UTC", cfg.Sequence.DefaultTimezone)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Auth.Required)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seqnum.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: "9090"
database:
  url: postgres://file/seq
  max_conns: 4
sequence:
  default_timezone: Europe/Brussels
`), 0o600))

	t.Setenv("SEQNUM_DATABASE_URL", "postgres://env/seq")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, "postgres://env/seq", cfg.Database.URL)
	assert.Equal(t, int32(4), cfg.Database.MaxConns)
	assert.Equal(t, "Europe/Brussels", cfg.Sequence.DefaultTimezone)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"postgres without url", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }, "unknown storage driver"},
		{"bad timezone", func(c *Config) { c.Sequence.DefaultTimezone = "Mars/Olympus" }, "default_timezone"},
		{"auth without secret", func(c *Config) { c.Auth.Required = true }, "jwt_secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Database: DatabaseConfig{URL: "postgres://x"},
				Storage:  StorageConfig{Driver: DriverPostgres},
				Sequence: SequenceConfig{DefaultTimezone: "UTC"},
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
