// Package config loads service configuration from an optional YAML file
// and SEQNUM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// EnvPrefix is prepended to every environment override, e.g.
// SEQNUM_DATABASE_URL for database.url.
const EnvPrefix = "SEQNUM"

type Config struct {
	HTTP     HTTPConfig
	Log      LogConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Auth     AuthConfig
	Sequence SequenceConfig
	Metrics  MetricsConfig
	Cache    CacheConfig
}

type HTTPConfig struct {
	Port            string
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level       string
	Development bool
}

type DatabaseConfig struct {
	URL             string
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ApplicationName string        `mapstructure:"application_name"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
}

type StorageConfig struct {
	Driver string
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	// Required rejects requests without a bearer token.
	Required bool
	Issuer   string
	// TokenTTL is the lifetime of tokens issued by seqctl token.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type SequenceConfig struct {
	// DefaultTimezone applies to calls that carry no timezone.
	DefaultTimezone string `mapstructure:"default_timezone"`
}

type MetricsConfig struct {
	Enabled bool
}

type CacheConfig struct {
	// Enabled caches definitions by code, invalidated by NOTIFY.
	Enabled bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.shutdown_timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.application_name", "seqnum")
	v.SetDefault("database.lock_timeout", "5s")
	v.SetDefault("storage.driver", DriverPostgres)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.required", false)
	v.SetDefault("auth.issuer", "seqnum")
	v.SetDefault("auth.token_ttl", "15m")
	v.SetDefault("sequence.default_timezone", "UTC")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("cache.enabled", false)
}

// Load reads configuration. path names a YAML file and may be empty;
// environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks combinations Load cannot express as defaults.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if _, err := time.LoadLocation(c.Sequence.DefaultTimezone); err != nil {
		return fmt.Errorf("sequence.default_timezone: %w", err)
	}
	if c.Auth.Required && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required when auth.required is set")
	}
	return nil
}
