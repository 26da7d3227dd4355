// Package config loads fpoadmin configuration.
//
// Sources, lowest precedence first:
//  1. built-in defaults
//  2. fpoadmin.yaml (optional; ".", "./config", "/etc/fpoadmin")
//  3. a .env file (optional), exported into the environment
//  4. FPOADMIN_* environment variables (storage.driver -> FPOADMIN_STORAGE_DRIVER)
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FPOADMIN"

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig  `mapstructure:"server"`
	Storage    StorageConfig `mapstructure:"storage"`
	Blob       BlobConfig    `mapstructure:"blob"`
	Cache      CacheConfig   `mapstructure:"cache"`
	Auth       AuthConfig    `mapstructure:"auth"`
	Log        LogConfig     `mapstructure:"log"`
	Metrics    MetricsConfig `mapstructure:"metrics"`
	Tracing    TracingConfig `mapstructure:"tracing"`
	Gateway    GatewayConfig `mapstructure:"gateway"`
	Archive    ArchiveConfig `mapstructure:"archive"`
	SchemaFile string        `mapstructure:"schema_file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Driver      string `mapstructure:"driver" validate:"oneof=memory sqlite postgres"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" validate:"required_if=Driver postgres"`
}

// BlobConfig selects the archive target.
type BlobConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=fs memory s3"`
	Root     string `mapstructure:"root" validate:"required_if=Driver fs"`
	Bucket   string `mapstructure:"bucket" validate:"required_if=Driver s3"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
	Prefix   string `mapstructure:"prefix"`
}

// CacheConfig configures the record list cache of remote gateways.
type CacheConfig struct {
	Driver        string        `mapstructure:"driver" validate:"oneof=none memory redis"`
	TTL           time.Duration `mapstructure:"ttl" validate:"gte=0"`
	RedisAddr     string        `mapstructure:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" validate:"gte=0"`
}

// AuthConfig configures bearer tokens.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"omitempty,min=16"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// MetricsConfig toggles metrics exporters.
type MetricsConfig struct {
	Prometheus bool `mapstructure:"prometheus"`
	Expvar     bool `mapstructure:"expvar"`
}

// TracingConfig selects a span exporter.
type TracingConfig struct {
	Exporter    string `mapstructure:"exporter" validate:"oneof=none json stdout"`
	ServiceName string `mapstructure:"service_name"`
}

// GatewayConfig points CLI record commands at a remote server. An empty
// BaseURL uses the local store directly.
type GatewayConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"omitempty,url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// ArchiveConfig sizes the export worker pool.
type ArchiveConfig struct {
	Workers int `mapstructure:"workers" validate:"gte=1,lte=64"`
}

// LoadOptions overrides file locations.
type LoadOptions struct {
	// ConfigFile is an explicit YAML file; it must exist when set.
	ConfigFile string
	// EnvFile defaults to ".env"; a missing file is ignored.
	EnvFile string
}

// Load reads configuration from defaults, file and environment.
func Load(opts LoadOptions) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("fpoadmin")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/fpoadmin")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "fpoadmin.db")
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("blob.driver", "fs")
	v.SetDefault("blob.root", "archive")
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.region", "")
	v.SetDefault("blob.endpoint", "")
	v.SetDefault("blob.prefix", "")

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "fpoadmin")
	v.SetDefault("auth.token_ttl", "12h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.prometheus", true)
	v.SetDefault("metrics.expvar", false)

	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.service_name", "fpoadmin")

	v.SetDefault("gateway.base_url", "")
	v.SetDefault("gateway.token", "")
	v.SetDefault("gateway.timeout", "10s")

	v.SetDefault("archive.workers", 4)

	v.SetDefault("schema_file", "")
}
