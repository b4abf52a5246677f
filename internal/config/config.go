// Package config loads gateway settings from an optional YAML file and
// FREESTREAM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const envPrefix = "FREESTREAM"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Watchmode WatchmodeConfig `mapstructure:"watchmode"`
	TMDB      TMDBConfig      `mapstructure:"tmdb"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
}

type ServerConfig struct {
	Port               string        `mapstructure:"port" validate:"required,numeric"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	AdminRatePerMinute int           `mapstructure:"admin_rate_per_minute" validate:"min=1"`
}

type LogConfig struct {
	Env        string `mapstructure:"env"`
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"min=0"`
}

type CacheConfig struct {
	Backend         string        `mapstructure:"backend" validate:"oneof=memory redis bolt"`
	Prefix          string        `mapstructure:"prefix"`
	BoltPath        string        `mapstructure:"bolt_path"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
	// ListTTL and SearchTTL are clamped into their allowed ranges later.
	ListTTL   time.Duration `mapstructure:"list_ttl" validate:"min=0"`
	SearchTTL time.Duration `mapstructure:"search_ttl" validate:"min=0"`
	VersionID string        `mapstructure:"version_id" validate:"required,excludesall=:"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

type WatchmodeConfig struct {
	BaseURL    string        `mapstructure:"base_url" validate:"required,url"`
	APIKey     string        `mapstructure:"api_key" validate:"required"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0,max=5"`
}

type TMDBConfig struct {
	BaseURL   string `mapstructure:"base_url" validate:"omitempty,url"`
	ReadToken string `mapstructure:"read_token"`
}

type SnapshotConfig struct {
	Secret    string        `mapstructure:"secret"`
	Regions   []string      `mapstructure:"regions" validate:"min=1,dive,len=2,alpha"`
	PageSize  int           `mapstructure:"page_size" validate:"min=1,max=250"`
	PageDelay time.Duration `mapstructure:"page_delay" validate:"gt=0"`
	MaxPages  int           `mapstructure:"max_pages" validate:"min=1"`
	// Schedule is a cron expression; empty disables the scheduled refresh.
	Schedule       string `mapstructure:"schedule"`
	RefreshOnStart bool   `mapstructure:"refresh_on_start"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.admin_rate_per_minute", 6)

	v.SetDefault("log.env", "production")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.prefix", "freestream")
	v.SetDefault("cache.bolt_path", "data/cache.db")
	v.SetDefault("cache.cleanup_interval", time.Minute)
	v.SetDefault("cache.list_ttl", time.Hour)
	v.SetDefault("cache.search_ttl", 15*time.Minute)
	v.SetDefault("cache.version_id", "v1")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("watchmode.base_url", "https://api.watchmode.com/v1")
	v.SetDefault("watchmode.api_key", "")
	v.SetDefault("watchmode.timeout", 15*time.Second)
	v.SetDefault("watchmode.max_retries", 2)

	v.SetDefault("tmdb.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("tmdb.read_token", "")

	v.SetDefault("snapshot.secret", "")
	v.SetDefault("snapshot.regions", []string{"US", "GB", "CA", "AU"})
	v.SetDefault("snapshot.page_size", 250)
	v.SetDefault("snapshot.page_delay", 400*time.Millisecond)
	v.SetDefault("snapshot.max_pages", 400)
	v.SetDefault("snapshot.schedule", "0 4 * * *")
	v.SetDefault("snapshot.refresh_on_start", false)
}

// Load reads path (or freestream.yaml from the working directory or
// /etc/freestream when path is empty), applies environment overrides such as
// FREESTREAM_WATCHMODE_API_KEY, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("freestream")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/freestream")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// no file, defaults and env only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	for i, r := range cfg.Snapshot.Regions {
		cfg.Snapshot.Regions[i] = strings.ToUpper(strings.TrimSpace(r))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Cache.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("invalid config: redis.addr is required for the redis cache backend")
	}
	if c.Cache.Backend == "bolt" && c.Cache.BoltPath == "" {
		return errors.New("invalid config: cache.bolt_path is required for the bolt cache backend")
	}
	return nil
}
