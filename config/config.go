package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the runtime configuration read from the environment
type Config struct {
	Port int `mapstructure:"port"`

	DatabaseDriver string `mapstructure:"database_driver"`
	DatabaseURL    string `mapstructure:"database_url"`

	// RedisAddr empty selects the in-process cache
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	CachePrefix   string `mapstructure:"cache_prefix"`

	DataVersion int           `mapstructure:"data_version"`
	AlgoVersion int           `mapstructure:"algo_version"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`

	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	// TrustProxyHeaders keys rate limits on X-Forwarded-For / X-Real-IP
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogDir    string `mapstructure:"log_dir"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SeedFile       string   `mapstructure:"seed_file"`
}

var defaults = map[string]interface{}{
	"port":                  8080,
	"database_driver":       "postgres",
	"database_url":          "postgres://localhost:5432/climate_data?sslmode=disable",
	"redis_addr":            "",
	"redis_password":        "",
	"redis_db":              0,
	"cache_prefix":          "climate:",
	"data_version":          1,
	"algo_version":          1,
	"cache_ttl":             "600s",
	"rate_limit_per_minute": 10,
	"trust_proxy_headers":   false,
	"log_level":             "info",
	"log_format":            "json",
	"log_dir":               "",
	"allowed_origins":       []string{"*"},
	"seed_file":             "data/sample_data.json",
}

// Load reads optional dotenv files, then the environment. A missing
// dotenv file is not an error.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.AllowedOrigins = splitOrigins(cfg.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if c.DataVersion <= 0 {
		return fmt.Errorf("DATA_VERSION must be a positive integer, got %d", c.DataVersion)
	}
	if c.AlgoVersion <= 0 {
		return fmt.Errorf("ALGO_VERSION must be a positive integer, got %d", c.AlgoVersion)
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL)
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimitPerMinute)
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}
