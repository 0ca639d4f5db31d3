// Package config loads client settings from iaeco.yaml and IAECO_* variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Token store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQL    = "sql"
	StoreRedis  = "redis"
)

type API struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
}

type TokenStore struct {
	Kind   string `mapstructure:"kind"`
	Path   string `mapstructure:"path"`
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Redis  struct {
		Addr   string `mapstructure:"addr"`
		Prefix string `mapstructure:"prefix"`
	} `mapstructure:"redis"`
}

type Poll struct {
	Interval time.Duration `mapstructure:"interval"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type Status struct {
	Listen string `mapstructure:"listen"`
}

type Config struct {
	API    API        `mapstructure:"api"`
	Tokens TokenStore `mapstructure:"tokens"`
	Poll   Poll       `mapstructure:"poll"`
	Status Status     `mapstructure:"status"`
}

// Load reads file (or iaeco.yaml from the working directory and the user config
// dir when file is empty), then applies IAECO_* overrides such as
// IAECO_API_BASE_URL or IAECO_TOKENS_KIND.
func Load(file string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("iaeco")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "iaeco"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read: %w", err)
		}
	}

	v.SetEnvPrefix("IAECO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000/api/v1")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("api.rate_limit", 10.0)
	v.SetDefault("api.burst", 20)
	v.SetDefault("tokens.kind", StoreFile)
	v.SetDefault("tokens.path", defaultTokenPath())
	v.SetDefault("tokens.driver", "sqlite")
	v.SetDefault("tokens.dsn", "")
	v.SetDefault("tokens.redis.addr", "localhost:6379")
	v.SetDefault("tokens.redis.prefix", "iaeco:")
	v.SetDefault("poll.interval", 5*time.Minute)
	v.SetDefault("poll.debounce", 500*time.Millisecond)
	v.SetDefault("status.listen", "127.0.0.1:9464")
}

func defaultTokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "iaeco-tokens.json"
	}
	return filepath.Join(dir, "iaeco", "tokens.json")
}

// Validate checks the settings that cannot be defaulted.
func (c Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: api.base_url %q is not an absolute URL", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return errors.New("config: api.timeout must be positive")
	}
	switch c.Tokens.Kind {
	case StoreMemory:
	case StoreFile:
		if c.Tokens.Path == "" {
			return errors.New("config: tokens.path required for the file store")
		}
	case StoreSQL:
		if c.Tokens.Driver != "pgx" && c.Tokens.Driver != "sqlite" {
			return fmt.Errorf("config: tokens.driver %q unsupported (pgx, sqlite)", c.Tokens.Driver)
		}
		if c.Tokens.DSN == "" {
			return errors.New("config: tokens.dsn required for the sql store")
		}
	case StoreRedis:
		if c.Tokens.Redis.Addr == "" {
			return errors.New("config: tokens.redis.addr required for the redis store")
		}
	default:
		return fmt.Errorf("config: unknown tokens.kind %q", c.Tokens.Kind)
	}
	if c.Poll.Interval <= 0 || c.Poll.Debounce < 0 {
		return errors.New("config: poll.interval must be positive and poll.debounce non-negative")
	}
	return nil
}
