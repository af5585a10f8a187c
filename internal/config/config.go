// Package config reads service settings from a YAML file or the environment.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/redis/go-redis/v9"
)

const (
	BackendRedis = "redis"
	BackendTable = "table"
)

type Config struct {
	ListenAddr      string        `yaml:"listen_addr" env:"LISTEN_ADDR" env-default:":8081"`
	TasksAPIURL     string        `yaml:"tasks_api_url" env:"TASKS_API_URL" env-default:"http://localhost:8080"`
	TasksAPITimeout time.Duration `yaml:"tasks_api_timeout" env:"TASKS_API_TIMEOUT" env-default:"10s"`

	RedisConnectionString   string        `yaml:"redis_connection_string" env:"REDIS_CONNECTION_STRING"`
	SessionBackend          string        `yaml:"session_backend" env:"SESSION_BACKEND" env-default:"redis"`
	StorageConnectionString string        `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	SessionsTable           string        `yaml:"sessions_table" env:"SESSIONS_TABLE" env-default:"sessions"`
	SessionTTL              time.Duration `yaml:"session_ttl" env:"SESSION_TTL" env-default:"12h"`
	UserCacheTTL            time.Duration `yaml:"user_cache_ttl" env:"USER_CACHE_TTL" env-default:"5m"`

	JWKSURL       string `yaml:"jwks_url" env:"JWKS_URL"`
	TokenSecret   string `yaml:"token_secret" env:"TOKEN_SECRET"`
	TokenAudience string `yaml:"token_audience" env:"TOKEN_AUDIENCE"`
	TokenIssuer   string `yaml:"token_issuer" env:"TOKEN_ISSUER"`

	DisplayTimezone string `yaml:"display_timezone" env:"DISPLAY_TIMEZONE" env-default:"Local"`
	DateTimeLayout  string `yaml:"date_time_layout" env:"DATE_TIME_LAYOUT" env-default:"Jan 2, 2006, 3:04:05 PM"`
	DayLabelLayout  string `yaml:"day_label_layout" env:"DAY_LABEL_LAYOUT" env-default:"Mon, Jan 2, 2006"`

	Debug bool `yaml:"debug" env:"DEBUG" env-default:"false"`
}

// Load reads path when it exists and falls back to the environment otherwise.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("read env: %w", err)
		}
		return cfg, cfg.Validate()
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("read env: %w", err)
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings that have no usable default.
func (c Config) Validate() error {
	if c.TasksAPIURL == "" {
		return errors.New("missing TASKS_API_URL")
	}
	if c.TasksAPITimeout <= 0 {
		return errors.New("invalid TASKS_API_TIMEOUT: must be greater than zero")
	}
	switch c.SessionBackend {
	case BackendRedis:
		if c.RedisConnectionString == "" {
			return errors.New("missing redis config")
		}
	case BackendTable:
		if c.StorageConnectionString == "" || c.SessionsTable == "" {
			return errors.New("missing storage config")
		}
	default:
		return fmt.Errorf("invalid SESSION_BACKEND %q", c.SessionBackend)
	}
	if c.SessionTTL < 0 || c.UserCacheTTL < 0 {
		return errors.New("invalid ttl: must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid DISPLAY_TIMEZONE: %w", err)
	}
	return nil
}

// Location resolves DisplayTimezone.
func (c Config) Location() (*time.Location, error) {
	if c.DisplayTimezone == "" || c.DisplayTimezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.DisplayTimezone)
}

// RedisOptions accepts a redis:// URL or the "host:port,password=...,ssl=true" form.
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("missing redis config")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	if opts.Addr == "" {
		return nil, fmt.Errorf("invalid redis connection string %q", conn)
	}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
