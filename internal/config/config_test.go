package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	body := []byte("tasks_api_url: http://api.internal\n" +
		"redis_connection_string: redis://localhost:6379/0\n" +
		"session_ttl: 30m\n" +
		"display_timezone: UTC\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TasksAPIURL != "http://api.internal" {
		t.Fatalf("unexpected api url: %s", cfg.TasksAPIURL)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("unexpected session ttl: %v", cfg.SessionTTL)
	}
	if cfg.SessionBackend != BackendRedis || cfg.ListenAddr != ":8081" {
		t.Fatalf("expected defaults, got %#v", cfg)
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("unexpected location: %v %v", loc, err)
	}
}

func TestLoadFallsBackToEnv(t *testing.T) {
	t.Setenv("TASKS_API_URL", "http://env.internal")
	t.Setenv("SESSION_BACKEND", BackendTable)
	t.Setenv("STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TasksAPIURL != "http://env.internal" || cfg.SessionBackend != BackendTable {
		t.Fatalf("unexpected config: %#v", cfg)
	}
	if cfg.SessionsTable != "sessions" {
		t.Fatalf("expected default table, got %q", cfg.SessionsTable)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		TasksAPIURL:           "http://api",
		TasksAPITimeout:       time.Second,
		SessionBackend:        BackendRedis,
		RedisConnectionString: "localhost:6379",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cases := map[string]func(c *Config){
		"missing redis":  func(c *Config) { c.RedisConnectionString = "" },
		"bad backend":    func(c *Config) { c.SessionBackend = "disk" },
		"table no conn":  func(c *Config) { c.SessionBackend = BackendTable },
		"bad timezone":   func(c *Config) { c.DisplayTimezone = "Mars/Olympus" },
		"zero timeout":   func(c *Config) { c.TasksAPITimeout = 0 },
		"negative ttl":   func(c *Config) { c.SessionTTL = -time.Second },
		"missing apiurl": func(c *Config) { c.TasksAPIURL = "" },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestRedisOptions(t *testing.T) {
	opts, err := RedisOptions("redis://:secret@cache:6380/2")
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected url options: %#v", opts)
	}

	opts, err = RedisOptions("cache.redis.example:6380,password=pw,ssl=True,abortConnect=False")
	if err != nil {
		t.Fatalf("parse connection string: %v", err)
	}
	if opts.Addr != "cache.redis.example:6380" || opts.Password != "pw" || opts.TLSConfig == nil {
		t.Fatalf("unexpected options: %#v", opts)
	}

	if _, err := RedisOptions(""); err == nil {
		t.Fatalf("expected error for empty connection string")
	}
}
