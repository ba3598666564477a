// Package config loads sangpt's configuration. Defaults come first, an
// optional YAML file overrides them, and SANGPT_* environment variables
// override both.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// EnvPrefix namespaces all environment overrides. Double underscores
// separate nesting levels so keys may themselves contain underscores, e.g.
// SANGPT_SERVER__ADDR=:9000 sets server.addr and
// SANGPT_STREAMS__SWEEP_INTERVAL=30s sets streams.sweep_interval.
const EnvPrefix = "SANGPT_"

// Config is immutable after Load and safe for concurrent reads.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Streams   StreamsConfig   `koanf:"streams"`
	Redis     RedisConfig     `koanf:"redis"`
	Providers ProvidersConfig `koanf:"providers"`
	Uploads   UploadsConfig   `koanf:"uploads"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Path to the sqlite file; empty selects the in-memory store.
	Path string `koanf:"path"`
}

type StreamsConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Group    string `koanf:"group"`
	Consumer string `koanf:"consumer"`
}

type ProvidersConfig struct {
	Default       string        `koanf:"default"`
	ScriptedDelay time.Duration `koanf:"scripted_delay"`
}

type UploadsConfig struct {
	Dir      string `koanf:"dir"`
	MaxBytes int64  `koanf:"max_bytes"`
}

type LoggingConfig struct {
	Level   string `koanf:"level"`
	Console bool   `koanf:"console"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "sangpt.db",
		},
		Streams: StreamsConfig{
			TTL:           5 * time.Minute,
			SweepInterval: time.Minute,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			Group:    "sangpt",
			Consumer: "sangpt-1",
		},
		Providers: ProvidersConfig{
			Default:       "echo",
			ScriptedDelay: 25 * time.Millisecond,
		},
		Uploads: UploadsConfig{
			Dir:      "uploads",
			MaxBytes: 32 << 20,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads configuration, layering defaults, the YAML file at path (when
// it exists), and environment variables. An empty path falls back to the
// SANGPT_CONFIG environment variable, then to config.yaml in the working
// directory.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, "load config defaults")
	}

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load config file %s", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load config env")
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Streams.TTL <= 0 {
		return errors.New("streams.ttl must be positive")
	}
	if c.Streams.SweepInterval <= 0 {
		return errors.New("streams.sweep_interval must be positive")
	}
	if c.Redis.Enabled && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("redis.addr must be set when redis is enabled")
	}
	if c.Uploads.MaxBytes <= 0 {
		return errors.New("uploads.max_bytes must be positive")
	}
	return nil
}
