// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

// Package config loads todosite configuration.
//
// Sources are layered lowest to highest: flag defaults, the YAML config
// file, DATABASE_URL and REDIS_URL, TODOSITE_* environment variables, and
// flags set on the command line.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/todosite/todosite/internal/auth"
	"github.com/todosite/todosite/internal/logging"
	"github.com/todosite/todosite/internal/xdg"
)

// EnvPrefix prefixes environment variables read into the config.
const EnvPrefix = "TODOSITE_"

// ConfigFlag names the flag selecting the config file.
const ConfigFlag = "config"

// Config is the complete todosite configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Log      LogConfig      `koanf:"log"`
	Argon2   Argon2Config   `koanf:"argon2"`
	Hash     HashConfig     `koanf:"hash"`
	Session  SessionConfig  `koanf:"session"`
}

// DatabaseConfig configures the PostgreSQL credential store.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// RedisConfig configures the session store. An empty URL disables sessions.
type RedisConfig struct {
	URL string `koanf:"url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Argon2Config holds argon2id cost parameters. Memory is in KiB.
type Argon2Config struct {
	Time    uint32 `koanf:"time"`
	Memory  uint32 `koanf:"memory"`
	Threads uint8  `koanf:"threads"`
	SaltLen uint32 `koanf:"saltlen"`
	KeyLen  uint32 `koanf:"keylen"`
}

// HashConfig sizes the hash worker pool. Zero means GOMAXPROCS.
type HashConfig struct {
	Workers int `koanf:"workers"`
}

// SessionConfig configures login sessions.
type SessionConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	p := auth.DefaultArgon2Params()
	return Config{
		Log: LogConfig{Format: logging.FormatJSON, Level: "info"},
		Argon2: Argon2Config{
			Time:    p.Time,
			Memory:  p.Memory,
			Threads: p.Threads,
			SaltLen: p.SaltLen,
			KeyLen:  p.KeyLen,
		},
		Session: SessionConfig{TTL: auth.DefaultSessionTTL},
	}
}

// Argon2Params converts the argon2 section to hasher parameters.
func (c *Config) Argon2Params() auth.Argon2Params {
	return auth.Argon2Params{
		Time:    c.Argon2.Time,
		Memory:  c.Argon2.Memory,
		Threads: c.Argon2.Threads,
		SaltLen: c.Argon2.SaltLen,
		KeyLen:  c.Argon2.KeyLen,
	}
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() (slog.Level, error) {
	return logging.ParseLevel(c.Log.Level)
}

// Validate checks every section. The database URL is checked separately by
// RequireDatabase since not every command needs it.
func (c *Config) Validate() error {
	if c.Log.Format != logging.FormatJSON && c.Log.Format != logging.FormatText {
		return oops.Code("CONFIG_INVALID").
			With("key", "log.format").
			Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := c.LogLevel(); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "log.level").Wrap(err)
	}
	if err := c.Argon2Params().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "argon2").Wrap(err)
	}
	if c.Hash.Workers < 0 {
		return oops.Code("CONFIG_INVALID").
			With("key", "hash.workers").
			Errorf("hash.workers must not be negative, got %d", c.Hash.Workers)
	}
	if c.Session.TTL <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("key", "session.ttl").
			Errorf("session.ttl must be positive, got %s", c.Session.TTL)
	}
	return nil
}

// RequireDatabase reports an error when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").
			With("key", "database.url").
			Errorf("database URL is required (set DATABASE_URL, %sDATABASE_URL or --database-url)", EnvPrefix)
	}
	return nil
}

// RegisterFlags adds the config flags to flags, with defaults from Default.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String(ConfigFlag, "", "config file (default "+xdg.ConfigFile()+")")
	flags.String("database-url", d.Database.URL, "PostgreSQL connection URL")
	flags.String("redis-url", d.Redis.URL, "Redis URL for the session store")
	flags.String("log-format", d.Log.Format, "log format (json or text)")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	flags.Uint32("argon2-time", d.Argon2.Time, "argon2id iterations")
	flags.Uint32("argon2-memory", d.Argon2.Memory, "argon2id memory in KiB")
	flags.Uint8("argon2-threads", d.Argon2.Threads, "argon2id parallelism")
	flags.Int("hash-workers", d.Hash.Workers, "concurrent password hash workers (0 = GOMAXPROCS)")
	flags.Duration("session-ttl", d.Session.TTL, "login session lifetime")
}

// flagKeys maps config flags to their keys. Other flags on the same set
// are ignored.
var flagKeys = map[string]string{
	"database-url":   "database.url",
	"redis-url":      "redis.url",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"argon2-time":    "argon2.time",
	"argon2-memory":  "argon2.memory",
	"argon2-threads": "argon2.threads",
	"hash-workers":   "hash.workers",
	"session-ttl":    "session.ttl",
}

// envKey maps TODOSITE_DATABASE_URL to database.url.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}

// wellKnownEnv are unprefixed variables honored for compatibility with
// common deployment tooling. Empty values are ignored.
var wellKnownEnv = map[string]string{
	"DATABASE_URL": "database.url",
	"REDIS_URL":    "redis.url",
}

// Load builds the configuration. path selects the config file; when empty
// the XDG default is used if it exists. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "read config file").
				With("path", path).
				Wrap(err)
		}
	}

	wellKnown := env.ProviderWithValue("", ".", func(name, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		return wellKnownEnv[name], value
	})
	if err := k.Load(wellKnown, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "read environment").Wrap(err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "read environment").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "read flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}
	return &cfg, nil
}

// ConfigPath returns the value of the config flag, or "" when unset.
func ConfigPath(flags *pflag.FlagSet) string {
	if flags == nil {
		return ""
	}
	path, err := flags.GetString(ConfigFlag)
	if err != nil {
		return ""
	}
	return os.ExpandEnv(path)
}
