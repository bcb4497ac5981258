// Package config loads todosync configuration.
//
// Sources in increasing precedence: defaults, config file, environment
// (TODOSYNC_ prefix, dots become underscores), command-line flags bound by
// the CLI.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. TODOSYNC_EXTERNAL_URL.
const EnvPrefix = "TODOSYNC"

// Config is the complete process configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	External ExternalConfig `mapstructure:"external"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig locates the local store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ExternalConfig points at the external todo system.
type ExternalConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig controls the pull schedule.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// QueueConfig sizes the command queue and its workers.
type QueueConfig struct {
	Workers  int `mapstructure:"workers"`
	Capacity int `mapstructure:"capacity"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "todosync.db"},
		External: ExternalConfig{URL: "http://localhost:8080", Timeout: 5 * time.Second},
		Sync:     SyncConfig{Interval: 10 * time.Second},
		Queue:    QueueConfig{Workers: 4, Capacity: 0},
		Server:   ServerConfig{Addr: ":3000"},
		Log:      LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 3},
	}
}

// Validate checks the configuration for values the process cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.External.URL == "" {
		return fmt.Errorf("external.url is required")
	}
	u, err := url.Parse(c.External.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("external.url must be an http(s) URL, got %q", c.External.URL)
	}
	if c.External.Timeout <= 0 {
		return fmt.Errorf("external.timeout must be positive")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1")
	}
	if c.Queue.Capacity < 0 {
		return fmt.Errorf("queue.capacity cannot be negative")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// Settings returns the configuration as nested maps keyed like the config
// file, with durations rendered as strings.
func (c *Config) Settings() map[string]any {
	return map[string]any{
		"database": map[string]any{
			"path": c.Database.Path,
		},
		"external": map[string]any{
			"url":     c.External.URL,
			"timeout": c.External.Timeout.String(),
		},
		"sync": map[string]any{
			"interval": c.Sync.Interval.String(),
		},
		"queue": map[string]any{
			"workers":  c.Queue.Workers,
			"capacity": c.Queue.Capacity,
		},
		"server": map[string]any{
			"addr": c.Server.Addr,
		},
		"log": map[string]any{
			"level":       c.Log.Level,
			"file":        c.Log.File,
			"max_size_mb": c.Log.MaxSizeMB,
			"max_backups": c.Log.MaxBackups,
		},
	}
}

// Loader reads configuration through a dedicated viper instance.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader with defaults and environment binding in place.
func NewLoader() *Loader {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("external.url", def.External.URL)
	v.SetDefault("external.timeout", def.External.Timeout)
	v.SetDefault("sync.interval", def.Sync.Interval)
	v.SetDefault("queue.workers", def.Queue.Workers)
	v.SetDefault("queue.capacity", def.Queue.Capacity)
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("log.max_size_mb", def.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", def.Log.MaxBackups)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Viper exposes the underlying instance so the CLI can bind flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads the config file, if any, and returns the validated result.
//
// An explicit path must exist. Without one, todosync.{yaml,toml,json} is
// looked up in the working directory and $XDG_CONFIG_HOME/todosync, and
// its absence is not an error.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		l.v.SetConfigFile(path)
	} else {
		l.v.SetConfigName("todosync")
		l.v.AddConfigPath(".")
		if dir := configDir(); dir != "" {
			l.v.AddConfigPath(dir)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return l.decode()
}

// ConfigFileUsed returns the file Load read, or "".
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with the reloaded configuration whenever the config
// file changes. Invalid edits are reported to onError and otherwise ignored.
// It is a no-op when no file was loaded.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("ignoring config change in %s: %w", e.Name, err))
			}
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "todosync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "todosync")
}
