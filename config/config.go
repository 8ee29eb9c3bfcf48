// Package config loads server settings from defaults, an optional YAML file,
// and environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every server setting.
type Config struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	DataFile        string        `yaml:"data_file"`
	Backend         string        `yaml:"backend"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	CreateIfMissing bool          `yaml:"create_if_missing"`
	Watch           bool          `yaml:"watch"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            "3000",
		DataFile:        "./store.json",
		Backend:         "json",
		AllowedOrigins:  []string{"*"},
		CreateIfMissing: true,
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Load builds a Config from defaults, then the YAML file at path (skipped
// when path is empty), then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	env := func(key string) (string, bool) {
		v, ok := lookup(key)
		return v, ok && v != ""
	}
	if v, ok := env("HOST"); ok {
		c.Host = v
	}
	if v, ok := env("PORT"); ok {
		c.Port = v
	}
	if v, ok := env("DATA_FILE"); ok {
		c.DataFile = v
	}
	if v, ok := env("STORE_BACKEND"); ok {
		c.Backend = v
	}
	if v, ok := env("ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = strings.Split(v, ",")
	}
	if v, ok := env("CREATE_IF_MISSING"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CREATE_IF_MISSING: %w", err)
		}
		c.CreateIfMissing = b
	}
	if v, ok := env("WATCH"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WATCH: %w", err)
		}
		c.Watch = b
	}
	if v, ok := env("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := env("LOG_FORMAT"); ok {
		c.LogFormat = v
	}
	if v, ok := env("SHUTDOWN_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
		}
		c.ShutdownTimeout = d
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Backend {
	case "json", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown backend %q (supported: json, sqlite, memory)", c.Backend)
	}
	if c.Backend != "memory" && c.DataFile == "" {
		return fmt.Errorf("data_file is required for the %s backend", c.Backend)
	}
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (supported: text, json)", c.LogFormat)
	}
	if c.Watch && c.Backend != "json" {
		return fmt.Errorf("watch is only supported by the json backend")
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must not be negative")
	}
	return nil
}
