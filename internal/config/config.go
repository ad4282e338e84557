// Package config loads tada settings. Sources apply in order: defaults,
// the TOML file (~/.tada/config.toml), TADA_* environment variables and
// finally command-line flags, which the CLI applies through Set.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/idilsaglam/tada/internal/view"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverHTTP     = "http"
)

const (
	fileName          = "config.toml"
	DefaultListenAddr = "127.0.0.1:8080"
	DefaultLogLevel   = "warn"
	DefaultTheme      = "default"
	defaultSQLiteFile = "tada.db"
	envPrefix         = "TADA_"
)

// Config is the merged configuration.
type Config struct {
	ServerURL       string  `toml:"server_url"`
	Driver          string  `toml:"driver"`
	DSN             string  `toml:"dsn"`
	ListenAddr      string  `toml:"listen_addr"`
	Theme           string  `toml:"theme"`
	LogLevel        string  `toml:"log_level"`
	SearchThreshold float64 `toml:"search_threshold"`

	// Dir holds the config file, credentials and local state.
	Dir string `toml:"-"`
}

// Keys lists every settable key in file order.
func Keys() []string {
	return []string{"server_url", "driver", "dsn", "listen_addr", "theme", "log_level", "search_threshold"}
}

// Defaults returns the built-in configuration rooted at dir.
func Defaults(dir string) *Config {
	return &Config{
		Driver:          DriverSQLite,
		DSN:             filepath.Join(dir, defaultSQLiteFile),
		ListenAddr:      DefaultListenAddr,
		Theme:           DefaultTheme,
		LogLevel:        DefaultLogLevel,
		SearchThreshold: view.DefaultThreshold,
		Dir:             dir,
	}
}

// DefaultDir is ~/.tada.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, ".tada"), nil
}

// Path is the config file location.
func (c *Config) Path() string { return filepath.Join(c.Dir, fileName) }

// LoadFile merges defaults and dir/config.toml when present.
func LoadFile(dir string) (*Config, error) {
	cfg := Defaults(dir)
	if _, err := toml.DecodeFile(cfg.Path(), cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading config file %s: %w", cfg.Path(), err)
	}
	cfg.Dir = dir
	return cfg, nil
}

// Load is LoadFile followed by the environment.
func Load(dir string) (*Config, error) {
	cfg, err := LoadFile(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadEnv() error {
	for _, key := range Keys() {
		v, ok := os.LookupEnv(envPrefix + strings.ToUpper(key))
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := c.Set(key, v); err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, strings.ToUpper(key), err)
		}
	}
	return nil
}

// Set assigns one key from its string form.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "server_url":
		c.ServerURL = strings.TrimRight(value, "/")
	case "driver":
		c.Driver = strings.ToLower(value)
	case "dsn":
		c.DSN = value
	case "listen_addr":
		c.ListenAddr = value
	case "theme":
		c.Theme = value
	case "log_level":
		c.LogLevel = value
	case "search_threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("parse search_threshold: %w", err)
		}
		c.SearchThreshold = f
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

// Get returns one key in string form.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "server_url":
		return c.ServerURL, nil
	case "driver":
		return c.Driver, nil
	case "dsn":
		return c.DSN, nil
	case "listen_addr":
		return c.ListenAddr, nil
	case "theme":
		return c.Theme, nil
	case "log_level":
		return c.LogLevel, nil
	case "search_threshold":
		return strconv.FormatFloat(c.SearchThreshold, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("unknown key %q", key)
}

// Validate checks the merged result.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres:
		if c.DSN == "" {
			return fmt.Errorf("driver %s needs a dsn", c.Driver)
		}
	case DriverHTTP:
		if c.ServerURL == "" {
			return errors.New("driver http needs server_url")
		}
	default:
		return fmt.Errorf("unknown driver %q (want sqlite, postgres or http)", c.Driver)
	}
	if c.SearchThreshold <= 0 || c.SearchThreshold > 1 {
		return fmt.Errorf("search_threshold %v out of range (0, 1]", c.SearchThreshold)
	}
	return nil
}

// Save writes the file form of c to c.Path().
func (c *Config) Save() error {
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(c.Path(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	return f.Close()
}
