// Package config resolves bernet's settings. Precedence, lowest first:
// built-in defaults, <home>/config.ini, BERNET_* environment variables, and
// finally the CLI flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/ini.v1"

	"bernet/internal/store"
)

// Environment variables.
const (
	EnvHome      = "BERNET_HOME"
	EnvDB        = "BERNET_DB"
	EnvLogLevel  = "BERNET_LOG_LEVEL"
	EnvLogFormat = "BERNET_LOG_FORMAT"
)

// FileName is the optional config file inside the home directory.
const FileName = "config.ini"

// Config holds resolved settings.
type Config struct {
	Home      string
	DBPath    string
	CacheDir  string
	LogLevel  string
	LogFormat string
	// Timeout bounds each archive HTTP request; 0 means none.
	Timeout time.Duration
}

type fileConfig struct {
	Log struct {
		Level  string `ini:"level"`
		Format string `ini:"format"`
	} `ini:"log"`
	Store struct {
		DB string `ini:"db"`
	} `ini:"store"`
	Archive struct {
		CacheDir string        `ini:"cache_dir"`
		Timeout  time.Duration `ini:"timeout"`
	} `ini:"archive"`
}

// Load resolves the configuration. A non-empty home wins over BERNET_HOME and
// the ~/.bernet default. getenv is usually os.Getenv.
func Load(home string, getenv func(string) string) (*Config, error) {
	if home == "" {
		home = getenv(EnvHome)
	}
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home: %w", err)
		}
		home = filepath.Join(userHome, ".bernet")
	}

	cfg := &Config{
		Home:      home,
		LogLevel:  "info",
		LogFormat: "text",
	}

	fc, err := readFile(filepath.Join(home, FileName))
	if err != nil {
		return nil, err
	}
	if fc != nil {
		setIf(&cfg.LogLevel, fc.Log.Level)
		setIf(&cfg.LogFormat, fc.Log.Format)
		setIf(&cfg.DBPath, resolve(home, fc.Store.DB))
		setIf(&cfg.CacheDir, resolve(home, fc.Archive.CacheDir))
		cfg.Timeout = fc.Archive.Timeout
	}

	setIf(&cfg.DBPath, getenv(EnvDB))
	setIf(&cfg.LogLevel, getenv(EnvLogLevel))
	setIf(&cfg.LogFormat, getenv(EnvLogFormat))

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(home, store.DefaultDBName)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(home, "archives")
	}

	return cfg, cfg.Validate()
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: log format must be text or json, got %q", c.LogFormat)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: negative archive timeout %s", c.Timeout)
	}
	return nil
}

func readFile(path string) (*fileConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	var fc fileConfig
	if err := f.MapTo(&fc); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &fc, nil
}

// resolve makes relative paths in the config file relative to home.
func resolve(home, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(home, p)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
