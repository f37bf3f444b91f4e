// Package config loads folio settings from defaults, an optional YAML file,
// FOLIO_ environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FOLIO_BACKEND_URL.
const EnvPrefix = "FOLIO"

// Config holds all application configuration.
type Config struct {
	// Local SQLite database holding the mirror and the outbox.
	DBPath string `mapstructure:"db_path"`

	// Backend base URL.
	BackendURL string `mapstructure:"backend_url"`

	// Address the local gateway listens on.
	ListenAddr string `mapstructure:"listen_addr"`

	SyncInterval   time.Duration `mapstructure:"sync_interval"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// Directory of CUE form declarations. Empty uses the built-in catalog.
	CatalogPath string `mapstructure:"catalog_path"`

	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`

	// Cookie header sent to the backend, e.g. "folio_session=...".
	SessionCookie string `mapstructure:"session_cookie"`
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DBPath:         filepath.Join(".folio", "folio.db"),
		BackendURL:     "http://localhost:3000",
		ListenAddr:     "127.0.0.1:4780",
		SyncInterval:   15 * time.Second,
		ProbeInterval:  10 * time.Second,
		RequestTimeout: 30 * time.Second,
		LogLevel:       "info",
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}

	if c.BackendURL == "" {
		return errors.New("backend_url is required")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend_url must be an http(s) URL: %s", c.BackendURL)
	}

	if c.ListenAddr == "" {
		return errors.New("listen_addr is required")
	}

	if c.SyncInterval < 0 {
		return errors.New("sync_interval must not be negative")
	}
	if c.ProbeInterval < 0 {
		return errors.New("probe_interval must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil || c.LogLevel == "" {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	return nil
}

// Level returns the configured log level. Debug forces debug level.
func (c *Config) Level() zerolog.Level {
	if c.Debug {
		return zerolog.DebugLevel
	}
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty configPath searches the
// default locations and tolerates a missing file.
func NewLoader(configPath string) *Loader {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("backend_url", def.BackendURL)
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("sync_interval", def.SyncInterval)
	v.SetDefault("probe_interval", def.ProbeInterval)
	v.SetDefault("request_timeout", def.RequestTimeout)
	v.SetDefault("catalog_path", def.CatalogPath)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("debug", def.Debug)
	v.SetDefault("session_cookie", def.SessionCookie)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return &Loader{configPath: configPath, v: v}
}

// BindFlags lets flags override file and environment values. A flag named
// backend-url binds the backend_url key. Only flags set on the command
// line take effect.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !isKnownKey(key) {
			return
		}
		if err := l.v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

func isKnownKey(key string) bool {
	switch key {
	case "db_path", "backend_url", "listen_addr", "sync_interval", "probe_interval",
		"request_timeout", "catalog_path", "log_level", "debug", "session_cookie":
		return true
	}
	return false
}

// Load reads configuration from file, environment and bound flags.
func (l *Loader) Load() (*Config, error) {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		for _, path := range defaultPaths() {
			if _, err := os.Stat(path); err == nil {
				l.v.SetConfigFile(path)
				if err := l.v.ReadInConfig(); err != nil {
					return nil, fmt.Errorf("load config file %s: %w", path, err)
				}
				break
			}
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Used reports the config file that was read, if any.
func (l *Loader) Used() string {
	return l.v.ConfigFileUsed()
}

// defaultPaths returns default config file locations.
func defaultPaths() []string {
	paths := []string{
		"folio.yaml",
		".folio.yaml",
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "folio", "config.yaml"))
	}

	return paths
}
