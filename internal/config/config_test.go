package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.NotEmpty(t, cfg.DBPath)
	assert.Equal(t, 15*time.Second, cfg.SyncInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr string
	}{
		{
			name:   "valid config",
			modify: func(c *config.Config) {},
		},
		{
			name:    "missing db path",
			modify:  func(c *config.Config) { c.DBPath = "" },
			wantErr: "db_path is required",
		},
		{
			name:    "missing backend url",
			modify:  func(c *config.Config) { c.BackendURL = "" },
			wantErr: "backend_url is required",
		},
		{
			name:    "backend url without scheme",
			modify:  func(c *config.Config) { c.BackendURL = "localhost:3000" },
			wantErr: "backend_url must be an http(s) URL",
		},
		{
			name:    "negative sync interval",
			modify:  func(c *config.Config) { c.SyncInterval = -time.Second },
			wantErr: "sync_interval must not be negative",
		},
		{
			name:   "disabled timers",
			modify: func(c *config.Config) { c.SyncInterval, c.ProbeInterval = 0, 0 },
		},
		{
			name:    "zero request timeout",
			modify:  func(c *config.Config) { c.RequestTimeout = 0 },
			wantErr: "request_timeout must be positive",
		},
		{
			name:    "invalid log level",
			modify:  func(c *config.Config) { c.LogLevel = "loud" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())

	cfg.LogLevel = "warn"
	assert.Equal(t, zerolog.WarnLevel, cfg.Level())

	cfg.Debug = true
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "folio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoaderFile(t *testing.T) {
	path := writeConfig(t, `
backend_url: https://portfolio.example.com
sync_interval: 1m
probe_interval: 0s
log_level: debug
session_cookie: folio_session=abc
`)

	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://portfolio.example.com", cfg.BackendURL)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Zero(t, cfg.ProbeInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "folio_session=abc", cfg.SessionCookie)
	assert.Equal(t, config.DefaultConfig().ListenAddr, cfg.ListenAddr)
	assert.Equal(t, path, loader.Used())
}

func TestLoaderEnv(t *testing.T) {
	path := writeConfig(t, "backend_url: https://file.example.com\n")
	t.Setenv("FOLIO_BACKEND_URL", "https://env.example.com")
	t.Setenv("FOLIO_REQUEST_TIMEOUT", "5s")
	t.Setenv("FOLIO_DEBUG", "true")

	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.BackendURL)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.Debug)
}

func TestLoaderFlags(t *testing.T) {
	path := writeConfig(t, "listen_addr: 127.0.0.1:9000\n")
	t.Setenv("FOLIO_DB_PATH", "/tmp/env.db")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("db-path", "", "")
	fs.String("listen-addr", "", "")
	fs.Bool("verbose", false, "")
	require.NoError(t, fs.Parse([]string{"--db-path", "/tmp/flag.db"}))

	loader := config.NewLoader(path)
	require.NoError(t, loader.BindFlags(fs))
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/flag.db", cfg.DBPath)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr, "unset flags do not override")
}

func TestLoaderInvalid(t *testing.T) {
	path := writeConfig(t, "log_level: loud\n")

	_, err := config.NewLoader(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoaderMissingFile(t *testing.T) {
	_, err := config.NewLoader(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	assert.Error(t, err)
}
