package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, []string{".csv"}, cfg.Limits.AllowedExtensions)
	assert.Equal(t, time.Duration(0), cfg.Sweeper.PendingTimeout)
	assert.Zero(t, cfg.Server.ListLimit, "datasets are listed without a cap")
}

func TestLoad_ShippedConfigListsEverything(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Zero(t, cfg.Server.ListLimit)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 6000
  public_url: "http://api.internal:6000/"
worker:
  base_url: "http://ml:8000/"
  timeout: 5s
sweeper:
  pending_timeout: 30m
limits:
  allowed_extensions: ["CSV", "tsv"]
`)
	t.Setenv("ABACUS_SERVER_PORT", "7000")
	t.Setenv("ABACUS_WORKERS_COUNT", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "http://api.internal:6000", cfg.Server.PublicURL)
	assert.Equal(t, "http://ml:8000", cfg.Worker.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Worker.Timeout)
	assert.Equal(t, 2, cfg.Workers.Count)
	assert.Equal(t, 30*time.Minute, cfg.Sweeper.PendingTimeout)
	assert.Equal(t, []string{".csv", ".tsv"}, cfg.Limits.AllowedExtensions)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [")
	_, err := Load(path)
	require.Error(t, err)
}

func TestSanitize(t *testing.T) {
	t.Run("fills invalid values", func(t *testing.T) {
		cfg := &Config{}
		require.NoError(t, cfg.Sanitize())
		assert.Equal(t, 5000, cfg.Server.Port)
		assert.Equal(t, 4, cfg.Workers.Count)
		assert.Equal(t, 100, cfg.Workers.QueueSize)
		assert.Equal(t, "@every 1m", cfg.Sweeper.Schedule)
		assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
		assert.Equal(t, 50*1024*1024, cfg.BodyLimit())
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		cfg := Default()
		cfg.Storage.Driver = "mongo"
		assert.Error(t, cfg.Sanitize())
	})

	t.Run("postgres requires dsn", func(t *testing.T) {
		cfg := Default()
		cfg.Storage.Driver = "Postgres"
		assert.Error(t, cfg.Sanitize())

		cfg.Storage.PostgresDSN = "postgres://localhost/abacus"
		require.NoError(t, cfg.Sanitize())
		assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	})
}

func TestAddr(t *testing.T) {
	cfg := Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8080
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
}
