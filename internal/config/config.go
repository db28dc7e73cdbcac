// Package config loads the service configuration.
//
// Values come from three layers, later layers overriding earlier ones:
//   - built-in defaults (see Default)
//   - the YAML file (config/config.yaml by default)
//   - environment variables prefixed with ABACUS_, optionally read from a .env file
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ABACUS_"

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"  envPrefix:"SERVER_"`
	Worker  WorkerConfig  `yaml:"worker"  envPrefix:"WORKER_"`
	Workers PoolConfig    `yaml:"workers" envPrefix:"WORKERS_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	Archive ArchiveConfig `yaml:"archive" envPrefix:"ARCHIVE_"`
	Sweeper SweeperConfig `yaml:"sweeper" envPrefix:"SWEEPER_"`
	Limits  LimitsConfig  `yaml:"limits"  envPrefix:"LIMITS_"`
	Log     LogConfig     `yaml:"log"     envPrefix:"LOG_"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
	// PublicURL is the address the analysis worker uses to call back.
	PublicURL string `yaml:"public_url" env:"PUBLIC_URL"`
	// ListLimit caps GET /api/datasets. Zero or less means no limit.
	ListLimit int `yaml:"list_limit" env:"LIST_LIMIT"`
}

// WorkerConfig addresses the external analysis worker.
type WorkerConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout"  env:"TIMEOUT"`
}

// PoolConfig sizes the dispatch pool.
type PoolConfig struct {
	Count     int `yaml:"count"      env:"COUNT"`
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
}

// StorageConfig selects the record store and blob location.
type StorageConfig struct {
	Driver      string `yaml:"driver"       env:"DRIVER"`
	UploadDir   string `yaml:"upload_dir"   env:"UPLOAD_DIR"`
	Database    string `yaml:"database"     env:"DATABASE"`
	PostgresDSN string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
}

// ArchiveConfig enables copies of completed reports. Both targets are optional.
type ArchiveConfig struct {
	LocalDir          string `yaml:"local_dir"          env:"LOCAL_DIR"`
	GDriveCredentials string `yaml:"gdrive_credentials" env:"GDRIVE_CREDENTIALS"`
	GDriveToken       string `yaml:"gdrive_token"       env:"GDRIVE_TOKEN"`
	GDriveFolder      string `yaml:"gdrive_folder"      env:"GDRIVE_FOLDER"`
}

// SweeperConfig controls the stale pending sweeper.
// A zero PendingTimeout leaves pending jobs pending forever.
type SweeperConfig struct {
	Schedule       string        `yaml:"schedule"        env:"SCHEDULE"`
	PendingTimeout time.Duration `yaml:"pending_timeout" env:"PENDING_TIMEOUT"`
}

// LimitsConfig bounds uploads.
type LimitsConfig struct {
	MaxFileSizeMB     int      `yaml:"max_file_size_mb"   env:"MAX_FILE_SIZE_MB"`
	AllowedExtensions []string `yaml:"allowed_extensions" env:"ALLOWED_EXTENSIONS" envSeparator:","`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      5000,
			PublicURL: "http://localhost:5000",
		},
		Worker: WorkerConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Workers: PoolConfig{Count: 4, QueueSize: 100},
		Storage: StorageConfig{
			Driver:    DriverSQLite,
			UploadDir: "uploads",
			Database:  "data/abacus.db",
		},
		Sweeper: SweeperConfig{Schedule: "@every 1m"},
		Limits: LimitsConfig{
			MaxFileSizeMB:     50,
			AllowedExtensions: []string{".csv"},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from path and the environment.
// A missing file is not an error; defaults and environment still apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// .env is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Sanitize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Sanitize applies guardrails to loaded values.
func (c *Config) Sanitize() error {
	def := Default()

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		c.Server.Port = def.Server.Port
	}
	c.Server.PublicURL = strings.TrimRight(c.Server.PublicURL, "/")
	c.Worker.BaseURL = strings.TrimRight(c.Worker.BaseURL, "/")
	if c.Worker.Timeout <= 0 {
		c.Worker.Timeout = def.Worker.Timeout
	}
	if c.Workers.Count <= 0 {
		c.Workers.Count = def.Workers.Count
	}
	if c.Workers.QueueSize <= 0 {
		c.Workers.QueueSize = def.Workers.QueueSize
	}
	if c.Sweeper.Schedule == "" {
		c.Sweeper.Schedule = def.Sweeper.Schedule
	}
	if c.Sweeper.PendingTimeout < 0 {
		c.Sweeper.PendingTimeout = 0
	}
	if c.Limits.MaxFileSizeMB <= 0 {
		c.Limits.MaxFileSizeMB = def.Limits.MaxFileSizeMB
	}
	for i, ext := range c.Limits.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Limits.AllowedExtensions[i] = ext
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case "":
		c.Storage.Driver = DriverSQLite
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == DriverPostgres && c.Storage.PostgresDSN == "" {
		return errors.New("storage.postgres_dsn is required for the postgres driver")
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = def.Storage.UploadDir
	}
	if c.Storage.Database == "" {
		c.Storage.Database = def.Storage.Database
	}
	return nil
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BodyLimit returns the maximum request body size in bytes.
func (c *Config) BodyLimit() int {
	return c.Limits.MaxFileSizeMB * 1024 * 1024
}
