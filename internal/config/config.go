package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendInflux    = "influx"
	BackendTimescale = "timescale"
	BackendSQLite    = "sqlite"
)

// DefaultMaxBodyBytes bounds a single ingest request body.
const DefaultMaxBodyBytes int64 = 32 << 20

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Influx    InfluxConfig    `yaml:"influx"`
	Database  DatabaseConfig  `yaml:"database"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Log       LogConfig       `yaml:"log"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
}

type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// AuthConfig holds the optional API key. An empty key disables authentication.
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type StorageConfig struct {
	Backend string `yaml:"backend"`
}

type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// SlogLevel parses the configured level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func defaults() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080, MaxBodyBytes: DefaultMaxBodyBytes},
		Storage:  StorageConfig{Backend: BackendInflux},
		Influx:   InfluxConfig{Bucket: "applehealth"},
		Database: DatabaseConfig{Port: 5432, SSLMode: "disable"},
		SQLite:   SQLiteConfig{Path: "data/haeingest.db"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Tailscale: TailscaleConfig{
			Hostname: "haeingest",
			StateDir: "tsnet-state",
		},
	}
}

// LoadDotEnv loads KEY=VALUE pairs from a .env file into the process
// environment without overriding variables that are already set. A missing
// file is only an error when required is true.
func LoadDotEnv(path string, required bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !required {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// Load reads config from a YAML file, then applies environment variable overrides.
// An empty path skips the file so the service can run from the environment alone.
// Env vars use the prefix HAEINGEST_ and underscore-separated paths:
//
//	HAEINGEST_SERVER_HOST, HAEINGEST_SERVER_PORT, HAEINGEST_SERVER_MAX_BODY_BYTES,
//	HAEINGEST_AUTH_API_KEY, HAEINGEST_STORAGE_BACKEND,
//	HAEINGEST_INFLUX_URL, HAEINGEST_INFLUX_TOKEN, HAEINGEST_INFLUX_ORG, HAEINGEST_INFLUX_BUCKET,
//	HAEINGEST_DB_HOST, HAEINGEST_DB_PORT, HAEINGEST_DB_NAME,
//	HAEINGEST_DB_USER, HAEINGEST_DB_PASSWORD, HAEINGEST_DB_SSLMODE,
//	HAEINGEST_SQLITE_PATH, HAEINGEST_LOG_LEVEL, HAEINGEST_LOG_FORMAT,
//	HAEINGEST_TAILSCALE_ENABLED, HAEINGEST_TAILSCALE_HOSTNAME, HAEINGEST_TAILSCALE_STATE_DIR
//
// The unprefixed INFLUXDB_URL, INFLUXDB_TOKEN, INFLUXDB_ORG, INFLUXDB_BUCKET,
// API_KEY, LOG_LEVEL and PORT are honoured when the prefixed form is unset.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// env returns the first non-empty value among keys.
func env(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func applyEnvOverrides(cfg *Config) {
	setString := func(dst *string, keys ...string) {
		if v := env(keys...); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, keys ...string) {
		if v := env(keys...); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString(&cfg.Server.Host, "HAEINGEST_SERVER_HOST")
	setInt(&cfg.Server.Port, "HAEINGEST_SERVER_PORT", "PORT")
	if v := env("HAEINGEST_SERVER_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxBodyBytes = n
		}
	}

	setString(&cfg.Auth.APIKey, "HAEINGEST_AUTH_API_KEY", "API_KEY")
	setString(&cfg.Storage.Backend, "HAEINGEST_STORAGE_BACKEND")

	setString(&cfg.Influx.URL, "HAEINGEST_INFLUX_URL", "INFLUXDB_URL")
	setString(&cfg.Influx.Token, "HAEINGEST_INFLUX_TOKEN", "INFLUXDB_TOKEN")
	setString(&cfg.Influx.Org, "HAEINGEST_INFLUX_ORG", "INFLUXDB_ORG")
	setString(&cfg.Influx.Bucket, "HAEINGEST_INFLUX_BUCKET", "INFLUXDB_BUCKET")

	setString(&cfg.Database.Host, "HAEINGEST_DB_HOST")
	setInt(&cfg.Database.Port, "HAEINGEST_DB_PORT")
	setString(&cfg.Database.Name, "HAEINGEST_DB_NAME")
	setString(&cfg.Database.User, "HAEINGEST_DB_USER")
	setString(&cfg.Database.Password, "HAEINGEST_DB_PASSWORD")
	setString(&cfg.Database.SSLMode, "HAEINGEST_DB_SSLMODE")

	setString(&cfg.SQLite.Path, "HAEINGEST_SQLITE_PATH")

	setString(&cfg.Log.Level, "HAEINGEST_LOG_LEVEL", "LOG_LEVEL")
	setString(&cfg.Log.Format, "HAEINGEST_LOG_FORMAT")

	if v := env("HAEINGEST_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
	setString(&cfg.Tailscale.Hostname, "HAEINGEST_TAILSCALE_HOSTNAME")
	setString(&cfg.Tailscale.StateDir, "HAEINGEST_TAILSCALE_STATE_DIR")
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}

	switch c.Storage.Backend {
	case BackendInflux:
		if c.Influx.URL == "" {
			return fmt.Errorf("influx.url is required")
		}
		if c.Influx.Token == "" {
			return fmt.Errorf("influx.token is required")
		}
		if c.Influx.Org == "" {
			return fmt.Errorf("influx.org is required")
		}
		if c.Influx.Bucket == "" {
			return fmt.Errorf("influx.bucket is required")
		}
	case BackendTimescale:
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required")
		}
	default:
		return fmt.Errorf("storage.backend must be one of %s, %s, %s; got %q",
			BackendInflux, BackendTimescale, BackendSQLite, c.Storage.Backend)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	return nil
}
