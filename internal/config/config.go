// Package config loads the server configuration from defaults, an optional
// YAML file, the environment and command line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/baswilson/navsite/internal/database"
	"github.com/baswilson/navsite/internal/dialect"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DevJWTSecret is the signing secret used when none is configured. It is
// rejected in production.
const DevJWTSecret = "navsite-dev-secret-change-me"

// DefaultConfigFile is read when present and no --config is given
const DefaultConfigFile = "navsite.yaml"

var (
	ErrInsecureSecret = errors.New("JWT_SECRET must be set in production")
	ErrMissingDSN     = errors.New("DATABASE_URL is required for postgres")
	ErrInvalidPort    = errors.New("invalid port")
)

// envKeys maps the supported environment variables to config keys.
// Anything else in the environment is ignored.
var envKeys = map[string]string{
	"PORT":                 "port",
	"ENV":                  "env",
	"NODE_ENV":             "node_env",
	"WEB_DIR":              "web_dir",
	"JWT_SECRET":           "jwt_secret",
	"ADMIN_USERNAME":       "admin.username",
	"ADMIN_PASSWORD":       "admin.password",
	"REDIS_URL":            "redis_url",
	"LOG_LEVEL":            "log_level",
	"DB_TYPE":              "db.type",
	"DB_PATH":              "db.path",
	"DATABASE_URL":         "db.url",
	"DB_MAX_CONNS":         "db.max_conns",
	"DB_MAX_IDLE_CONNS":    "db.max_idle_conns",
	"DB_CONN_MAX_LIFETIME": "db.conn_max_lifetime",
	"DB_BUSY_TIMEOUT":      "db.busy_timeout",
	"DB_RETRY_MAX":         "db.retry_max",
}

// flagKeys maps command line flags to config keys
var flagKeys = map[string]string{
	"port":         "port",
	"env":          "env",
	"web-dir":      "web_dir",
	"log-level":    "log_level",
	"db-type":      "db.type",
	"db-path":      "db.path",
	"database-url": "db.url",
	"redis-url":    "redis_url",
}

// Config is the complete server configuration
type Config struct {
	Port      string `koanf:"port"`
	Env       string `koanf:"env"`
	NodeEnv   string `koanf:"node_env"`
	WebDir    string `koanf:"web_dir"`
	JWTSecret string `koanf:"jwt_secret"`
	RedisURL  string `koanf:"redis_url"`
	LogLevel  string `koanf:"log_level"`
	Admin     Admin  `koanf:"admin"`
	DB        DB     `koanf:"db"`

	// File is the config file that was read, if any
	File string `koanf:"-"`
}

// Admin is the account seeded on first start
type Admin struct {
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// DB selects and tunes the database engine
type DB struct {
	Type            string        `koanf:"type"`
	Path            string        `koanf:"path"`
	URL             string        `koanf:"url"`
	MaxConns        int           `koanf:"max_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	BusyTimeout     time.Duration `koanf:"busy_timeout"`
	RetryMax        uint64        `koanf:"retry_max"`
}

func defaults() map[string]any {
	return map[string]any{
		"port":                 "8080",
		"web_dir":              "",
		"jwt_secret":           DevJWTSecret,
		"log_level":            "info",
		"admin.username":       "admin",
		"admin.password":       "admin123",
		"db.type":              "sqlite",
		"db.path":              "./database/nav.db",
		"db.max_conns":         10,
		"db.conn_max_lifetime": "30m",
		"db.busy_timeout":      "5s",
		"db.retry_max":         3,
	}
}

// Load reads the configuration. cfgFile may be empty, in which case
// DefaultConfigFile is used when it exists. flags may be nil; only flags the
// user actually set override other sources.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used := cfgFile
	if used == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			used = DefaultConfigFile
		}
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used
	if cfg.Env == "" {
		cfg.Env = cfg.NodeEnv
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	cfg.DB.Type = strings.ToLower(strings.TrimSpace(cfg.DB.Type))
	return &cfg, nil
}

// Validate reports configuration the server cannot start with
func (c *Config) Validate() error {
	var errs []error

	name, err := dialect.ParseName(c.DB.Type)
	if err != nil {
		errs = append(errs, err)
	}
	if name == dialect.Postgres && c.DB.URL == "" {
		errs = append(errs, ErrMissingDSN)
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidPort, c.Port))
	}
	if c.IsProduction() && (c.JWTSecret == "" || c.JWTSecret == DevJWTSecret) {
		errs = append(errs, ErrInsecureSecret)
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Database returns the settings for the database layer
func (c *Config) Database() database.Config {
	return database.Config{
		Type:            c.DB.Type,
		PostgresURL:     c.DB.URL,
		MaxConns:        c.DB.MaxConns,
		MaxIdleConns:    c.DB.MaxIdleConns,
		ConnMaxLifetime: c.DB.ConnMaxLifetime,
		SQLitePath:      c.DB.Path,
		BusyTimeout:     c.DB.BusyTimeout,
		Production:      c.IsProduction(),
		RetryMax:        c.DB.RetryMax,
	}
}
