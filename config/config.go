// Package config provides environment configuration loading and validation,
// and hot reload of the entity definition file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environments accepted by NODE_ENV.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Defaults for optional variables.
const (
	DefaultHost            = "0.0.0.0"
	DefaultLogDir          = "logs"
	DefaultEntitiesFile    = "entities.yaml"
	DefaultBodyLimit       = 1 << 20
	DefaultShutdownTimeout = 30 * time.Second
)

// Config is the process configuration.
type Config struct {
	Port   int
	Env    string
	DBURI  string
	DBName string
	Host   string

	LogLevel string
	LogDir   string

	EntitiesFile  string
	EntitiesWatch bool

	MetricsEnabled bool
	OpenAPIEnabled bool

	CORSOrigins     []string
	BodyLimit       int64
	ShutdownTimeout time.Duration
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction reports whether NODE_ENV is production.
func (c *Config) IsProduction() bool { return c.Env == EnvProduction }

// IsDevelopment reports whether NODE_ENV is development.
func (c *Config) IsDevelopment() bool { return c.Env == EnvDevelopment }

// Load seeds the environment from the given .env files, when they exist,
// and reads the configuration from it. Variables already set in the
// environment win over the files.
func Load(envFiles ...string) (*Config, error) {
	var existing []string
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds the configuration from a variable lookup. Every invalid
// or missing variable is reported in the returned error.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	var errs []error
	cfg := &Config{}

	switch v := get("PORT"); {
	case v == "":
		errs = append(errs, errors.New("PORT is required"))
	default:
		port, err := strconv.Atoi(v)
		if err != nil || port < 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("PORT must be a port number, got %q", v))
		}
		cfg.Port = port
	}

	cfg.Env = get("NODE_ENV")
	switch cfg.Env {
	case EnvDevelopment, EnvTest, EnvProduction:
	case "":
		errs = append(errs, errors.New("NODE_ENV is required"))
	default:
		errs = append(errs, fmt.Errorf("NODE_ENV must be one of development, test, production, got %q", cfg.Env))
	}

	cfg.DBURI = get("DB_URI")
	if cfg.DBURI == "" {
		errs = append(errs, errors.New("DB_URI is required"))
	}

	cfg.DBName = get("DB_NAME")
	cfg.Host = orDefault(get("HOST"), DefaultHost)
	cfg.LogLevel = strings.ToLower(get("LOG_LEVEL"))
	cfg.LogDir = orDefault(get("LOG_DIR"), DefaultLogDir)
	cfg.EntitiesFile = orDefault(get("ENTITIES_FILE"), DefaultEntitiesFile)

	boolVar := func(key string, def bool) bool {
		v := get(key)
		if v == "" {
			return def
		}
		b, err := parseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return b
	}
	cfg.EntitiesWatch = boolVar("ENTITIES_WATCH", cfg.IsDevelopment())
	cfg.MetricsEnabled = boolVar("METRICS_ENABLED", true)
	cfg.OpenAPIEnabled = boolVar("OPENAPI_ENABLED", true)

	cfg.CORSOrigins = []string{"*"}
	if v := get("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	cfg.BodyLimit = DefaultBodyLimit
	if v := get("BODY_LIMIT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("BODY_LIMIT must be a positive byte count, got %q", v))
		}
		cfg.BodyLimit = n
	}

	cfg.ShutdownTimeout = DefaultShutdownTimeout
	if v := get("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be a positive duration, got %q", v))
		}
		cfg.ShutdownTimeout = d
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid environment:\n%w", err)
	}
	return cfg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// parseBool parses a boolean from common string values.
func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}
