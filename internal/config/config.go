package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/hujson"
)

var (
	errConfigFileRead = errors.New("cannot read config file")
	errConfigInvalid  = errors.New("invalid config")
)

// Database drivers understood by cmd/a11ywatch.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Duration is a time.Duration written as "15m" in config files.
type Duration time.Duration

// UnmarshalJSON accepts a Go duration string or a number of milliseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("duration must be a string like \"15m\" or milliseconds: %w", err)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config holds the application's configuration values.
type Config struct {
	DatabaseDriver string   `json:"database_driver"`
	DatabaseURL    string   `json:"database_url"`
	HTTPHost       string   `json:"http_host"`
	HTTPPort       string   `json:"http_port"`
	RunInterval    Duration `json:"run_interval"`
	MaxConcurrency int      `json:"max_concurrency"`
	QueueSize      int      `json:"queue_size"`
	ShutdownGrace  Duration `json:"shutdown_grace"`
	CheckerCommand string   `json:"checker_command"`
	RedisAddr      string   `json:"redis_addr"`
	RedisPassword  string   `json:"redis_password"`
	RedisDB        int      `json:"redis_db"`
	RunLogLines    int      `json:"run_log_lines"`
	CORSOrigins    []string `json:"cors_origins"`
	LogLevel       string   `json:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DatabaseDriver: DriverSQLite,
		DatabaseURL:    "a11ywatch.db",
		HTTPHost:       "0.0.0.0",
		HTTPPort:       "4000",
		RunInterval:    0,
		MaxConcurrency: 2,
		QueueSize:      64,
		ShutdownGrace:  Duration(10 * time.Second),
		CheckerCommand: "pa11y",
		RunLogLines:    100,
		CORSOrigins:    []string{"*"},
		LogLevel:       "info",
	}
}

// Load is Resolve followed by Validate.
func Load(path string) (Config, error) {
	cfg, err := Resolve(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Resolve layers defaults, the optional JSONC file at path and environment
// variables. An empty path skips the file.
func Resolve(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadFile overlays the keys present in a JSONC file onto cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w %s: %w", errConfigFileRead, path, err)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("%w %s: invalid JSONC: %w", errConfigInvalid, path, err)
	}
	if err := json.Unmarshal(standardized, cfg); err != nil {
		return fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with any environment variables that are set.
func (c *Config) ApplyEnv() {
	c.DatabaseDriver = getEnv("DATABASE_DRIVER", c.DatabaseDriver)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.HTTPHost = getEnv("HTTP_HOST", c.HTTPHost)
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.RunInterval = Duration(getEnvDuration("RUN_INTERVAL", time.Duration(c.RunInterval)))
	c.MaxConcurrency = getEnvInt("MAX_CONCURRENCY", c.MaxConcurrency)
	c.QueueSize = getEnvInt("QUEUE_SIZE", c.QueueSize)
	c.ShutdownGrace = Duration(getEnvDuration("SHUTDOWN_GRACE", time.Duration(c.ShutdownGrace)))
	c.CheckerCommand = getEnv("CHECKER_COMMAND", c.CheckerCommand)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.RunLogLines = getEnvInt("RUN_LOG_LINES", c.RunLogLines)
	if origins, ok := os.LookupEnv("CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(origins)
	}
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate rejects values the service cannot start with.
func (c Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("%w: unsupported database driver %q", errConfigInvalid, c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: database url is required", errConfigInvalid)
	}
	if _, err := strconv.Atoi(c.HTTPPort); err != nil {
		return fmt.Errorf("%w: http port %q is not a number", errConfigInvalid, c.HTTPPort)
	}
	if c.RunInterval < 0 {
		return fmt.Errorf("%w: run interval cannot be negative", errConfigInvalid)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("%w: max concurrency must be at least 1", errConfigInvalid)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", errConfigInvalid, err)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return c.HTTPHost + ":" + c.HTTPPort
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper function to get an environment variable or return a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Helper function to get an environment variable as an integer.
func getEnvInt(key string, fallback int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

// Helper function to get an environment variable as a time.Duration.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return fallback
}
