// Package config loads the server configuration from the environment.
//
// A .env file in the working directory is read first (when present) so that
// local development does not require exporting variables by hand; real
// environment variables always win over the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port           int
	Env            string
	RequestTimeout time.Duration
	StaticDir      string
	CORSOrigins    []string

	// Database: sqlite://path, sqlite://:memory: or postgres://...
	DatabaseURL string

	// Redis (optional): shared rate limiting and realtime fan-out
	RedisURL string

	// Auth
	JWTSecret  string
	BcryptCost int

	// GitHub sign-in (optional)
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	// Rate limiting, per client IP
	RateLimitRPS   float64
	RateLimitBurst int

	// Background jobs
	ExpiryInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads .env (if any) and the environment. It never fails on a missing
// variable; call Validate to check the result.
func Load() *Config {
	_ = godotenv.Load()

	port := getEnvAsIntOrDefault("PORT", 8080)

	cfg := &Config{
		Port:               port,
		Env:                getEnvOrDefault("ENV", "development"),
		RequestTimeout:     getEnvAsDurationOrDefault("REQUEST_TIMEOUT", 15*time.Second),
		StaticDir:          getEnvOrDefault("STATIC_DIR", ""),
		CORSOrigins:        splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
		DatabaseURL:        getEnvOrDefault("DATABASE_URL", "sqlite://data/estudogame.db"),
		RedisURL:           getEnvOrDefault("REDIS_URL", ""),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		BcryptCost:         getEnvAsIntOrDefault("BCRYPT_COST", 12),
		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubCallbackURL:  getEnvOrDefault("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/api/auth/github/callback", port)),
		RateLimitRPS:       getEnvAsFloatOrDefault("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvAsIntOrDefault("RATE_LIMIT_BURST", 20),
		ExpiryInterval:     getEnvAsDurationOrDefault("EXPIRY_INTERVAL", time.Minute),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          getEnvOrDefault("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate reports every problem at once so a misconfigured deployment can be
// fixed in one pass.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if !strings.HasPrefix(c.DatabaseURL, "sqlite://") &&
		!strings.HasPrefix(c.DatabaseURL, "postgres://") &&
		!strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		errs = append(errs, fmt.Errorf("DATABASE_URL must start with sqlite:// or postgres://, got %q", c.DatabaseURL))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if c.ExpiryInterval < time.Second {
		errs = append(errs, errors.New("EXPIRY_INTERVAL must be at least 1s"))
	}
	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		errs = append(errs, errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together"))
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether internal error details may be shown to clients.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// GitHubEnabled reports whether GitHub sign-in routes should be mounted.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.LogLevel)}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
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
