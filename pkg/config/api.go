package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// bcrypt accepts costs in [4, 31].
const (
	minBcryptCost = 4
	maxBcryptCost = 31
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment       string        `env:"APP_ENV" envDefault:"development"`
	Port              string        `env:"PORT" envDefault:"3000"`
	DatabaseURL       string        `env:"DATABASE_URL,required,notEmpty"`
	MongoDatabase     string        `env:"MONGODB_DATABASE" envDefault:"kisan"`
	JWTSecret         string        `env:"JWT_SECRET,required,notEmpty"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	BcryptCost        int           `env:"BCRYPT_COST" envDefault:"10"`
	PasswordMinLength int           `env:"PASSWORD_MIN_LENGTH" envDefault:"6"`
	PasswordMaxLength int           `env:"PASSWORD_MAX_LENGTH" envDefault:"12"`
	StoreTimeout      time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	AllowedOrigins    []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	LogLevel          slog.Level    `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadAPIConfig constructs an APIConfig from environment variables.
// A missing DATABASE_URL or JWT_SECRET is reported as an error.
func LoadAPIConfig() (APIConfig, error) {
	return loadAPIConfig(nil)
}

// loadAPIConfig parses the given environment, or the process environment when nil.
func loadAPIConfig(environ map[string]string) (APIConfig, error) {
	var cfg APIConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return APIConfig{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	if err := cfg.Validate(); err != nil {
		return APIConfig{}, err
	}
	return cfg, nil
}

// Validate checks invariants that struct tags cannot express.
func (c APIConfig) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.BcryptCost < minBcryptCost || c.BcryptCost > maxBcryptCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", minBcryptCost, maxBcryptCost, c.BcryptCost))
	}
	if c.PasswordMinLength < 1 {
		errs = append(errs, fmt.Errorf("PASSWORD_MIN_LENGTH must be positive, got %d", c.PasswordMinLength))
	}
	if c.PasswordMaxLength != 0 && c.PasswordMaxLength < c.PasswordMinLength {
		errs = append(errs, fmt.Errorf("PASSWORD_MAX_LENGTH (%d) is below PASSWORD_MIN_LENGTH (%d)", c.PasswordMaxLength, c.PasswordMinLength))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address for the HTTP server.
func (c APIConfig) Addr() string {
	port := strings.TrimSpace(c.Port)
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
