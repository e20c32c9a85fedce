// Package config loads server configuration from environment variables.
//
// Every setting has a default, so `go run ./cmd/server` works with an empty
// environment. Values are parsed with caarlos0/env and then checked with
// validator struct tags; both failures are reported before the server starts.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config is the full server configuration.
type Config struct {
	Port     int    `env:"PORT" envDefault:"8080" validate:"min=1,max=65535"`
	DBPath   string `env:"DB_PATH" envDefault:"data/people_match.db" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	MatchPolicy        string `env:"MATCH_POLICY" envDefault:"one_directional" validate:"oneof=one_directional mutual"`
	RegistrationPolicy string `env:"REGISTRATION_POLICY" envDefault:"merge" validate:"oneof=merge reject"`

	// SeedQuestions loads the default question pool on start-up.
	SeedQuestions bool `env:"SEED_QUESTIONS" envDefault:"true"`
	// SeedDemo registers the demo people (Alex, Jordan, Taylor).
	SeedDemo bool `env:"SEED_DEMO" envDefault:"true"`

	// Auth is disabled when JWTSecret is empty.
	JWTSecret string `env:"JWT_SECRET" validate:"omitempty,min=16"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET" validate:"required_with=GitHubClientID"`
	GitHubCallbackURL  string `env:"GITHUB_CALLBACK_URL" validate:"omitempty,url"`
}

// Load parses the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.finish()
}

// LoadFrom parses an explicit environment map. Used by tests.
func LoadFrom(environment map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environment}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.finish()
}

func (c *Config) finish() error {
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.MatchPolicy = strings.ToLower(c.MatchPolicy)
	c.RegistrationPolicy = strings.ToLower(c.RegistrationPolicy)

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.GitHubCallbackURL == "" {
		c.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", c.Port)
	}
	return nil
}

// AuthEnabled reports whether JWT sessions are configured.
func (c Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c Config) GitHubEnabled() bool {
	return c.AuthEnabled() && c.GitHubClientID != ""
}

// SlogLevel maps LogLevel to a slog.Level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
