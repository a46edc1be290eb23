// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

var (
	ErrMissingToken   = errors.New("BOT_TOKEN environment variable is required")
	ErrMissingAdmin   = errors.New("ADMIN_ID environment variable is required")
	ErrInvalidBackend = errors.New("invalid BACKEND_URL")
)

type Config struct {
	BotToken string `env:"BOT_TOKEN"`
	AdminID  int64  `env:"ADMIN_ID"`
	DBPath   string `env:"DB_PATH" envDefault:"screening.db"`

	BackendURL     string        `env:"BACKEND_URL" envDefault:"http://localhost:8000"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"30s"`

	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv     string `env:"APP_ENV" envDefault:"development"`
	HealthAddr string `env:"HEALTH_ADDR"`

	CaptureCommand string `env:"CAPTURE_COMMAND"`
	FrameMaxWidth  int    `env:"FRAME_MAX_WIDTH" envDefault:"1280"`
	FrameMaxHeight int    `env:"FRAME_MAX_HEIGHT" envDefault:"720"`
	JPEGQuality    int    `env:"JPEG_QUALITY" envDefault:"90"`
}

// Load parses the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses vars instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if u, err := url.Parse(cfg.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBackend, cfg.BackendURL)
	}
	return &cfg, nil
}

// ValidateBot checks the settings only the Telegram front-end needs.
func (c *Config) ValidateBot() error {
	if c.BotToken == "" {
		return ErrMissingToken
	}
	if c.AdminID == 0 {
		return ErrMissingAdmin
	}
	return nil
}

func (c *Config) Production() bool {
	return c.AppEnv == "production"
}
