package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string
	ReapInterval   time.Duration
	IdleTimeout    time.Duration
}

// Defaults holds the environment-sourced default values the command
// line can override.
type Defaults struct {
	ServerAddr     string        `env:"WATCHROOM_ADDR" envDefault:"localhost:8000"`
	DatabaseDSN    string        `env:"WATCHROOM_DSN" envDefault:"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"`
	SigningSecret  string        `env:"WATCHROOM_SIGNING_KEY"`
	AllowedOrigins []string      `env:"WATCHROOM_ALLOWED_ORIGINS" envSeparator:","`
	ReapInterval   time.Duration `env:"WATCHROOM_REAP_INTERVAL" envDefault:"5m"`
	IdleTimeout    time.Duration `env:"WATCHROOM_IDLE_TIMEOUT" envDefault:"10m"`
}

func FromEnv() (Defaults, error) {
	var d Defaults
	if err := env.Parse(&d); err != nil {
		return Defaults{}, fmt.Errorf("parse environment: %w", err)
	}

	return d, nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, reapInterval, idleTimeout time.Duration) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if reapInterval <= 0 {
		return nil, fmt.Errorf("reap interval must be positive")
	}
	if idleTimeout <= 0 {
		return nil, fmt.Errorf("idle timeout must be positive")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		ReapInterval:   reapInterval,
		IdleTimeout:    idleTimeout,
	}, nil
}
