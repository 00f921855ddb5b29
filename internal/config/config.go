// Package config loads the example binaries' settings from environment
// variables, reading an optional .env file first.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// Load parses environment variables into cfg, which must be a pointer to a
// struct tagged for caarlos0/env. The .env file in the working directory, if
// present, is loaded once per process and never overrides variables that
// are already set.
func Load(cfg any) error {
	var dotenvErr error
	dotenvOnce.Do(func() {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			dotenvErr = fmt.Errorf("config: load .env: %w", err)
		}
	})
	if dotenvErr != nil {
		return dotenvErr
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}
	return nil
}

// MustLoad is like Load but panics on error. Intended for program startup.
func MustLoad(cfg any) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}

// Hub configures the broadcast server and client binaries.
type Hub struct {
	Addr          string        `env:"HUB_ADDR" envDefault:"localhost:8765"`
	Path          string        `env:"HUB_PATH" envDefault:"/ws"`
	MetricsAddr   string        `env:"HUB_METRICS_ADDR" envDefault:"localhost:9090"`
	ExcludeSender bool          `env:"HUB_EXCLUDE_SENDER" envDefault:"false"`
	SendTimeout   time.Duration `env:"HUB_SEND_TIMEOUT" envDefault:"5s"`
	RateLimit     float64       `env:"HUB_RATE_LIMIT" envDefault:"0"`
	RateBurst     int           `env:"HUB_RATE_BURST" envDefault:"10"`
	RedisURL      string        `env:"HUB_REDIS_URL"`
	RedisChannel  string        `env:"HUB_REDIS_CHANNEL" envDefault:"flowcore:hub"`
	Heartbeat     string        `env:"HUB_HEARTBEAT" envDefault:"@every 30s"`
	DrainTimeout  time.Duration `env:"HUB_DRAIN_TIMEOUT" envDefault:"10s"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON       bool          `env:"LOG_JSON" envDefault:"false"`
}

// Pipeline configures the producer/consumer demo binary.
type Pipeline struct {
	Items             int           `env:"PIPELINE_ITEMS" envDefault:"10"`
	Interval          time.Duration `env:"PIPELINE_INTERVAL" envDefault:"500ms"`
	Consumers         int           `env:"PIPELINE_CONSUMERS" envDefault:"2"`
	Buffer            int           `env:"PIPELINE_BUFFER" envDefault:"5"`
	Workers           int           `env:"PIPELINE_WORKERS" envDefault:"2"`
	Admission         int           `env:"PIPELINE_ADMISSION" envDefault:"0"`
	ProcessingTimeout time.Duration `env:"PIPELINE_PROCESSING_TIMEOUT" envDefault:"0s"`
	DrainTimeout      time.Duration `env:"PIPELINE_DRAIN_TIMEOUT" envDefault:"10s"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON           bool          `env:"LOG_JSON" envDefault:"false"`
}
