package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"` // postgres | redis | memory
	PostgresDSN string `env:"POSTGRES_DSN"`
	RedisURL    string `env:"REDIS_URL"`
	// Zero keeps redis documents until overwritten.
	RedisTTL  time.Duration `env:"REDIS_TTL" envDefault:"0"`
	JWTSecret string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`

	PersistTimeout    time.Duration `env:"PERSIST_TIMEOUT" envDefault:"5s"`
	PersistRetries    uint64        `env:"PERSIST_RETRIES" envDefault:"3"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5s"`
	IdleTimeout       time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"10m"`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.PostgresDSN == "" {
			return Config{}, fmt.Errorf("POSTGRES_DSN is required with STORE_DRIVER=postgres")
		}
	case "redis":
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL is required with STORE_DRIVER=redis")
		}
	case "memory":
	default:
		return Config{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	return cfg, nil
}
