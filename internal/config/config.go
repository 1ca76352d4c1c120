package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN     string `env:"DATABASE_DSN,required=true"`
	RedisURL        string `env:"REDIS_URL,required=true"`
	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY,required=true"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY,required=true"`
	VAPIDSubscriber string `env:"VAPID_SUBSCRIBER,default=mailto:admin@localhost"`

	BatchSize          int `env:"BATCH_SIZE,default=50"`
	SendConcurrency    int `env:"SEND_CONCURRENCY,default=8"`
	SendTimeoutSeconds int `env:"SEND_TIMEOUT_SECONDS,default=10"`
	SendRatePerSec     int `env:"SEND_RATE_PER_SEC,default=100"`
	LeaseSeconds       int `env:"LEASE_SECONDS,default=60"`
	MaxTickFailures    int `env:"MAX_TICK_FAILURES,default=3"`
	PayloadMaxBytes    int `env:"PAYLOAD_MAX_BYTES,default=3800"`

	// TickIntervalSeconds drives the internal tick runner; 0 disables it so
	// an external scheduler can own the tick cadence instead.
	TickIntervalSeconds int `env:"TICK_INTERVAL_SECONDS,default=5"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseSeconds) * time.Second
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}
