// Package config reads postsctl settings from QUERYCACHE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "QUERYCACHE_"

type Config struct {
	BaseURL     string        `env:"BASE_URL" envDefault:"http://localhost:3001"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
	UserAgent   string        `env:"USER_AGENT" envDefault:"postsctl"`

	Namespace string        `env:"NAMESPACE" envDefault:"postsctl"`
	Provider  string        `env:"PROVIDER" envDefault:"ristretto"`
	Codec     string        `env:"CODEC" envDefault:"json"`
	GenStore  string        `env:"GENSTORE" envDefault:"local"`
	RedisAddr string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	EntryTTL  time.Duration `env:"ENTRY_TTL" envDefault:"30m"`
	// MaxValueBytes caps decoded values read back from a Redis provider.
	MaxValueBytes int `env:"MAX_VALUE_BYTES" envDefault:"1048576"`

	StaleTime  time.Duration `env:"STALE_TIME"`
	Retries    int           `env:"RETRIES" envDefault:"1"`
	RetryDelay time.Duration `env:"RETRY_DELAY" envDefault:"200ms"`

	LogBackend string `env:"LOG_BACKEND" envDefault:"zap"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// OTLPEndpoint enables tracing when set, e.g. http://localhost:4318.
	OTLPEndpoint string `env:"OTLP_ENDPOINT"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base URL %q is not absolute", c.BaseURL))
	}
	if !oneOf(c.Provider, "ristretto", "bigcache", "redis") {
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	if !oneOf(c.Codec, "json", "cbor", "msgpack") {
		errs = append(errs, fmt.Errorf("unknown codec %q", c.Codec))
	}
	if !oneOf(c.GenStore, "local", "redis") {
		errs = append(errs, fmt.Errorf("unknown genstore %q", c.GenStore))
	}
	if !oneOf(c.LogBackend, "zap", "logrus", "slog") {
		errs = append(errs, fmt.Errorf("unknown log backend %q", c.LogBackend))
	}
	if c.Retries < 0 {
		errs = append(errs, errors.New("retries must not be negative"))
	}
	if c.MaxValueBytes < 0 {
		errs = append(errs, errors.New("max value bytes must not be negative"))
	}
	if c.Namespace == "" {
		errs = append(errs, errors.New("namespace is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c Config) UsesRedis() bool {
	return c.Provider == "redis" || c.GenStore == "redis"
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
