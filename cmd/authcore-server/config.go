package main

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// serverConfig is the host-level environment. Engine settings are read
// separately by authcore.LoadConfigFromEnv.
type serverConfig struct {
	Env  string `env:"APP_ENV" env-default:"production"`
	Host string `env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `env:"PORT" env-default:"4000"`

	RedisURL    string `env:"REDIS_URL" env-default:"redis://localhost:6379/0"`
	MongoURI    string `env:"MONGO_URI"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" env-default:"10"`

	CORSOrigins    []string `env:"CORS_ORIGINS" env-separator:"," env-default:"*"`
	RateLimitRPM   int      `env:"AUTH_RATE_LIMIT_RPM" env-default:"30"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" env-separator:","`

	SentryDSN string `env:"SENTRY_DSN"`

	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

func (c serverConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c serverConfig) development() bool {
	return c.Env == "development"
}

func loadServerConfig() (serverConfig, error) {
	var cfg serverConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return serverConfig{}, fmt.Errorf("read server env: %w", err)
	}
	if cfg.MongoURI == "" && cfg.DatabaseURL == "" {
		return serverConfig{}, errors.New("one of MONGO_URI or DATABASE_URL is required")
	}
	if cfg.MongoURI != "" && cfg.DatabaseURL != "" {
		return serverConfig{}, errors.New("MONGO_URI and DATABASE_URL are mutually exclusive")
	}
	return cfg, nil
}
