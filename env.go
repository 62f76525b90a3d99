package authcore

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// envConfig mirrors the environment surface. TTLs are read as strings so
// day suffixes ("7d") parse through ParseTTL.
type envConfig struct {
	AccessSecret  string `env:"JWT_ACCESS_SECRET"`
	SharedSecret  string `env:"JWT_SECRET"`
	RefreshSecret string `env:"JWT_REFRESH_SECRET"`
	EmailSecret   string `env:"JWT_EMAIL_SECRET"`
	AccessTTL     string `env:"JWT_ACCESS_EXPIRES" env-default:"15m"`
	RefreshTTL    string `env:"JWT_REFRESH_EXPIRES" env-default:"7d"`
	EmailTTL      string `env:"JWT_EMAIL_EXPIRES" env-default:"1d"`
	Issuer        string `env:"JWT_ISSUER"`

	AttemptLimit  int `env:"LOGIN_ATTEMPT_LIMIT" env-default:"5"`
	AttemptWindow int `env:"LOGIN_ATTEMPT_WINDOW" env-default:"900"`

	AllowUnverifiedLogin bool `env:"ALLOW_UNVERIFIED_LOGIN" env-default:"false"`

	KeyPrefix      string        `env:"AUTH_KEY_PREFIX" env-default:"auth"`
	CounterTimeout time.Duration `env:"COUNTER_TIMEOUT" env-default:"500ms"`
	RecordTimeout  time.Duration `env:"RECORD_TIMEOUT" env-default:"3s"`
}

// LoadConfigFromEnv builds a Config from process environment variables.
// Each path in dotenv is loaded first without overriding variables that are
// already set; missing files are skipped. The result is validated.
func LoadConfigFromEnv(dotenv ...string) (Config, error) {
	for _, p := range dotenv {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", p, err)
		}
	}

	var env envConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	cfg, err := env.toConfig()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (e envConfig) toConfig() (Config, error) {
	cfg := defaultConfig()

	cfg.Tokens.AccessSecret = bytesOrNil(e.AccessSecret)
	cfg.Tokens.SharedSecret = bytesOrNil(e.SharedSecret)
	cfg.Tokens.RefreshSecret = bytesOrNil(e.RefreshSecret)
	cfg.Tokens.EmailSecret = bytesOrNil(e.EmailSecret)
	cfg.Tokens.Issuer = e.Issuer

	var err error
	if cfg.Tokens.AccessTTL, err = ParseTTL(e.AccessTTL); err != nil {
		return Config{}, fmt.Errorf("JWT_ACCESS_EXPIRES: %w", err)
	}
	if cfg.Tokens.RefreshTTL, err = ParseTTL(e.RefreshTTL); err != nil {
		return Config{}, fmt.Errorf("JWT_REFRESH_EXPIRES: %w", err)
	}
	if cfg.Tokens.EmailTTL, err = ParseTTL(e.EmailTTL); err != nil {
		return Config{}, fmt.Errorf("JWT_EMAIL_EXPIRES: %w", err)
	}

	cfg.Throttle.AttemptLimit = e.AttemptLimit
	cfg.Throttle.AttemptWindow = time.Duration(e.AttemptWindow) * time.Second
	cfg.Verification.AllowUnverifiedLogin = e.AllowUnverifiedLogin

	cfg.Store.KeyPrefix = e.KeyPrefix
	cfg.Store.CounterTimeout = e.CounterTimeout
	cfg.Store.RecordTimeout = e.RecordTimeout

	return cfg, nil
}

func bytesOrNil(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}
