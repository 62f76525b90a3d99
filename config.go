package authcore

import (
	"errors"
	"time"
)

// Config holds every tunable of the Engine. Start from DefaultConfig or
// LoadConfigFromEnv and adjust fields before passing it to the Builder.
type Config struct {
	Tokens       TokenConfig
	Throttle     ThrottleConfig
	Verification VerificationConfig
	Store        StoreConfig
	Password     PasswordConfig
	Audit        AuditConfig
	Mail         MailConfig
	Metrics      MetricsConfig
}

// TokenConfig holds per-kind HMAC secrets and validity windows.
// AccessSecret falls back to SharedSecret when empty.
type TokenConfig struct {
	AccessSecret  []byte
	SharedSecret  []byte
	RefreshSecret []byte
	EmailSecret   []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	EmailTTL      time.Duration
	Issuer        string
	Leeway        time.Duration
}

// ThrottleConfig bounds failed sign-ins per identifier. AttemptWindow is
// both the fast counter's lifetime and the durable lock duration.
type ThrottleConfig struct {
	AttemptLimit  int
	AttemptWindow time.Duration
}

type VerificationConfig struct {
	AllowUnverifiedLogin bool
	// VerifiedOnSignUp creates accounts already verified and sends no mail.
	VerifiedOnSignUp bool
}

// StoreConfig bounds every backing-store call.
type StoreConfig struct {
	KeyPrefix      string
	CounterTimeout time.Duration
	RecordTimeout  time.Duration
}

type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MinPasswordBytes int
	MaxPasswordBytes int
	UpgradeOnLogin   bool
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MailConfig struct {
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the defaults with no secrets set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			EmailTTL:   24 * time.Hour,
		},
		Throttle: ThrottleConfig{
			AttemptLimit:  5,
			AttemptWindow: 900 * time.Second,
		},
		Store: StoreConfig{
			KeyPrefix:      "auth",
			CounterTimeout: 500 * time.Millisecond,
			RecordTimeout:  3 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Mail: MailConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Tokens.AccessSecret = cloneBytes(cfg.Tokens.AccessSecret)
	out.Tokens.SharedSecret = cloneBytes(cfg.Tokens.SharedSecret)
	out.Tokens.RefreshSecret = cloneBytes(cfg.Tokens.RefreshSecret)
	out.Tokens.EmailSecret = cloneBytes(cfg.Tokens.EmailSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate rejects configurations the Engine cannot run with. An empty
// EmailSecret is allowed; email-verification operations then fail with
// ErrSigning.
func (c *Config) Validate() error {
	if len(c.Tokens.AccessSecret) == 0 && len(c.Tokens.SharedSecret) == 0 {
		return errors.New("Tokens AccessSecret or SharedSecret is required")
	}
	if len(c.Tokens.RefreshSecret) == 0 {
		return errors.New("Tokens RefreshSecret is required")
	}
	if c.Tokens.AccessTTL <= 0 {
		return errors.New("Tokens AccessTTL must be > 0")
	}
	if c.Tokens.RefreshTTL <= 0 {
		return errors.New("Tokens RefreshTTL must be > 0")
	}
	if c.Tokens.EmailTTL <= 0 {
		return errors.New("Tokens EmailTTL must be > 0")
	}
	if c.Tokens.Leeway < 0 || c.Tokens.Leeway > 2*time.Minute {
		return errors.New("Tokens Leeway must be between 0 and 2m")
	}

	if c.Throttle.AttemptLimit < 1 {
		return errors.New("Throttle AttemptLimit must be >= 1")
	}
	if c.Throttle.AttemptWindow < time.Second {
		return errors.New("Throttle AttemptWindow must be >= 1s")
	}

	if c.Store.CounterTimeout <= 0 {
		return errors.New("Store CounterTimeout must be > 0")
	}
	if c.Store.RecordTimeout <= 0 {
		return errors.New("Store RecordTimeout must be > 0")
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinPasswordBytes < 0 || c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password length bounds must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}
	if c.Mail.BufferSize <= 0 {
		return errors.New("Mail BufferSize must be > 0")
	}

	return nil
}
