package authcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "test config", mutate: func(*Config) {}, wantValid: true},
		{
			name: "shared secret covers access",
			mutate: func(c *Config) {
				c.Tokens.AccessSecret = nil
				c.Tokens.SharedSecret = []byte("shared")
			},
			wantValid: true,
		},
		{
			name:      "no access secret",
			mutate:    func(c *Config) { c.Tokens.AccessSecret = nil },
			wantValid: false,
		},
		{
			name:      "no refresh secret",
			mutate:    func(c *Config) { c.Tokens.RefreshSecret = nil },
			wantValid: false,
		},
		{
			name:      "no email secret",
			mutate:    func(c *Config) { c.Tokens.EmailSecret = nil },
			wantValid: true,
		},
		{
			name:      "zero access ttl",
			mutate:    func(c *Config) { c.Tokens.AccessTTL = 0 },
			wantValid: false,
		},
		{
			name:      "negative refresh ttl",
			mutate:    func(c *Config) { c.Tokens.RefreshTTL = -time.Second },
			wantValid: false,
		},
		{
			name:      "zero email ttl",
			mutate:    func(c *Config) { c.Tokens.EmailTTL = 0 },
			wantValid: false,
		},
		{
			name:      "leeway too large",
			mutate:    func(c *Config) { c.Tokens.Leeway = 3 * time.Minute },
			wantValid: false,
		},
		{
			name:      "attempt limit zero",
			mutate:    func(c *Config) { c.Throttle.AttemptLimit = 0 },
			wantValid: false,
		},
		{
			name:      "attempt limit one",
			mutate:    func(c *Config) { c.Throttle.AttemptLimit = 1 },
			wantValid: true,
		},
		{
			name:      "window below a second",
			mutate:    func(c *Config) { c.Throttle.AttemptWindow = 500 * time.Millisecond },
			wantValid: false,
		},
		{
			name:      "counter timeout zero",
			mutate:    func(c *Config) { c.Store.CounterTimeout = 0 },
			wantValid: false,
		},
		{
			name:      "argon memory too low",
			mutate:    func(c *Config) { c.Password.Memory = 1024 },
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, 15*time.Minute, cfg.Tokens.AccessTTL)
	require.Equal(t, 7*24*time.Hour, cfg.Tokens.RefreshTTL)
	require.Equal(t, 24*time.Hour, cfg.Tokens.EmailTTL)
	require.Equal(t, 5, cfg.Throttle.AttemptLimit)
	require.Equal(t, 15*time.Minute, cfg.Throttle.AttemptWindow)
	require.Equal(t, "auth", cfg.Store.KeyPrefix)
	require.False(t, cfg.Verification.AllowUnverifiedLogin)
	require.Error(t, cfg.Validate(), "defaults carry no secrets")
}

func TestCloneConfigCopiesSecrets(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)

	cfg.Tokens.AccessSecret[0] = 'X'
	require.NotEqual(t, cfg.Tokens.AccessSecret[0], clone.Tokens.AccessSecret[0])
}
