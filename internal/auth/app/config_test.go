package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/passwordless/pkg/slogx"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable LoadConfig reads; empty counts as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		ConfigFileEnv, "AUTH_ISSUER", "AUTH_JWT_SECRET", "AUTH_TOKEN_TTL",
		"AUTH_CODE_TTL", "AUTH_CODE_COOLDOWN", "AUTH_CODE_WINDOW", "AUTH_CODE_MAX_PER_WINDOW", "AUTH_CODE_RETENTION",
		"AUTH_REQUEST_IP_MAX", "AUTH_REQUEST_IP_WINDOW", "AUTH_VERIFY_IP_MAX", "AUTH_VERIFY_IP_WINDOW",
		"AUTH_LOCKOUT_MAX_ATTEMPTS", "AUTH_LOCKOUT_WINDOW", "AUTH_LOCKOUT_DURATION", "AUTH_LOCKOUT_SWEEP_INTERVAL",
		"AUTH_REVOCATION_BACKEND", "AUTH_REVOCATION_SWEEP_INTERVAL", "AUTH_REDIS_ADDR", "AUTH_ADMIN_EMAILS",
		"AUTH_NOTIFIER", "AUTH_SMTP_HOST", "AUTH_SMTP_PORT", "AUTH_SMTP_USERNAME", "AUTH_SMTP_PASSWORD", "AUTH_SMTP_FROM",
		"AUTH_DATABASE_FILE", "AUTH_PEPPER_FILE", "ENV", "LOG_LEVEL", "LOG_FORMAT", "PORT",
		"SHUTDOWN_GRACE_PERIOD", "HOUSEKEEPING_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate(), "defaults must be valid in dev")
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
issuer: from-file
code_ttl: 5m
code_max_per_window: 3
revocation_backend: redis
redis_addr: localhost:6379
admin_emails:
  - root@example.com
smtp:
  host: mail.example.com
  port: 2525
  from: auth@example.com
`), 0600))

	clearEnv(t)
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("AUTH_ISSUER", "from-env")
	t.Setenv("AUTH_LOCKOUT_DURATION", "45") // bare integers are minutes
	t.Setenv("AUTH_ADMIN_EMAILS", "a@example.com, b@example.com ,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "from-env", cfg.Issuer, "env wins over file")
	require.Equal(t, 5*time.Minute, cfg.CodeTTL)
	require.Equal(t, 3, cfg.CodeMaxPerWindow)
	require.Equal(t, RevocationRedis, cfg.RevocationBackend)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.AdminEmails)
	require.Equal(t, 45*time.Minute, cfg.LockoutDuration)
	require.Equal(t, "mail.example.com", cfg.SMTP.Host)
	require.Equal(t, 2525, cfg.SMTP.Port)

	// Untouched keys keep their defaults.
	require.Equal(t, time.Minute, cfg.CodeCooldown)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_BadFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := LoadConfig()
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("code_ttl: [not a duration"), 0600))
	t.Setenv(ConfigFileEnv, path)
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"prod without secret", func(c *Config) { c.Env = "prod" }, false},
		{"prod with secret", func(c *Config) { c.Env = "prod"; c.JWTSecret = "x" }, true},
		{"zero code ttl", func(c *Config) { c.CodeTTL = 0 }, false},
		{"negative cooldown", func(c *Config) { c.CodeCooldown = -time.Second }, false},
		{"zero lockout attempts", func(c *Config) { c.LockoutMaxAttempts = 0 }, false},
		{"redis without addr", func(c *Config) { c.RevocationBackend = RevocationRedis }, false},
		{"unknown backend", func(c *Config) { c.RevocationBackend = "etcd" }, false},
		{"unknown notifier", func(c *Config) { c.Notifier = "pigeon" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if tt.ok {
				require.NoError(t, cfg.Validate())
			} else {
				require.Error(t, cfg.Validate())
			}
		})
	}
}

func TestInitSessionKeys(t *testing.T) {
	logger := slogx.Discard()

	t.Run("dev generates a secret", func(t *testing.T) {
		signer, verifier, err := InitSessionKeys(DefaultConfig(), logger)
		require.NoError(t, err)
		require.Equal(t, "HS256", signer.Alg())
		require.NotNil(t, verifier)
	})

	t.Run("prod requires a secret", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Env = "prod"
		_, _, err := InitSessionKeys(cfg, logger)
		require.Error(t, err)
	})

	t.Run("short secret rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.JWTSecret = "too-short"
		_, _, err := InitSessionKeys(cfg, logger)
		require.Error(t, err)
	})
}
