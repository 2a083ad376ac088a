package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/passwordless/internal/auth/notify"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the optional YAML file loaded before the environment.
const ConfigFileEnv = "AUTH_CONFIG_FILE"

const (
	RevocationMemory = "memory"
	RevocationRedis  = "redis"

	NotifierLog  = "log"
	NotifierSMTP = "smtp"
)

type Config struct {
	Issuer    string        `yaml:"issuer"`     // issuer claim for tokens (default: passwordless-auth)
	JWTSecret string        `yaml:"jwt_secret"` // HS256 secret, required outside dev
	TokenTTL  time.Duration `yaml:"token_ttl"`  // session token lifetime (default: 24h)

	CodeTTL          time.Duration `yaml:"code_ttl"`            // default: 10m
	CodeCooldown     time.Duration `yaml:"code_cooldown"`       // default: 1m
	CodeWindow       time.Duration `yaml:"code_window"`         // default: 3m
	CodeMaxPerWindow int           `yaml:"code_max_per_window"` // default: 1
	CodeRetention    time.Duration `yaml:"code_retention"`      // housekeeping prune age (default: 30 days)

	RequestIPMax    int           `yaml:"request_ip_max"`    // default: 10
	RequestIPWindow time.Duration `yaml:"request_ip_window"` // default: 1m
	VerifyIPMax     int           `yaml:"verify_ip_max"`     // default: 20
	VerifyIPWindow  time.Duration `yaml:"verify_ip_window"`  // default: 1m

	LockoutMaxAttempts   int           `yaml:"lockout_max_attempts"`   // default: 5
	LockoutWindow        time.Duration `yaml:"lockout_window"`         // default: 15m
	LockoutDuration      time.Duration `yaml:"lockout_duration"`       // default: 30m
	LockoutSweepInterval time.Duration `yaml:"lockout_sweep_interval"` // default: 5m

	RevocationBackend       string        `yaml:"revocation_backend"`        // memory or redis (default: memory)
	RevocationSweepInterval time.Duration `yaml:"revocation_sweep_interval"` // default: 1h
	RedisAddr               string        `yaml:"redis_addr"`                // host:port or redis:// URL

	AdminEmails []string `yaml:"admin_emails"` // provisioned with the ADMIN role

	Notifier string            `yaml:"notifier"` // log or smtp (default: log)
	SMTP     notify.SMTPConfig `yaml:"smtp"`

	DatabaseFile string `yaml:"database_file"` // default: ./auth.db
	PepperFile   string `yaml:"pepper_file"`   // default: ./pepper

	Env                  string        `yaml:"env"`                   // dev, staging, prod (default: dev)
	LogLevel             string        `yaml:"log_level"`             // default: info
	LogFormat            string        `yaml:"log_format"`            // json or text (default: json)
	Port                 int           `yaml:"port"`                  // default: 8080
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"` // default: 10s
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"` // default: 5m
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Issuer:   "passwordless-auth",
		TokenTTL: 24 * time.Hour,

		CodeTTL:          10 * time.Minute,
		CodeCooldown:     time.Minute,
		CodeWindow:       3 * time.Minute,
		CodeMaxPerWindow: 1,
		CodeRetention:    30 * 24 * time.Hour,

		RequestIPMax:    10,
		RequestIPWindow: time.Minute,
		VerifyIPMax:     20,
		VerifyIPWindow:  time.Minute,

		LockoutMaxAttempts:   5,
		LockoutWindow:        15 * time.Minute,
		LockoutDuration:      30 * time.Minute,
		LockoutSweepInterval: 5 * time.Minute,

		RevocationBackend:       RevocationMemory,
		RevocationSweepInterval: time.Hour,

		Notifier: NotifierLog,
		SMTP:     notify.SMTPConfig{Port: 587},

		DatabaseFile: "auth.db",
		PepperFile:   "pepper",

		Env:                  "dev",
		LogLevel:             "info",
		LogFormat:            "json",
		Port:                 8080,
		ShutdownGracePeriod:  10 * time.Second,
		HousekeepingInterval: 5 * time.Minute,
	}
}

// LoadConfig layers defaults, then the YAML file named by AUTH_CONFIG_FILE,
// then environment variables. The environment always wins.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Issuer = getEnvOrDefault("AUTH_ISSUER", cfg.Issuer)
	cfg.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = getEnvDurationOrDefault("AUTH_TOKEN_TTL", cfg.TokenTTL)

	cfg.CodeTTL = getEnvDurationOrDefault("AUTH_CODE_TTL", cfg.CodeTTL)
	cfg.CodeCooldown = getEnvDurationOrDefault("AUTH_CODE_COOLDOWN", cfg.CodeCooldown)
	cfg.CodeWindow = getEnvDurationOrDefault("AUTH_CODE_WINDOW", cfg.CodeWindow)
	cfg.CodeMaxPerWindow = getEnvIntOrDefault("AUTH_CODE_MAX_PER_WINDOW", cfg.CodeMaxPerWindow)
	cfg.CodeRetention = getEnvDurationOrDefault("AUTH_CODE_RETENTION", cfg.CodeRetention)

	cfg.RequestIPMax = getEnvIntOrDefault("AUTH_REQUEST_IP_MAX", cfg.RequestIPMax)
	cfg.RequestIPWindow = getEnvDurationOrDefault("AUTH_REQUEST_IP_WINDOW", cfg.RequestIPWindow)
	cfg.VerifyIPMax = getEnvIntOrDefault("AUTH_VERIFY_IP_MAX", cfg.VerifyIPMax)
	cfg.VerifyIPWindow = getEnvDurationOrDefault("AUTH_VERIFY_IP_WINDOW", cfg.VerifyIPWindow)

	cfg.LockoutMaxAttempts = getEnvIntOrDefault("AUTH_LOCKOUT_MAX_ATTEMPTS", cfg.LockoutMaxAttempts)
	cfg.LockoutWindow = getEnvDurationOrDefault("AUTH_LOCKOUT_WINDOW", cfg.LockoutWindow)
	cfg.LockoutDuration = getEnvDurationOrDefault("AUTH_LOCKOUT_DURATION", cfg.LockoutDuration)
	cfg.LockoutSweepInterval = getEnvDurationOrDefault("AUTH_LOCKOUT_SWEEP_INTERVAL", cfg.LockoutSweepInterval)

	cfg.RevocationBackend = strings.ToLower(getEnvOrDefault("AUTH_REVOCATION_BACKEND", cfg.RevocationBackend))
	cfg.RevocationSweepInterval = getEnvDurationOrDefault("AUTH_REVOCATION_SWEEP_INTERVAL", cfg.RevocationSweepInterval)
	cfg.RedisAddr = getEnvOrDefault("AUTH_REDIS_ADDR", cfg.RedisAddr)

	if v := os.Getenv("AUTH_ADMIN_EMAILS"); v != "" {
		cfg.AdminEmails = splitList(v)
	}

	cfg.Notifier = strings.ToLower(getEnvOrDefault("AUTH_NOTIFIER", cfg.Notifier))
	cfg.SMTP.Host = getEnvOrDefault("AUTH_SMTP_HOST", cfg.SMTP.Host)
	cfg.SMTP.Port = getEnvIntOrDefault("AUTH_SMTP_PORT", cfg.SMTP.Port)
	cfg.SMTP.Username = getEnvOrDefault("AUTH_SMTP_USERNAME", cfg.SMTP.Username)
	cfg.SMTP.Password = getEnvOrDefault("AUTH_SMTP_PASSWORD", cfg.SMTP.Password)
	cfg.SMTP.From = getEnvOrDefault("AUTH_SMTP_FROM", cfg.SMTP.From)

	cfg.DatabaseFile = getEnvOrDefault("AUTH_DATABASE_FILE", cfg.DatabaseFile)
	cfg.PepperFile = getEnvOrDefault("AUTH_PEPPER_FILE", cfg.PepperFile)

	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)
	cfg.HousekeepingInterval = getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", cfg.HousekeepingInterval)

	return cfg, nil
}

// IsDev reports whether the service runs in the development environment.
func (c Config) IsDev() bool { return c.Env == "dev" }

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error

	positive := map[string]time.Duration{
		"token_ttl":                 c.TokenTTL,
		"code_ttl":                  c.CodeTTL,
		"code_cooldown":             c.CodeCooldown,
		"code_window":               c.CodeWindow,
		"code_retention":            c.CodeRetention,
		"request_ip_window":         c.RequestIPWindow,
		"verify_ip_window":          c.VerifyIPWindow,
		"lockout_window":            c.LockoutWindow,
		"lockout_duration":          c.LockoutDuration,
		"lockout_sweep_interval":    c.LockoutSweepInterval,
		"revocation_sweep_interval": c.RevocationSweepInterval,
		"shutdown_grace_period":     c.ShutdownGracePeriod,
		"housekeeping_interval":     c.HousekeepingInterval,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	counts := map[string]int{
		"code_max_per_window":  c.CodeMaxPerWindow,
		"request_ip_max":       c.RequestIPMax,
		"verify_ip_max":        c.VerifyIPMax,
		"lockout_max_attempts": c.LockoutMaxAttempts,
		"port":                 c.Port,
	}
	for name, n := range counts {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if c.JWTSecret == "" && !c.IsDev() {
		errs = append(errs, errors.New("jwt_secret is required outside dev"))
	}

	switch c.RevocationBackend {
	case RevocationMemory:
	case RevocationRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required for the redis revocation backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown revocation backend %q", c.RevocationBackend))
	}

	switch c.Notifier {
	case NotifierLog, NotifierSMTP:
	default:
		errs = append(errs, fmt.Errorf("unknown notifier %q", c.Notifier))
	}

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
