package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/campusauth"
	"gopkg.in/yaml.v3"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the resolved runtime configuration.
type Config struct {
	HTTPPort        int
	LogLevel        string
	Store           string
	ShutdownTimeout time.Duration
	// TrustProxy reads the client address from forwarding headers. Enable
	// only when every request arrives through a proxy that sets them.
	TrustProxy bool

	DatabaseURL string
	RedisURL    string
	MaxDBConns  int32

	// SeedAdminUsername and SeedAdminPassword create an administrator at
	// startup when the memory store is used.
	SeedAdminUsername string
	SeedAdminPassword string

	Auth campusauth.Config
}

type configFile struct {
	Service struct {
		HTTPPort        int           `yaml:"http_port"`
		LogLevel        string        `yaml:"log_level"`
		Store           string        `yaml:"store"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		TrustProxy      *bool         `yaml:"trust_proxy"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
		MaxDBConns  int32  `yaml:"max_db_conns"`
	} `yaml:"dependencies"`
	Auth struct {
		Issuer             string        `yaml:"issuer"`
		KeyID              string        `yaml:"key_id"`
		SessionTTL         time.Duration `yaml:"session_ttl"`
		ChallengeTTL       time.Duration `yaml:"challenge_ttl"`
		TOTPIssuer         string        `yaml:"totp_issuer"`
		TOTPSkew           *int          `yaml:"totp_skew"`
		LockoutThreshold   int           `yaml:"lockout_threshold"`
		LockoutDuration    time.Duration `yaml:"lockout_duration"`
		CountMFAFailures   *bool         `yaml:"count_mfa_failures"`
		AdminRole          string        `yaml:"admin_role"`
		LoginExtensionDays int           `yaml:"login_extension_days"`
		ReconcileInterval  time.Duration `yaml:"reconcile_interval"`
		ReconcileRuntime   time.Duration `yaml:"reconcile_max_runtime"`
		ResetTokenTTL      time.Duration `yaml:"reset_token_ttl"`
		ResetRateWindow    time.Duration `yaml:"reset_rate_window"`
		PasswordAlgorithm  string        `yaml:"password_algorithm"`
		PasswordMinLength  int           `yaml:"password_min_length"`
		AuditEnabled       *bool         `yaml:"audit_enabled"`
	} `yaml:"auth"`
	Seed struct {
		AdminUsername string `yaml:"admin_username"`
		AdminPassword string `yaml:"admin_password"`
	} `yaml:"seed"`
}

// LoadConfig resolves defaults, then the YAML file at path (skipped when
// missing), then environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		HTTPPort:        8080,
		LogLevel:        "info",
		Store:           StorePostgres,
		ShutdownTimeout: 10 * time.Second,
		MaxDBConns:      20,
		Auth:            campusauth.DefaultConfig(),
	}
	cfg.Auth.Audit.Enabled = true
	cfg.Auth.Metrics.Enabled = true
	cfg.Auth.Metrics.EnableLatencyHistograms = true

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var f configFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
		applyFile(&cfg, f)
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.TrustProxy = envBool("HTTP_TRUST_PROXY", cfg.TrustProxy)
	cfg.Store = strings.ToLower(strings.TrimSpace(envOrDefault("CAMPUSAUTH_STORE", cfg.Store)))
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.SeedAdminUsername = envOrDefault("SEED_ADMIN_USERNAME", cfg.SeedAdminUsername)
	cfg.SeedAdminPassword = envOrDefault("SEED_ADMIN_PASSWORD", cfg.SeedAdminPassword)

	if key := os.Getenv("JWT_SIGNING_KEY"); key != "" {
		cfg.Auth.JWT.SigningKey = []byte(key)
	}
	cfg.Auth.JWT.KeyID = envOrDefault("JWT_KEY_ID", cfg.Auth.JWT.KeyID)
	cfg.Auth.Lockout.Threshold = envInt("FAILED_LOGIN_THRESHOLD", cfg.Auth.Lockout.Threshold)
	cfg.Auth.Lockout.Duration = time.Duration(envInt("ACCOUNT_LOCKOUT_SECONDS", int(cfg.Auth.Lockout.Duration.Seconds()))) * time.Second

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) {
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.LogLevel != "" {
		cfg.LogLevel = f.Service.LogLevel
	}
	if f.Service.Store != "" {
		cfg.Store = strings.ToLower(f.Service.Store)
	}
	if f.Service.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = f.Service.ShutdownTimeout
	}
	if f.Service.TrustProxy != nil {
		cfg.TrustProxy = *f.Service.TrustProxy
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if f.Dependencies.MaxDBConns > 0 {
		cfg.MaxDBConns = f.Dependencies.MaxDBConns
	}
	cfg.SeedAdminUsername = f.Seed.AdminUsername
	cfg.SeedAdminPassword = f.Seed.AdminPassword

	a := f.Auth
	auth := &cfg.Auth
	if a.Issuer != "" {
		auth.JWT.Issuer = a.Issuer
	}
	if a.KeyID != "" {
		auth.JWT.KeyID = a.KeyID
	}
	if a.SessionTTL > 0 {
		auth.JWT.SessionTTL = a.SessionTTL
	}
	if a.ChallengeTTL > 0 {
		auth.JWT.ChallengeTTL = a.ChallengeTTL
	}
	if a.TOTPIssuer != "" {
		auth.TOTP.Issuer = a.TOTPIssuer
	}
	if a.TOTPSkew != nil {
		auth.TOTP.Skew = *a.TOTPSkew
	}
	if a.LockoutThreshold > 0 {
		auth.Lockout.Threshold = a.LockoutThreshold
	}
	if a.LockoutDuration > 0 {
		auth.Lockout.Duration = a.LockoutDuration
	}
	if a.CountMFAFailures != nil {
		auth.Lockout.CountMFAFailures = *a.CountMFAFailures
	}
	if a.AdminRole != "" {
		auth.Lifecycle.AdminRole = a.AdminRole
	}
	if a.LoginExtensionDays > 0 {
		auth.Lifecycle.LoginExtension = time.Duration(a.LoginExtensionDays) * 24 * time.Hour
	}
	if a.ReconcileInterval > 0 {
		auth.Lifecycle.ReconcileInterval = a.ReconcileInterval
	}
	if a.ReconcileRuntime > 0 {
		auth.Lifecycle.MaxRuntime = a.ReconcileRuntime
	}
	if a.ResetTokenTTL > 0 {
		auth.PasswordReset.TokenTTL = a.ResetTokenTTL
	}
	if a.ResetRateWindow > 0 {
		auth.PasswordReset.RateWindow = a.ResetRateWindow
	}
	if a.PasswordAlgorithm != "" {
		auth.Password.Algorithm = strings.ToLower(a.PasswordAlgorithm)
	}
	if a.PasswordMinLength > 0 {
		auth.Password.MinLength = a.PasswordMinLength
	}
	if a.AuditEnabled != nil {
		auth.Audit.Enabled = *a.AuditEnabled
	}
}

func (c Config) validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("missing DB_URL/POSTGRES_URL")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.RedisURL == "" {
		return errors.New("missing REDIS_URL")
	}
	if (c.SeedAdminUsername == "") != (c.SeedAdminPassword == "") {
		return errors.New("seed admin needs both username and password")
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
