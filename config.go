package campusauth

import (
	"errors"
	"time"
)

// Config is the full engine configuration. Start from [DefaultConfig] and
// override individual sections.
type Config struct {
	JWT           JWTConfig
	TOTP          TOTPConfig
	Lockout       LockoutConfig
	Lifecycle     LifecycleConfig
	PasswordReset PasswordResetConfig
	Password      PasswordConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures session and MFA challenge tokens. Tokens are signed
// with HS256 using SigningKey.
type JWTConfig struct {
	SigningKey   []byte
	SessionTTL   time.Duration
	ChallengeTTL time.Duration
	Issuer       string
	Leeway       time.Duration

	// KeyID is written to the kid header. VerifyKeys holds retired keys
	// by kid so tokens signed before a rotation keep validating.
	KeyID      string
	VerifyKeys map[string][]byte
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig configures the authenticator-app second factor.
type TOTPConfig struct {
	Issuer string
	Period int
	Digits int
	// Skew is the number of adjacent time steps accepted on each side.
	Skew             int
	BackupCodeCount  int
	BackupCodeLength int
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig configures the failed-login lockout policy.
type LockoutConfig struct {
	Threshold        int
	Duration         time.Duration
	CountMFAFailures bool
}

/*
====================================
LIFECYCLE CONFIG
====================================
*/

// LifecycleConfig configures account expiration and the reconciliation job.
type LifecycleConfig struct {
	AdminRole         string
	LoginExtension    time.Duration
	AdminHorizonYears int
	ReconcileInterval time.Duration
	MaxRuntime        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordResetConfig configures the forgot-password flow.
type PasswordResetConfig struct {
	TokenTTL time.Duration
	// RateWindow is the fixed window in which one request per client address and step is allowed.
	RateWindow time.Duration
}

// PasswordConfig selects the built-in hasher and the password policy.
type PasswordConfig struct {
	Algorithm   string // "argon2id" (default) or "bcrypt"
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	BcryptCost  int
	MinLength   int
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. JWT.SigningKey must still be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SessionTTL:   24 * time.Hour,
			ChallengeTTL: 5 * time.Minute,
			Issuer:       "campusauth",
			Leeway:       0,
		},
		TOTP: TOTPConfig{
			Issuer:           "Campus Records",
			Period:           30,
			Digits:           6,
			Skew:             1,
			BackupCodeCount:  10,
			BackupCodeLength: 8,
		},
		Lockout: LockoutConfig{
			Threshold:        5,
			Duration:         time.Minute,
			CountMFAFailures: true,
		},
		Lifecycle: LifecycleConfig{
			AdminRole:         "ROLE_ADMIN",
			LoginExtension:    30 * 24 * time.Hour,
			AdminHorizonYears: 100,
			ReconcileInterval: 24 * time.Hour,
			MaxRuntime:        10 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:   15 * time.Minute,
			RateWindow: 5 * time.Second,
		},
		Password: PasswordConfig{
			Algorithm:   "argon2id",
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			BcryptCost:  12,
			MinLength:   8,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.SigningKey = cloneBytes(cfg.JWT.SigningKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
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

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.SigningKey) < 32 {
		return errors.New("JWT SigningKey must be at least 32 bytes")
	}
	if c.JWT.SessionTTL <= 0 {
		return errors.New("JWT SessionTTL must be > 0")
	}
	if c.JWT.ChallengeTTL <= 0 {
		return errors.New("JWT ChallengeTTL must be > 0")
	}
	if c.JWT.ChallengeTTL > 15*time.Minute {
		return errors.New("JWT ChallengeTTL must be <= 15m")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// TOTP
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits != 6 {
		return errors.New("TOTP Digits must be 6")
	}
	if c.TOTP.Period < 15 || c.TOTP.Period > 60 {
		return errors.New("TOTP Period must be between 15 and 60 seconds")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP Skew must be between 0 and 2")
	}
	if c.TOTP.BackupCodeCount <= 0 {
		return errors.New("TOTP BackupCodeCount must be > 0")
	}
	if c.TOTP.BackupCodeLength < 8 {
		return errors.New("TOTP BackupCodeLength must be >= 8")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Lifecycle
	if c.Lifecycle.AdminRole == "" {
		return errors.New("Lifecycle AdminRole is required")
	}
	if c.Lifecycle.LoginExtension <= 0 {
		return errors.New("Lifecycle LoginExtension must be > 0")
	}
	if c.Lifecycle.AdminHorizonYears <= 0 {
		return errors.New("Lifecycle AdminHorizonYears must be > 0")
	}
	if c.Lifecycle.ReconcileInterval <= 0 {
		return errors.New("Lifecycle ReconcileInterval must be > 0")
	}
	if c.Lifecycle.MaxRuntime <= 0 || c.Lifecycle.MaxRuntime > c.Lifecycle.ReconcileInterval {
		return errors.New("Lifecycle MaxRuntime must be > 0 and <= ReconcileInterval")
	}

	// Password reset
	if c.PasswordReset.TokenTTL <= 0 || c.PasswordReset.TokenTTL > time.Hour {
		return errors.New("PasswordReset TokenTTL must be > 0 and <= 1h")
	}
	if c.PasswordReset.RateWindow <= 0 {
		return errors.New("PasswordReset RateWindow must be > 0")
	}

	// Password
	switch c.Password.Algorithm {
	case "argon2id":
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
	case "bcrypt":
		if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
			return errors.New("Password BcryptCost must be between 4 and 31")
		}
	default:
		return errors.New("Password Algorithm must be argon2id or bcrypt")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
