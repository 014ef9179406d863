package campusauth

import (
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/campusauth/internal/audit"
	"github.com/MrEthical07/campusauth/internal/limiters"
	"github.com/MrEthical07/campusauth/internal/stores"
	"github.com/MrEthical07/campusauth/jwt"
	"github.com/MrEthical07/campusauth/password"
	"github.com/MrEthical07/campusauth/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// dummyPassword is hashed once at build time; unknown usernames are verified
// against it.
const dummyPassword = "campusauth-dummy-password"

// Builder assembles an [Engine]. Configure it during initialization and call
// Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userProvider UserProvider
	hasher       PasswordHasher
	auditSink    AuditSink
	logger       *zap.Logger
	clock        func() time.Time

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the revocation list, reset tokens and
// reset rate limits. Both *redis.Client and cluster clients are accepted.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithHasher replaces the comparator built from Config.Password.
func (b *Builder) WithHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination. Audit must also be enabled in
// Config.Audit.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source. Tests use it to move through lockout
// windows and expiration deadlines.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. A builder can only
// be built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	hasher := b.hasher
	if hasher == nil {
		h, err := newHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
		hasher = h
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	verifyKeys := cfg.JWT.VerifyKeys
	if cfg.JWT.KeyID != "" {
		verifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys)+1)
		for kid, key := range cfg.JWT.VerifyKeys {
			verifyKeys[kid] = key
		}
		verifyKeys[cfg.JWT.KeyID] = cfg.JWT.SigningKey
	}
	jwtManager, err := jwt.NewManager(jwt.Config{
		SigningKey:   cfg.JWT.SigningKey,
		SessionTTL:   cfg.JWT.SessionTTL,
		ChallengeTTL: cfg.JWT.ChallengeTTL,
		Issuer:       cfg.JWT.Issuer,
		Leeway:       cfg.JWT.Leeway,
		KeyID:        cfg.JWT.KeyID,
		VerifyKeys:   verifyKeys,
		Now:          clock,
	})
	if err != nil {
		return nil, err
	}

	var dispatcher *internalaudit.Dispatcher
	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = internalaudit.NewZapSink(logger)
		}
		dispatcher = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink)
	}

	b.built = true

	return &Engine{
		config:       cfg,
		userProvider: b.userProvider,
		hasher:       hasher,
		totp:         newTOTPManager(cfg.TOTP),
		jwtManager:   jwtManager,
		revocations:  session.NewRevocationList(b.redis, cfg.JWT.SessionTTL, clock),
		resetStore:   stores.NewPasswordResetStore(b.redis, ""),
		resetLimiter: limiters.NewPasswordResetLimiter(b.redis, limiters.PasswordResetConfig{
			Window: cfg.PasswordReset.RateWindow,
		}),
		audit:     dispatcher,
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger.Named("campusauth"),
		clock:     clock,
		dummyHash: dummyHash,
	}, nil
}

// NewHasher returns the hasher Build installs when none is supplied. Tools
// that write password hashes outside the engine use it to stay compatible.
func NewHasher(cfg PasswordConfig) (PasswordHasher, error) {
	chain, err := newHasher(cfg)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// newHasher builds a chain that hashes with the configured algorithm and
// still verifies hashes written by the other one.
func newHasher(cfg PasswordConfig) (*password.Chain, error) {
	argon, err := password.NewArgon2(password.Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
	if err != nil && cfg.Algorithm == "argon2id" {
		return nil, err
	}
	bcryptCost := cfg.BcryptCost
	if bcryptCost == 0 {
		bcryptCost = 12
	}
	bc, bcErr := password.NewBcrypt(bcryptCost)
	if bcErr != nil && cfg.Algorithm == "bcrypt" {
		return nil, bcErr
	}

	switch {
	case cfg.Algorithm == "bcrypt" && argon != nil:
		return password.NewChain(bc, argon), nil
	case cfg.Algorithm == "bcrypt":
		return password.NewChain(bc), nil
	case bc != nil:
		return password.NewChain(argon, bc), nil
	default:
		return password.NewChain(argon), nil
	}
}
