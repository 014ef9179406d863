package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResetRateLimited      = errors.New("reset rate limited")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// ResetStep names one endpoint of the reset flow. Steps are throttled independently.
type ResetStep string

const (
	StepRequest  ResetStep = "request"
	StepVerify   ResetStep = "verify"
	StepComplete ResetStep = "complete"
)

const unknownClient = "unknown"

type PasswordResetConfig struct {
	Window time.Duration
	Prefix string
}

type PasswordResetLimiter struct {
	redis  redis.UniversalClient
	config PasswordResetConfig
}

func NewPasswordResetLimiter(redisClient redis.UniversalClient, cfg PasswordResetConfig) *PasswordResetLimiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "ca:rl:reset"
	}
	return &PasswordResetLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Allow claims the window for (step, ip). Calls without a known client IP
// share a single bucket.
func (l *PasswordResetLimiter) Allow(ctx context.Context, step ResetStep, ip string) error {
	if l == nil || l.config.Window <= 0 {
		return nil
	}
	if ip == "" {
		ip = unknownClient
	}

	ok, err := l.redis.SetNX(ctx, l.key(step, ip), 1, l.config.Window).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	if !ok {
		return ErrResetRateLimited
	}
	return nil
}

func (l *PasswordResetLimiter) key(step ResetStep, ip string) string {
	return l.config.Prefix + ":" + string(step) + ":" + ip
}
