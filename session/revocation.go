package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures so callers can fail closed.
var ErrRedisUnavailable = errors.New("redis unavailable")

const defaultRevokedPrefix = "ca:revoked:"

// RevocationList records tokens that must no longer validate.
type RevocationList struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRevocationList builds a list. retention is used for tokens whose expiry
// is unknown or already past; it must cover the longest token lifetime.
func NewRevocationList(rdb redis.UniversalClient, retention time.Duration, now func() time.Time) *RevocationList {
	if now == nil {
		now = time.Now
	}
	return &RevocationList{
		redis:     rdb,
		prefix:    defaultRevokedPrefix,
		retention: retention,
		now:       now,
	}
}

// Revoke marks token revoked until expiresAt. A zero expiresAt uses the
// default retention. Revoking twice is harmless.
func (r *RevocationList) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := r.retention
	if !expiresAt.IsZero() {
		if remaining := expiresAt.Sub(r.now()); remaining > 0 {
			ttl = remaining
		}
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := r.redis.Set(ctx, r.key(token), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether token is on the list.
func (r *RevocationList) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.redis.Exists(ctx, r.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

func (r *RevocationList) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return r.prefix + hex.EncodeToString(sum[:])
}
