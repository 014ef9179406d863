package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResetNotFound         = errors.New("reset record not found")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// PasswordResetStore maps token digests to usernames.
type PasswordResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string) *PasswordResetStore {
	if prefix == "" {
		prefix = "ca:reset"
	}
	return &PasswordResetStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PasswordResetStore) key(digest string) string {
	return s.prefix + ":" + digest
}

// Save stores username under digest for ttl, replacing any previous value.
func (s *PasswordResetStore) Save(ctx context.Context, digest, username string, ttl time.Duration) error {
	if digest == "" || username == "" {
		return errors.New("reset record requires digest and username")
	}
	if err := s.redis.Set(ctx, s.key(digest), username, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// Consume atomically reads and deletes the record. Only one of several
// concurrent callers sees the username; the rest get ErrResetNotFound.
func (s *PasswordResetStore) Consume(ctx context.Context, digest string) (string, error) {
	username, err := s.redis.GetDel(ctx, s.key(digest)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrResetNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return username, nil
}
