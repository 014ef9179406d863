package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestList(t *testing.T, retention time.Duration) (*RevocationList, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Unix(1700000000, 0)
	list := NewRevocationList(rdb, retention, func() time.Time { return now })
	return list, mr, &now
}

func TestRevokeUntilExpiry(t *testing.T) {
	list, mr, now := newTestList(t, 24*time.Hour)
	ctx := context.Background()

	if err := list.Revoke(ctx, "tok-a", now.Add(10*time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := list.IsRevoked(ctx, "tok-a")
	if err != nil || !revoked {
		t.Fatalf("expected revoked: %v %v", revoked, err)
	}
	if other, _ := list.IsRevoked(ctx, "tok-b"); other {
		t.Fatal("unrelated token must not be revoked")
	}

	if ttl := mr.TTL(list.key("tok-a")); ttl != 10*time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	mr.FastForward(11 * time.Minute)
	if revoked, _ := list.IsRevoked(ctx, "tok-a"); revoked {
		t.Fatal("entry should expire with the token")
	}
}

func TestRevokeUsesRetentionWhenExpiryUnknown(t *testing.T) {
	list, mr, now := newTestList(t, time.Hour)
	ctx := context.Background()

	if err := list.Revoke(ctx, "tok-unknown", time.Time{}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ttl := mr.TTL(list.key("tok-unknown")); ttl != time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	if err := list.Revoke(ctx, "tok-past", now.Add(-time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ttl := mr.TTL(list.key("tok-past")); ttl != time.Hour {
		t.Fatalf("unexpected ttl for past expiry %v", ttl)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	list, _, now := newTestList(t, time.Hour)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := list.Revoke(ctx, "tok", now.Add(time.Minute)); err != nil {
			t.Fatalf("revoke %d: %v", i, err)
		}
	}
	if revoked, _ := list.IsRevoked(ctx, "tok"); !revoked {
		t.Fatal("expected revoked")
	}
}

func TestKeyDoesNotContainToken(t *testing.T) {
	list, mr, now := newTestList(t, time.Hour)
	if err := list.Revoke(context.Background(), "secret-token", now.Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	for _, k := range mr.Keys() {
		if k == defaultRevokedPrefix+"secret-token" {
			t.Fatal("plaintext token used as key")
		}
	}
}

func TestRedisFailureIsWrapped(t *testing.T) {
	list, mr, now := newTestList(t, time.Hour)
	mr.Close()

	if err := list.Revoke(context.Background(), "tok", now.Add(time.Minute)); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := list.IsRevoked(context.Background(), "tok"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
