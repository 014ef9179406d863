package stores

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestPasswordResetSaveConsume(t *testing.T) {
	rdb, _ := newTestRedis(t)
	store := NewPasswordResetStore(rdb, "")
	ctx := context.Background()

	if err := store.Save(ctx, "d1", "alice", time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	owner, err := store.Consume(ctx, "d1")
	if err != nil || owner != "alice" {
		t.Fatalf("consume = %q, %v", owner, err)
	}
	if _, err := store.Consume(ctx, "d1"); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("second consume should fail, got %v", err)
	}
}

func TestPasswordResetExpires(t *testing.T) {
	rdb, mr := newTestRedis(t)
	store := NewPasswordResetStore(rdb, "test")
	ctx := context.Background()

	if err := store.Save(ctx, "d1", "alice", 15*time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("test:d1") {
		t.Fatal("expected prefixed key")
	}
	mr.FastForward(16 * time.Minute)
	if _, err := store.Consume(ctx, "d1"); !errors.Is(err, ErrResetNotFound) {
		t.Fatalf("expected expired record, got %v", err)
	}
}

func TestPasswordResetConcurrentConsumeSingleWinner(t *testing.T) {
	rdb, _ := newTestRedis(t)
	store := NewPasswordResetStore(rdb, "")
	ctx := context.Background()

	if err := store.Save(ctx, "race", "bob", time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, "race"); err == nil {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestPasswordResetSaveValidation(t *testing.T) {
	rdb, _ := newTestRedis(t)
	store := NewPasswordResetStore(rdb, "")
	if err := store.Save(context.Background(), "", "alice", time.Minute); err == nil {
		t.Fatal("expected empty digest to fail")
	}
}

func TestPasswordResetRedisDown(t *testing.T) {
	rdb, mr := newTestRedis(t)
	store := NewPasswordResetStore(rdb, "")
	mr.Close()
	if err := store.Save(context.Background(), "d", "alice", time.Minute); !errors.Is(err, ErrResetRedisUnavailable) {
		t.Fatalf("expected ErrResetRedisUnavailable, got %v", err)
	}
	if _, err := store.Consume(context.Background(), "d"); !errors.Is(err, ErrResetRedisUnavailable) {
		t.Fatalf("expected ErrResetRedisUnavailable, got %v", err)
	}
}
