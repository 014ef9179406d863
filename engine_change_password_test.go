package campusauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/campusauth/password"
)

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t, fastTestConfig())
	ctx := context.Background()
	res := env.login(t, "alice", testPassword)

	if err := env.engine.ChangePassword(ctx, "u1", "wrong-current", "new-password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, "u1", testPassword, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected policy violation, got %v", err)
	}
	if err := env.engine.ChangePassword(ctx, "u1", testPassword, "new-password-1"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, err := env.engine.Validate(ctx, res.SessionToken, RouteStandard); err != nil {
		t.Fatalf("current session should survive a password change: %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	env.login(t, "alice", "new-password-1")

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricPasswordChangeSuccess] != 1 || snap.Counters[MetricPasswordChangeInvalidOld] != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
}

func TestChangePasswordWrongCurrentCountsTowardLockout(t *testing.T) {
	env := newTestEnv(t, fastTestConfig())
	ctx := context.Background()
	env.login(t, "alice", testPassword)

	for i := 1; i < 5; i++ {
		if err := env.engine.ChangePassword(ctx, "u1", "guess", "new-password-1"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, err)
		}
	}
	err := env.engine.ChangePassword(ctx, "u1", "guess", "new-password-1")
	var locked *AccountLockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected lock on fifth wrong password, got %v", err)
	}

	if err := env.engine.ChangePassword(ctx, "u1", testPassword, "new-password-1"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected correct password refused while locked, got %v", err)
	}

	env.clock.Advance(env.engine.config.Lockout.Duration + time.Second)
	if err := env.engine.ChangePassword(ctx, "u1", testPassword, "new-password-1"); err != nil {
		t.Fatalf("ChangePassword after lock elapsed failed: %v", err)
	}
	if got := env.users.get(t, "u1").FailedLoginAttempts; got != 0 {
		t.Fatalf("expected failures cleared, got %d", got)
	}
}

func TestChangePasswordSuccessClearsFailures(t *testing.T) {
	env := newTestEnv(t, fastTestConfig())
	ctx := context.Background()

	if err := env.engine.ChangePassword(ctx, "u1", "guess", "new-password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if got := env.users.get(t, "u1").FailedLoginAttempts; got != 1 {
		t.Fatalf("expected one failure recorded, got %d", got)
	}
	if err := env.engine.ChangePassword(ctx, "u1", testPassword, "new-password-1"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if got := env.users.get(t, "u1").FailedLoginAttempts; got != 0 {
		t.Fatalf("expected failures cleared, got %d", got)
	}
}

func TestChangePasswordUnknownUser(t *testing.T) {
	env := newTestEnv(t, fastTestConfig())
	if err := env.engine.ChangePassword(context.Background(), "missing", "a", "new-password-1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	env := newTestEnv(t, fastTestConfig())

	legacy, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}
	argon, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	env.engine.hasher = password.NewChain(argon, legacy)

	hash, err := legacy.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	u := env.users.get(t, "u1")
	u.PasswordHash = hash
	env.users.add(u)

	env.login(t, "alice", testPassword)
	if upgraded := env.users.get(t, "u1").PasswordHash; !argon.Handles(upgraded) {
		t.Fatalf("expected argon2id hash after login, got %q", upgraded)
	}
	env.login(t, "alice", testPassword)
}
