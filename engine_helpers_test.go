package campusauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testUserProvider keeps records in a map. fail makes every later call of
// the named method return errStoreDown.
type testUserProvider struct {
	mu       sync.Mutex
	users    map[string]UserRecord
	failOn   map[string]bool
	expireFn func(userID string) (bool, error)
	// afterGet runs once GetUserByID has copied the record, outside the lock.
	afterGet func(userID string)
}

var errStoreDown = errors.New("store down")

func newTestUserProvider() *testUserProvider {
	return &testUserProvider{
		users:  map[string]UserRecord{},
		failOn: map[string]bool{},
	}
}

func (p *testUserProvider) add(u UserRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[u.UserID] = u
}

func (p *testUserProvider) get(t *testing.T, id string) UserRecord {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		t.Fatalf("user %s not found", id)
	}
	return u
}

func (p *testUserProvider) fail(method string) {
	p.mu.Lock()
	p.failOn[method] = true
	p.mu.Unlock()
}

func (p *testUserProvider) update(method, id string, fn func(*UserRecord)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[method] {
		return errStoreDown
	}
	u, ok := p.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(&u)
	p.users[id] = u
	return nil
}

func (p *testUserProvider) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	p.mu.Lock()
	if p.failOn["GetUserByID"] {
		p.mu.Unlock()
		return UserRecord{}, errStoreDown
	}
	u, ok := p.users[userID]
	hook := p.afterGet
	p.mu.Unlock()
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	u.BackupCodes = append([]string(nil), u.BackupCodes...)
	if hook != nil {
		hook(userID)
	}
	return u, nil
}

func (p *testUserProvider) GetUserByUsername(_ context.Context, username string) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn["GetUserByUsername"] {
		return UserRecord{}, errStoreDown
	}
	for _, u := range p.users {
		if u.Username == username {
			u.BackupCodes = append([]string(nil), u.BackupCodes...)
			return u, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (p *testUserProvider) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	return p.update("UpdatePasswordHash", userID, func(u *UserRecord) { u.PasswordHash = hash })
}

func (p *testUserProvider) SetMFASecret(_ context.Context, userID, secret string) error {
	return p.update("SetMFASecret", userID, func(u *UserRecord) { u.MFASecret = secret })
}

func (p *testUserProvider) SetMFAEnabled(_ context.Context, userID string, enabled bool) error {
	return p.update("SetMFAEnabled", userID, func(u *UserRecord) { u.MFAEnabled = enabled })
}

func (p *testUserProvider) ClearMFA(_ context.Context, userID string) error {
	return p.update("ClearMFA", userID, func(u *UserRecord) {
		u.MFAEnabled = false
		u.MFASecret = ""
		u.BackupCodes = nil
	})
}

func (p *testUserProvider) ReplaceBackupCodes(_ context.Context, userID string, hashes []string) error {
	return p.update("ReplaceBackupCodes", userID, func(u *UserRecord) {
		u.BackupCodes = append([]string(nil), hashes...)
	})
}

func (p *testUserProvider) RemoveBackupCode(_ context.Context, userID, hash string) (bool, error) {
	removed := false
	err := p.update("RemoveBackupCode", userID, func(u *UserRecord) {
		for i, h := range u.BackupCodes {
			if h == hash {
				u.BackupCodes = append(u.BackupCodes[:i:i], u.BackupCodes[i+1:]...)
				removed = true
				return
			}
		}
	})
	return removed, err
}

func (p *testUserProvider) RecordFailedLogin(_ context.Context, userID string, threshold int, lockUntil time.Time) (LockoutState, error) {
	var state LockoutState
	err := p.update("RecordFailedLogin", userID, func(u *UserRecord) {
		u.FailedLoginAttempts++
		if u.FailedLoginAttempts >= threshold {
			u.AccountLockedUntil = lockUntil
		}
		state = LockoutState{FailedAttempts: u.FailedLoginAttempts, LockedUntil: u.AccountLockedUntil}
	})
	return state, err
}

func (p *testUserProvider) ClearFailedLogins(_ context.Context, userID string) error {
	return p.update("ClearFailedLogins", userID, func(u *UserRecord) {
		u.FailedLoginAttempts = 0
		u.AccountLockedUntil = time.Time{}
	})
}

func (p *testUserProvider) SetSessionToken(_ context.Context, userID, token string) error {
	return p.update("SetSessionToken", userID, func(u *UserRecord) { u.CurrentSessionToken = token })
}

func (p *testUserProvider) ClearSessionToken(_ context.Context, userID, token string) (bool, error) {
	cleared := false
	err := p.update("ClearSessionToken", userID, func(u *UserRecord) {
		if u.CurrentSessionToken == token {
			u.CurrentSessionToken = ""
			cleared = true
		}
	})
	return cleared, err
}

func (p *testUserProvider) UpdateLifecycle(_ context.Context, userID string, update LifecycleUpdate) error {
	return p.update("UpdateLifecycle", userID, func(u *UserRecord) {
		if update.Status != nil && (update.StatusFrom == nil || u.Status == *update.StatusFrom) {
			u.Status = *update.Status
		}
		if update.ExpiresAt != nil {
			u.AccountExpiresAt = *update.ExpiresAt
		}
		if update.LastLogin != nil {
			u.LastLoginAt = *update.LastLogin
		}
	})
}

func (p *testUserProvider) ListExpirationCandidates(_ context.Context, before time.Time) ([]UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn["ListExpirationCandidates"] {
		return nil, errStoreDown
	}
	var out []UserRecord
	for _, u := range p.users {
		if u.Status != AccountBlocked && !u.AccountExpiresAt.IsZero() && u.AccountExpiresAt.Before(before) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (p *testUserProvider) ExpireAccount(_ context.Context, userID string, before time.Time) (bool, error) {
	p.mu.Lock()
	fn := p.expireFn
	p.mu.Unlock()
	if fn != nil {
		return fn(userID)
	}

	flipped := false
	err := p.update("ExpireAccount", userID, func(u *UserRecord) {
		if u.Status == AccountActive && u.AccountExpiresAt.Before(before) {
			u.Status = AccountExpired
			flipped = true
		}
	})
	return flipped, err
}

const (
	testPassword      = "correct-horse-battery"
	testAdminPassword = "admin-password-123"
)

// fastTestConfig uses the cheapest bcrypt cost so backup code loops stay quick.
func fastTestConfig() Config {
	cfg := validTestConfig()
	cfg.Password.Algorithm = "bcrypt"
	cfg.Password.BcryptCost = 4
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	engine *Engine
	users  *testUserProvider
	clock  *testClock
	redis  *miniredis.Miniredis
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := newTestClock()
	users := newTestUserProvider()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	env := &testEnv{engine: engine, users: users, clock: clock, redis: mr}
	env.addUser(t, "u1", "alice", testPassword)
	env.addUser(t, "admin", "root", testAdminPassword, cfg.Lifecycle.AdminRole)
	return env
}

func (env *testEnv) addUser(t *testing.T, id, username, password string, roles ...string) {
	t.Helper()
	hash, err := env.engine.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if len(roles) == 0 {
		roles = []string{"ROLE_STUDENT"}
	}
	env.users.add(UserRecord{
		UserID:           id,
		Username:         username,
		PasswordHash:     hash,
		Roles:            roles,
		Status:           AccountActive,
		AccountExpiresAt: env.clock.Now().Add(30 * 24 * time.Hour),
	})
}

// enableMFA provisions and confirms a secret for id and returns the secret.
func (env *testEnv) enableMFA(t *testing.T, id string) string {
	t.Helper()
	ctx := context.Background()
	provision, err := env.engine.GenerateMFASecret(ctx, id)
	if err != nil {
		t.Fatalf("GenerateMFASecret failed: %v", err)
	}
	if err := env.engine.EnableMFA(ctx, id, env.code(t, provision.Secret, 0)); err != nil {
		t.Fatalf("EnableMFA failed: %v", err)
	}
	return provision.Secret
}

// code returns the TOTP code offset steps away from the clock's current step.
func (env *testEnv) code(t *testing.T, secret string, offset int) string {
	t.Helper()
	at := env.clock.Now().Add(time.Duration(offset*env.engine.config.TOTP.Period) * time.Second)
	code, err := env.engine.totp.CodeAt(secret, at)
	if err != nil {
		t.Fatalf("CodeAt failed: %v", err)
	}
	return code
}

func (env *testEnv) login(t *testing.T, username, password string) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), username, password)
	if err != nil {
		t.Fatalf("Login(%s) failed: %v", username, err)
	}
	return res
}

// wrongCode returns a 6-digit code that differs from every accepted one.
func (env *testEnv) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	accepted := map[string]bool{}
	for off := -2; off <= 2; off++ {
		accepted[env.code(t, secret, off)] = true
	}
	for i := 0; i < 1000000; i++ {
		c := fmt.Sprintf("%06d", i)
		if !accepted[c] {
			return c
		}
	}
	t.Fatal("no wrong code found")
	return ""
}
