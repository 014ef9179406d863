package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/campusauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.Create(context.Background(), campusauth.UserRecord{
		UserID:           "u1",
		Username:         "alice",
		PasswordHash:     "hash",
		Roles:            []string{"ROLE_STUDENT"},
		Status:           campusauth.AccountActive,
		AccountExpiresAt: now.Add(-time.Hour),
	}))
	return s
}

func TestCreateRejectsDuplicates(t *testing.T) {
	s := seeded(t)
	err := s.Create(context.Background(), campusauth.UserRecord{UserID: "u2", Username: "alice"})
	assert.ErrorIs(t, err, ErrDuplicateUsername)
	assert.Error(t, s.Create(context.Background(), campusauth.UserRecord{UserID: "u3"}))
}

func TestLookupsReturnCopies(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	u, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	u.Roles[0] = "ROLE_ADMIN"

	again, err := s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ROLE_STUDENT", again.Roles[0])

	_, err = s.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, campusauth.ErrUserNotFound)
	_, err = s.GetUserByUsername(ctx, "missing")
	assert.ErrorIs(t, err, campusauth.ErrUserNotFound)
}

func TestRecordFailedLoginIsAtomic(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	lockUntil := now.Add(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.RecordFailedLogin(ctx, "u1", 5, lockUntil)
		}()
	}
	wg.Wait()

	u, err := s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, u.FailedLoginAttempts)
	assert.True(t, u.AccountLockedUntil.Equal(lockUntil))

	require.NoError(t, s.ClearFailedLogins(ctx, "u1"))
	u, _ = s.GetUserByID(ctx, "u1")
	assert.Zero(t, u.FailedLoginAttempts)
	assert.True(t, u.AccountLockedUntil.IsZero())
}

func TestRecordFailedLoginBelowThreshold(t *testing.T) {
	s := seeded(t)
	state, err := s.RecordFailedLogin(context.Background(), "u1", 5, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, state.FailedAttempts)
	assert.True(t, state.LockedUntil.IsZero())
}

func TestBackupCodesRemovedOnce(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceBackupCodes(ctx, "u1", []string{"h1", "h2", "h3"}))

	removed, err := s.RemoveBackupCode(ctx, "u1", "h2")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.RemoveBackupCode(ctx, "u1", "h2")
	require.NoError(t, err)
	assert.False(t, removed)

	u, _ := s.GetUserByID(ctx, "u1")
	assert.Equal(t, []string{"h1", "h3"}, u.BackupCodes)

	require.NoError(t, s.SetMFASecret(ctx, "u1", "SECRET"))
	require.NoError(t, s.SetMFAEnabled(ctx, "u1", true))
	require.NoError(t, s.ClearMFA(ctx, "u1"))
	u, _ = s.GetUserByID(ctx, "u1")
	assert.False(t, u.MFAEnabled)
	assert.Empty(t, u.MFASecret)
	assert.Empty(t, u.BackupCodes)
}

func TestClearSessionTokenComparesFirst(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	require.NoError(t, s.SetSessionToken(ctx, "u1", "new"))

	cleared, err := s.ClearSessionToken(ctx, "u1", "old")
	require.NoError(t, err)
	assert.False(t, cleared)

	cleared, err = s.ClearSessionToken(ctx, "u1", "new")
	require.NoError(t, err)
	assert.True(t, cleared)
}

func TestExpirationCandidatesAndExpire(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, campusauth.UserRecord{
		UserID: "u2", Username: "bob", Status: campusauth.AccountBlocked, AccountExpiresAt: now.Add(-time.Hour),
	}))
	require.NoError(t, s.Create(ctx, campusauth.UserRecord{
		UserID: "u3", Username: "carol", Status: campusauth.AccountActive, AccountExpiresAt: now.Add(time.Hour),
	}))

	got, err := s.ListExpirationCandidates(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].UserID)

	flipped, err := s.ExpireAccount(ctx, "u1", now)
	require.NoError(t, err)
	assert.True(t, flipped)
	flipped, err = s.ExpireAccount(ctx, "u1", now)
	require.NoError(t, err)
	assert.False(t, flipped)

	flipped, err = s.ExpireAccount(ctx, "u3", now)
	require.NoError(t, err)
	assert.False(t, flipped)
}

func TestUpdateLifecyclePartial(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	blocked := campusauth.AccountBlocked
	require.NoError(t, s.UpdateLifecycle(ctx, "u1", campusauth.LifecycleUpdate{Status: &blocked}))

	u, _ := s.GetUserByID(ctx, "u1")
	assert.Equal(t, campusauth.AccountBlocked, u.Status)
	assert.True(t, u.AccountExpiresAt.Equal(now.Add(-time.Hour)))

	err := s.UpdateLifecycle(ctx, "missing", campusauth.LifecycleUpdate{})
	assert.True(t, errors.Is(err, campusauth.ErrUserNotFound))
}

func TestUpdateLifecycleStatusFromLeavesOtherStatus(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	blocked, active, expired := campusauth.AccountBlocked, campusauth.AccountActive, campusauth.AccountExpired
	require.NoError(t, s.UpdateLifecycle(ctx, "u1", campusauth.LifecycleUpdate{Status: &blocked}))

	deadline := now.Add(30 * 24 * time.Hour)
	require.NoError(t, s.UpdateLifecycle(ctx, "u1", campusauth.LifecycleUpdate{
		Status:     &active,
		StatusFrom: &expired,
		ExpiresAt:  &deadline,
	}))

	u, _ := s.GetUserByID(ctx, "u1")
	assert.Equal(t, campusauth.AccountBlocked, u.Status)
	assert.True(t, u.AccountExpiresAt.Equal(deadline))
}
