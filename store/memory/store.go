package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/campusauth"
)

// ErrDuplicateUsername is returned by Create when the username is taken.
var ErrDuplicateUsername = errors.New("username already exists")

// Store keeps user records in memory. It is safe for concurrent use; every
// read-modify-write runs under one lock.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]*campusauth.UserRecord
	byUsername map[string]string
}

func New() *Store {
	return &Store{
		byID:       map[string]*campusauth.UserRecord{},
		byUsername: map[string]string{},
	}
}

// Create inserts a new record.
func (s *Store) Create(_ context.Context, user campusauth.UserRecord) error {
	if user.UserID == "" || user.Username == "" {
		return errors.New("user id and username are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUsername[user.Username]; ok {
		return ErrDuplicateUsername
	}
	if _, ok := s.byID[user.UserID]; ok {
		return ErrDuplicateUsername
	}
	rec := cloneRecord(user)
	s.byID[user.UserID] = &rec
	s.byUsername[user.Username] = user.UserID
	return nil
}

func (s *Store) GetUserByID(_ context.Context, userID string) (campusauth.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[userID]
	if !ok {
		return campusauth.UserRecord{}, campusauth.ErrUserNotFound
	}
	return cloneRecord(*rec), nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (campusauth.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return campusauth.UserRecord{}, campusauth.ErrUserNotFound
	}
	return cloneRecord(*s.byID[id]), nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, passwordHash string) error {
	return s.mutate(userID, func(u *campusauth.UserRecord) { u.PasswordHash = passwordHash })
}

func (s *Store) SetMFASecret(_ context.Context, userID, secret string) error {
	return s.mutate(userID, func(u *campusauth.UserRecord) { u.MFASecret = secret })
}

func (s *Store) SetMFAEnabled(_ context.Context, userID string, enabled bool) error {
	return s.mutate(userID, func(u *campusauth.UserRecord) { u.MFAEnabled = enabled })
}

func (s *Store) ClearMFA(_ context.Context, userID string) error {
	return s.mutate(userID, func(u *campusauth.UserRecord) {
		u.MFAEnabled = false
		u.MFASecret = ""
		u.BackupCodes = nil
	})
}

func (s *Store) ReplaceBackupCodes(_ context.Context, userID string, hashes []string) error {
	return s.mutate(userID, func(u *campusauth.UserRecord) {
		u.BackupCodes = append([]string(nil), hashes...)
	})
}

func (s *Store) RemoveBackupCode(_ context.Context, userID, hash string) (bool, error) {
	removed := false
	err := s.mutate(userID, func(u *campusauth.UserRecord) {
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

func (s *Store) RecordFailedLogin(_ context.Context, userID string, threshold int, lockUntil time.Time) (campusauth.LockoutState, error) {
	var state campusauth.LockoutState
	err := s.mutate(userID, func(u *campusauth.UserRecord) {
		u.FailedLoginAttempts++
		if u.FailedLoginAttempts >= threshold {
			u.AccountLockedUntil = lockUntil
		}
		state = campusauth.LockoutState{
			FailedAttempts: u.FailedLoginAttempts,
			LockedUntil:    u.AccountLockedUntil,
		}
	})
	return state, err
}

func (s *Store) ClearFailedLogins(_ context.Context, userID string) error {
	return s.mutate(userID, func(u *campusauth.UserRecord) {
		u.FailedLoginAttempts = 0
		u.AccountLockedUntil = time.Time{}
	})
}

func (s *Store) SetSessionToken(_ context.Context, userID, token string) error {
	return s.mutate(userID, func(u *campusauth.UserRecord) { u.CurrentSessionToken = token })
}

func (s *Store) ClearSessionToken(_ context.Context, userID, token string) (bool, error) {
	cleared := false
	err := s.mutate(userID, func(u *campusauth.UserRecord) {
		if u.CurrentSessionToken == token {
			u.CurrentSessionToken = ""
			cleared = true
		}
	})
	return cleared, err
}

func (s *Store) UpdateLifecycle(_ context.Context, userID string, update campusauth.LifecycleUpdate) error {
	return s.mutate(userID, func(u *campusauth.UserRecord) {
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

// ListExpirationCandidates returns matches ordered by deadline.
func (s *Store) ListExpirationCandidates(_ context.Context, before time.Time) ([]campusauth.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []campusauth.UserRecord
	for _, rec := range s.byID {
		if rec.Status == campusauth.AccountBlocked || rec.AccountExpiresAt.IsZero() {
			continue
		}
		if rec.AccountExpiresAt.Before(before) {
			out = append(out, cloneRecord(*rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AccountExpiresAt.Before(out[j].AccountExpiresAt)
	})
	return out, nil
}

func (s *Store) ExpireAccount(_ context.Context, userID string, before time.Time) (bool, error) {
	flipped := false
	err := s.mutate(userID, func(u *campusauth.UserRecord) {
		if u.Status == campusauth.AccountActive && !u.AccountExpiresAt.IsZero() && u.AccountExpiresAt.Before(before) {
			u.Status = campusauth.AccountExpired
			flipped = true
		}
	})
	return flipped, err
}

func (s *Store) mutate(userID string, fn func(*campusauth.UserRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[userID]
	if !ok {
		return campusauth.ErrUserNotFound
	}
	fn(rec)
	return nil
}

func cloneRecord(u campusauth.UserRecord) campusauth.UserRecord {
	u.Roles = append([]string(nil), u.Roles...)
	u.BackupCodes = append([]string(nil), u.BackupCodes...)
	return u
}

var _ campusauth.UserProvider = (*Store)(nil)
