package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/campusauth"
	"gorm.io/gorm"
)

// ErrDuplicateUsername is returned by Create when the username or id is taken.
var ErrDuplicateUsername = errors.New("username already exists")

// Repository implements campusauth.UserProvider on gorm.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ campusauth.UserProvider = (*Repository)(nil)

// Create inserts a user and its backup-code hashes.
func (r *Repository) Create(ctx context.Context, user campusauth.UserRecord) error {
	model := fromRecord(user)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateUsername
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return insertCodes(tx, user.UserID, user.BackupCodes)
	})
}

func (r *Repository) GetUserByID(ctx context.Context, userID string) (campusauth.UserRecord, error) {
	return r.load(ctx, "user_id = ?", userID)
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (campusauth.UserRecord, error) {
	return r.load(ctx, "username = ?", username)
}

func (r *Repository) load(ctx context.Context, query string, arg string) (campusauth.UserRecord, error) {
	var m userModel
	if err := r.db.WithContext(ctx).Where(query, arg).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return campusauth.UserRecord{}, campusauth.ErrUserNotFound
		}
		return campusauth.UserRecord{}, fmt.Errorf("load user: %w", err)
	}

	var codes []string
	if err := r.db.WithContext(ctx).
		Model(&backupCodeModel{}).
		Where("user_id = ?", m.UserID).
		Order("code_hash").
		Pluck("code_hash", &codes).Error; err != nil {
		return campusauth.UserRecord{}, fmt.Errorf("load backup codes: %w", err)
	}
	return toRecord(m, codes)
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	return r.update(ctx, userID, map[string]any{"password_hash": passwordHash})
}

func (r *Repository) SetMFASecret(ctx context.Context, userID, secret string) error {
	return r.update(ctx, userID, map[string]any{"mfa_secret": secret})
}

func (r *Repository) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	return r.update(ctx, userID, map[string]any{"mfa_enabled": enabled})
}

func (r *Repository) SetSessionToken(ctx context.Context, userID, token string) error {
	return r.update(ctx, userID, map[string]any{"current_session_token": token})
}

func (r *Repository) ClearFailedLogins(ctx context.Context, userID string) error {
	return r.update(ctx, userID, map[string]any{
		"failed_login_attempts": 0,
		"account_locked_until":  nil,
	})
}

func (r *Repository) ClearMFA(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userModel{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{"mfa_enabled": false, "mfa_secret": ""})
		if res.Error != nil {
			return fmt.Errorf("clear mfa: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return campusauth.ErrUserNotFound
		}
		if err := tx.Where("user_id = ?", userID).Delete(&backupCodeModel{}).Error; err != nil {
			return fmt.Errorf("delete backup codes: %w", err)
		}
		return nil
	})
}

// ReplaceBackupCodes swaps the whole set under a row lock on the user.
func (r *Repository) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userModel{}).
			Where("user_id = ?", userID).
			Update("updated_at", gorm.Expr("now()"))
		if res.Error != nil {
			return fmt.Errorf("lock user: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return campusauth.ErrUserNotFound
		}
		if err := tx.Where("user_id = ?", userID).Delete(&backupCodeModel{}).Error; err != nil {
			return fmt.Errorf("delete backup codes: %w", err)
		}
		return insertCodes(tx, userID, hashes)
	})
}

func (r *Repository) RemoveBackupCode(ctx context.Context, userID, hash string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND code_hash = ?", userID, hash).
		Delete(&backupCodeModel{})
	if res.Error != nil {
		return false, fmt.Errorf("remove backup code: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	return false, r.mustExist(ctx, userID)
}

const recordFailureSQL = `UPDATE users
SET failed_login_attempts = failed_login_attempts + 1,
    account_locked_until = CASE WHEN failed_login_attempts + 1 >= ? THEN ? ELSE account_locked_until END,
    updated_at = now()
WHERE user_id = ?
RETURNING failed_login_attempts, account_locked_until`

func (r *Repository) RecordFailedLogin(ctx context.Context, userID string, threshold int, lockUntil time.Time) (campusauth.LockoutState, error) {
	var row struct {
		FailedLoginAttempts int        `gorm:"column:failed_login_attempts"`
		AccountLockedUntil  *time.Time `gorm:"column:account_locked_until"`
	}
	res := r.db.WithContext(ctx).Raw(recordFailureSQL, threshold, lockUntil.UTC(), userID).Scan(&row)
	if res.Error != nil {
		return campusauth.LockoutState{}, fmt.Errorf("record failed login: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return campusauth.LockoutState{}, campusauth.ErrUserNotFound
	}
	return campusauth.LockoutState{
		FailedAttempts: row.FailedLoginAttempts,
		LockedUntil:    fromNullable(row.AccountLockedUntil),
	}, nil
}

func (r *Repository) ClearSessionToken(ctx context.Context, userID, token string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ? AND current_session_token = ?", userID, token).
		Update("current_session_token", "")
	if res.Error != nil {
		return false, fmt.Errorf("clear session token: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	return false, r.mustExist(ctx, userID)
}

func (r *Repository) UpdateLifecycle(ctx context.Context, userID string, update campusauth.LifecycleUpdate) error {
	fields := map[string]any{}
	switch {
	case update.Status != nil && update.StatusFrom != nil:
		fields["account_status"] = gorm.Expr("CASE WHEN account_status = ? THEN ? ELSE account_status END",
			update.StatusFrom.String(), update.Status.String())
	case update.Status != nil:
		fields["account_status"] = update.Status.String()
	}
	if update.ExpiresAt != nil {
		fields["account_expires_at"] = nullable(*update.ExpiresAt)
	}
	if update.LastLogin != nil {
		fields["last_login_at"] = nullable(*update.LastLogin)
	}
	if len(fields) == 0 {
		return r.mustExist(ctx, userID)
	}
	return r.update(ctx, userID, fields)
}

// ListExpirationCandidates does not load backup codes.
func (r *Repository) ListExpirationCandidates(ctx context.Context, before time.Time) ([]campusauth.UserRecord, error) {
	var models []userModel
	err := r.db.WithContext(ctx).
		Where("account_status <> ? AND account_expires_at IS NOT NULL AND account_expires_at < ?",
			campusauth.AccountBlocked.String(), before.UTC()).
		Order("account_expires_at").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list expiration candidates: %w", err)
	}

	out := make([]campusauth.UserRecord, 0, len(models))
	for _, m := range models {
		rec, err := toRecord(m, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Repository) ExpireAccount(ctx context.Context, userID string, before time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ? AND account_status = ? AND account_expires_at < ?",
			userID, campusauth.AccountActive.String(), before.UTC()).
		Update("account_status", campusauth.AccountExpired.String())
	if res.Error != nil {
		return false, fmt.Errorf("expire account: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	return false, r.mustExist(ctx, userID)
}

func (r *Repository) update(ctx context.Context, userID string, fields map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("user_id = ?", userID).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return campusauth.ErrUserNotFound
	}
	return nil
}

func (r *Repository) mustExist(ctx context.Context, userID string) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&userModel{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if n == 0 {
		return campusauth.ErrUserNotFound
	}
	return nil
}

func insertCodes(tx *gorm.DB, userID string, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	rows := make([]backupCodeModel, 0, len(hashes))
	for _, h := range hashes {
		rows = append(rows, backupCodeModel{UserID: userID, CodeHash: h})
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("insert backup codes: %w", err)
	}
	return nil
}
