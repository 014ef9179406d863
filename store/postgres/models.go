package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/campusauth"
)

type userModel struct {
	UserID              string     `gorm:"column:user_id;primaryKey"`
	Username            string     `gorm:"column:username"`
	PasswordHash        string     `gorm:"column:password_hash"`
	Roles               string     `gorm:"column:roles"`
	MFAEnabled          bool       `gorm:"column:mfa_enabled"`
	MFASecret           string     `gorm:"column:mfa_secret"`
	FailedLoginAttempts int        `gorm:"column:failed_login_attempts"`
	AccountLockedUntil  *time.Time `gorm:"column:account_locked_until"`
	CurrentSessionToken string     `gorm:"column:current_session_token"`
	AccountStatus       string     `gorm:"column:account_status"`
	AccountExpiresAt    *time.Time `gorm:"column:account_expires_at"`
	LastLoginAt         *time.Time `gorm:"column:last_login_at"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

func (userModel) TableName() string { return "users" }

type backupCodeModel struct {
	UserID    string    `gorm:"column:user_id;primaryKey"`
	CodeHash  string    `gorm:"column:code_hash;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (backupCodeModel) TableName() string { return "backup_codes" }

const roleSeparator = ","

func toRecord(m userModel, codes []string) (campusauth.UserRecord, error) {
	status, err := campusauth.ParseAccountStatus(m.AccountStatus)
	if err != nil {
		return campusauth.UserRecord{}, fmt.Errorf("user %s: %w", m.UserID, err)
	}
	return campusauth.UserRecord{
		UserID:              m.UserID,
		Username:            m.Username,
		PasswordHash:        m.PasswordHash,
		Roles:               splitRoles(m.Roles),
		MFAEnabled:          m.MFAEnabled,
		MFASecret:           m.MFASecret,
		BackupCodes:         codes,
		FailedLoginAttempts: m.FailedLoginAttempts,
		AccountLockedUntil:  fromNullable(m.AccountLockedUntil),
		CurrentSessionToken: m.CurrentSessionToken,
		Status:              status,
		AccountExpiresAt:    fromNullable(m.AccountExpiresAt),
		LastLoginAt:         fromNullable(m.LastLoginAt),
	}, nil
}

func fromRecord(u campusauth.UserRecord) userModel {
	return userModel{
		UserID:              u.UserID,
		Username:            u.Username,
		PasswordHash:        u.PasswordHash,
		Roles:               strings.Join(u.Roles, roleSeparator),
		MFAEnabled:          u.MFAEnabled,
		MFASecret:           u.MFASecret,
		FailedLoginAttempts: u.FailedLoginAttempts,
		AccountLockedUntil:  nullable(u.AccountLockedUntil),
		CurrentSessionToken: u.CurrentSessionToken,
		AccountStatus:       u.Status.String(),
		AccountExpiresAt:    nullable(u.AccountExpiresAt),
		LastLoginAt:         nullable(u.LastLoginAt),
	}
}

func splitRoles(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, roleSeparator)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func nullable(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func fromNullable(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
