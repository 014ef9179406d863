package campusauth

import (
	"context"
	"fmt"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/campusauth/internal/audit"
)

// AccountStatus represents the lifecycle state of a user account.
type AccountStatus uint8

const (
	// AccountActive accounts may authenticate.
	AccountActive AccountStatus = iota
	// AccountExpired accounts passed their inactivity deadline.
	AccountExpired
	// AccountBlocked accounts were suspended by an administrator.
	AccountBlocked
)

func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "ACTIVE"
	case AccountExpired:
		return "EXPIRED"
	case AccountBlocked:
		return "BLOCKED"
	default:
		return fmt.Sprintf("AccountStatus(%d)", uint8(s))
	}
}

// ParseAccountStatus accepts the names produced by [AccountStatus.String].
func ParseAccountStatus(value string) (AccountStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ACTIVE":
		return AccountActive, nil
	case "EXPIRED":
		return AccountExpired, nil
	case "BLOCKED":
		return AccountBlocked, nil
	default:
		return AccountActive, fmt.Errorf("unknown account status %q", value)
	}
}

// RouteKind tells [Engine.Validate] which kind of route a token is presented to.
type RouteKind uint8

const (
	// RouteStandard is any protected route. MFA challenge tokens are not accepted.
	RouteStandard RouteKind = iota
	// RouteMFAVerification is the route that completes an MFA login.
	RouteMFAVerification
)

// MFAKind selects the second factor presented to [Engine.ConfirmLoginMFA].
type MFAKind uint8

const (
	MFAKindTOTP MFAKind = iota
	MFAKindBackup
)

func (k MFAKind) String() string {
	if k == MFAKindBackup {
		return "backup"
	}
	return "totp"
}

// UserRecord is the security subset of a user account.
//
// Zero time values mean "unset". MFASecret is base32 without padding and is
// empty until a secret has been provisioned.
type UserRecord struct {
	UserID       string
	Username     string
	PasswordHash string
	Roles        []string

	MFAEnabled  bool
	MFASecret   string
	BackupCodes []string

	FailedLoginAttempts int
	AccountLockedUntil  time.Time

	CurrentSessionToken string

	Status           AccountStatus
	AccountExpiresAt time.Time
	LastLoginAt      time.Time
}

// HasRole reports whether the record carries role.
func (u UserRecord) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// LockoutState is the counter pair returned by [UserProvider.RecordFailedLogin].
type LockoutState struct {
	FailedAttempts int
	LockedUntil    time.Time
}

// LifecycleUpdate carries the lifecycle fields to change. Nil fields are left untouched.
type LifecycleUpdate struct {
	Status *AccountStatus
	// StatusFrom, when set, applies Status only while the stored status
	// still equals it. The other fields are written either way.
	StatusFrom *AccountStatus
	ExpiresAt  *time.Time
	LastLogin  *time.Time
}

// UserProvider is the user-record store consumed by the engine.
//
// Implementations return [ErrUserNotFound] for unknown users. RecordFailedLogin,
// RemoveBackupCode, ClearSessionToken and ExpireAccount must be atomic with
// respect to concurrent callers.
type UserProvider interface {
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	GetUserByUsername(ctx context.Context, username string) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error

	SetMFASecret(ctx context.Context, userID, secret string) error
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error
	ClearMFA(ctx context.Context, userID string) error
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error
	RemoveBackupCode(ctx context.Context, userID, hash string) (bool, error)

	// RecordFailedLogin increments the failure counter and, when the new
	// count reaches threshold, stores lockUntil.
	RecordFailedLogin(ctx context.Context, userID string, threshold int, lockUntil time.Time) (LockoutState, error)
	ClearFailedLogins(ctx context.Context, userID string) error

	SetSessionToken(ctx context.Context, userID, token string) error
	// ClearSessionToken clears the stored token only if it still equals token.
	ClearSessionToken(ctx context.Context, userID, token string) (bool, error)

	UpdateLifecycle(ctx context.Context, userID string, update LifecycleUpdate) error
	// ListExpirationCandidates returns non-blocked users whose deadline is before the given time.
	ListExpirationCandidates(ctx context.Context, before time.Time) ([]UserRecord, error)
	// ExpireAccount flips an ACTIVE user whose deadline is before the given time to EXPIRED.
	ExpireAccount(ctx context.Context, userID string, before time.Time) (bool, error)
}

// PasswordHasher is the one-way hashing comparator.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
}

// AuthResult is returned by [Engine.Validate] for an accepted token.
type AuthResult struct {
	UserID     string
	Username   string
	Roles      []string
	MFAPending bool
	ExpiresAt  time.Time
}

// LoginResult is returned by [Engine.Login] and [Engine.ConfirmLoginMFA].
// Exactly one of SessionToken and ChallengeToken is set.
type LoginResult struct {
	UserID   string
	Username string
	Roles    []string

	SessionToken string

	MFARequired    bool
	ChallengeToken string

	// AlreadyLoggedIn is set instead of any token when the call used
	// [DetectLiveSession] and the user still holds a valid session.
	AlreadyLoggedIn bool
}

// MFAProvision holds a freshly generated TOTP secret and its provisioning URI.
type MFAProvision struct {
	Secret string
	URI    string
}

// AccountStatusInfo is the administrative view of an account lifecycle.
type AccountStatusInfo struct {
	UserID              string
	Username            string
	Status              AccountStatus
	IsAdmin             bool
	AccountExpiresAt    time.Time
	LastLoginAt         time.Time
	DaysUntilExpiration int64
	Unbounded           bool
}

// ReconcileReport summarizes one expiration reconciliation run.
type ReconcileReport struct {
	Scanned        int
	Expired        int
	SkippedAdmins  int
	AlreadyExpired int
	Failed         int
}

// ResetPrompt is the uniform response to a password-reset request.
type ResetPrompt struct {
	Message          string
	MFASetupRequired bool
}

type (
	// AuditEvent is the audit record emitted by the engine.
	AuditEvent = internalaudit.Event
	// AuditSink receives audit events.
	AuditSink = internalaudit.Sink
	// NoOpSink discards audit events.
	NoOpSink = internalaudit.NoOpSink
	// ChannelSink buffers audit events on a channel.
	ChannelSink = internalaudit.ChannelSink
	// JSONWriterSink writes one JSON event per line.
	JSONWriterSink = internalaudit.JSONWriterSink
	// ZapSink writes audit events to a zap logger.
	ZapSink = internalaudit.ZapSink
)

var (
	NewChannelSink    = internalaudit.NewChannelSink
	NewJSONWriterSink = internalaudit.NewJSONWriterSink
	NewZapSink        = internalaudit.NewZapSink
)
