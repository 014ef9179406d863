package campusauth

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidCredentials is returned for an unknown username or a wrong password.
	// Both cases share the message so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is matched by [AccountLockedError] via errors.Is.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountExpired is returned when an expired account attempts to authenticate.
	ErrAccountExpired = errors.New("account expired")
	// ErrAccountBlocked is returned when a blocked account attempts to authenticate.
	ErrAccountBlocked = errors.New("account blocked")
	// ErrInvalidMFACode is returned for a wrong TOTP or backup code.
	ErrInvalidMFACode = errors.New("invalid mfa code")
	// ErrMFASetupRequired is returned when a flow needs MFA that the account has not enabled.
	ErrMFASetupRequired = errors.New("mfa setup required")
	// ErrMFAPending marks a challenge token presented outside the MFA verification route.
	ErrMFAPending = errors.New("mfa verification pending")
	// ErrSessionSuperseded is returned when a newer login replaced the presented token.
	ErrSessionSuperseded = errors.New("session superseded")
	// ErrTokenRevoked is returned for tokens found on the revocation list.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenInvalid covers malformed, expired, or wrongly signed tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRateLimited is returned when a client exceeds the password-reset request window.
	ErrRateLimited = errors.New("rate limited")
	// ErrResetTokenInvalid is returned for unknown, expired, consumed, or foreign reset tokens.
	ErrResetTokenInvalid = errors.New("reset token invalid or expired")
	// ErrPasswordPolicy is returned when a new password does not satisfy the configured policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrAdminAccountImmutable is returned when block or unblock targets an administrator.
	ErrAdminAccountImmutable = errors.New("administrator accounts cannot change status")
	// ErrInvalidExpirationDays is returned for a non-positive day count.
	ErrInvalidExpirationDays = errors.New("days must be positive")
	// ErrUserNotFound is returned by [UserProvider] implementations for missing users.
	ErrUserNotFound = errors.New("user not found")
	// ErrInternal hides storage and infrastructure failures from callers.
	ErrInternal = errors.New("internal error")
	// ErrEngineNotReady is returned when methods are called on a nil or closed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// AccountLockedError reports a temporary lockout and how long it still lasts.
type AccountLockedError struct {
	Remaining time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %d seconds", e.SecondsRemaining())
}

// Is makes errors.Is(err, ErrAccountLocked) true.
func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// SecondsRemaining rounds up so a locked account never reports zero.
func (e *AccountLockedError) SecondsRemaining() int64 {
	if e == nil || e.Remaining <= 0 {
		return 0
	}
	return int64(math.Ceil(e.Remaining.Seconds()))
}

// DenialReason is the request-layer classification of an authentication outcome.
type DenialReason string

const (
	ReasonNone               DenialReason = ""
	ReasonInvalidCredentials DenialReason = "InvalidCredentials"
	ReasonAccountLocked      DenialReason = "AccountLocked"
	ReasonAccountExpired     DenialReason = "AccountExpired"
	ReasonAccountBlocked     DenialReason = "AccountBlocked"
	ReasonMFARequired        DenialReason = "MfaRequired"
	ReasonInvalidMFACode     DenialReason = "InvalidMfaCode"
	ReasonMFASetupRequired   DenialReason = "MfaSetupRequired"
	ReasonSessionSuperseded  DenialReason = "SessionSuperseded"
	ReasonTokenRevoked       DenialReason = "TokenRevoked"
	ReasonTokenInvalid       DenialReason = "TokenInvalid"
	ReasonRateLimited        DenialReason = "RateLimited"
	ReasonResetTokenInvalid  DenialReason = "ResetTokenInvalidOrExpired"
	ReasonPasswordPolicy     DenialReason = "PasswordPolicy"
	ReasonAdminImmutable     DenialReason = "AdminImmutable"
	ReasonInvalidArgument    DenialReason = "InvalidArgument"
	ReasonNotFound           DenialReason = "NotFound"
	ReasonInternal           DenialReason = "Internal"
)

// DenialReasonOf maps an error returned by the engine to its denial reason.
func DenialReasonOf(err error) DenialReason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrInvalidCredentials):
		return ReasonInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return ReasonAccountLocked
	case errors.Is(err, ErrAccountExpired):
		return ReasonAccountExpired
	case errors.Is(err, ErrAccountBlocked):
		return ReasonAccountBlocked
	case errors.Is(err, ErrMFAPending):
		return ReasonMFARequired
	case errors.Is(err, ErrInvalidMFACode):
		return ReasonInvalidMFACode
	case errors.Is(err, ErrMFASetupRequired):
		return ReasonMFASetupRequired
	case errors.Is(err, ErrSessionSuperseded):
		return ReasonSessionSuperseded
	case errors.Is(err, ErrTokenRevoked):
		return ReasonTokenRevoked
	case errors.Is(err, ErrTokenInvalid):
		return ReasonTokenInvalid
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrResetTokenInvalid):
		return ReasonResetTokenInvalid
	case errors.Is(err, ErrPasswordPolicy):
		return ReasonPasswordPolicy
	case errors.Is(err, ErrAdminAccountImmutable):
		return ReasonAdminImmutable
	case errors.Is(err, ErrInvalidExpirationDays):
		return ReasonInvalidArgument
	case errors.Is(err, ErrUserNotFound):
		return ReasonNotFound
	default:
		return ReasonInternal
	}
}
