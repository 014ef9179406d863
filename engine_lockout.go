package campusauth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// checkLockout refuses a user whose lock is still running. An elapsed lock is
// cleared in the store and on user so the next failure counts from zero.
func (e *Engine) checkLockout(ctx context.Context, user *UserRecord) error {
	if user.AccountLockedUntil.IsZero() {
		return nil
	}

	now := e.now()
	if now.Before(user.AccountLockedUntil) {
		e.metricInc(MetricLoginLocked)
		return &AccountLockedError{Remaining: user.AccountLockedUntil.Sub(now)}
	}

	if err := e.userProvider.ClearFailedLogins(ctx, user.UserID); err != nil {
		return e.internalError("unlock", user.UserID, err)
	}
	user.FailedLoginAttempts = 0
	user.AccountLockedUntil = time.Time{}
	return nil
}

// recordFailure counts one failed authentication. It returns
// ErrInvalidCredentials, or an *AccountLockedError when this failure reached
// the threshold.
func (e *Engine) recordFailure(ctx context.Context, user *UserRecord) error {
	now := e.now()
	threshold := e.config.Lockout.Threshold
	lockUntil := now.Add(e.config.Lockout.Duration)

	state, err := e.userProvider.RecordFailedLogin(ctx, user.UserID, threshold, lockUntil)
	if err != nil {
		return e.internalError("record_failed_login", user.UserID, err)
	}
	user.FailedLoginAttempts = state.FailedAttempts
	user.AccountLockedUntil = state.LockedUntil

	if state.FailedAttempts < threshold || !state.LockedUntil.After(now) {
		return ErrInvalidCredentials
	}

	e.metricInc(MetricAccountLocked)
	e.logger.Warn("account locked",
		zap.String("user_id", user.UserID),
		zap.Int("failed_attempts", state.FailedAttempts),
		zap.Time("locked_until", state.LockedUntil),
	)
	e.emitAudit(ctx, auditEventAccountLocked, true, user.UserID, user.Username, nil, func() map[string]string {
		return map[string]string{"locked_until": state.LockedUntil.UTC().Format(time.RFC3339)}
	})
	return &AccountLockedError{Remaining: state.LockedUntil.Sub(now)}
}
