package campusauth

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ChangePassword replaces the password of a signed-in user after checking
// the current one. A wrong current password counts toward lockout. The live
// session is kept.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := e.ready(); err != nil {
		return err
	}

	user, err := e.loadUserByID(ctx, "change_password", userID)
	if err != nil {
		return err
	}

	if err := e.checkLockout(ctx, &user); err != nil {
		e.emitAudit(ctx, auditEventPasswordChange, false, user.UserID, user.Username, err, nil)
		return err
	}

	ok, err := e.hasher.Verify(current, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		failErr := e.recordFailure(ctx, &user)
		e.emitAudit(ctx, auditEventPasswordChange, false, user.UserID, user.Username, failErr, nil)
		return failErr
	}
	if user.FailedLoginAttempts > 0 {
		if err := e.userProvider.ClearFailedLogins(ctx, userID); err != nil {
			return e.internalError("change_password", userID, err)
		}
	}
	if err := e.checkPasswordPolicy(next); err != nil {
		e.emitAudit(ctx, auditEventPasswordChange, false, user.UserID, user.Username, err, nil)
		return err
	}

	hash, err := e.hasher.Hash(next)
	if err != nil {
		return e.internalError("change_password", userID, err)
	}
	if err := e.userProvider.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return e.internalError("change_password", userID, err)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, true, user.UserID, user.Username, nil, nil)
	return nil
}

func (e *Engine) checkPasswordPolicy(password string) error {
	if utf8.RuneCountInString(password) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}
	return nil
}

type upgradeChecker interface {
	NeedsUpgrade(encodedHash string) (bool, error)
}

// upgradeHash rehashes a verified password whose stored hash came from a
// legacy algorithm or weaker parameters. Failures are logged and ignored.
func (e *Engine) upgradeHash(ctx context.Context, user UserRecord, password string) {
	checker, ok := e.hasher.(upgradeChecker)
	if !ok {
		return
	}
	needs, err := checker.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}

	hash, err := e.hasher.Hash(password)
	if err == nil {
		err = e.userProvider.UpdatePasswordHash(ctx, user.UserID, hash)
	}
	if err != nil {
		e.logger.Warn("password hash upgrade failed", zap.String("user_id", user.UserID), zap.Error(err))
	}
}
