package campusauth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/campusauth/internal"
	"github.com/MrEthical07/campusauth/internal/limiters"
	"github.com/MrEthical07/campusauth/internal/stores"
)

const resetPromptMessage = "If the account exists, enter a code from your authenticator app or a backup code to continue."

// RequestPasswordReset starts the forgot-password flow. Unknown users and
// users with MFA get the same prompt; users without MFA are told to set it
// up from a signed-in session first.
func (e *Engine) RequestPasswordReset(ctx context.Context, username string) (*ResetPrompt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.allowResetStep(ctx, limiters.StepRequest); err != nil {
		return nil, err
	}
	e.metricInc(MetricPasswordResetRequest)

	prompt := &ResetPrompt{Message: resetPromptMessage}
	user, err := e.userProvider.GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, ErrUserNotFound):
		e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", username, nil, nil)
		return prompt, nil
	case err != nil:
		return nil, e.internalError("password_reset_request", "", err)
	}

	if !user.MFAEnabled {
		prompt.MFASetupRequired = true
	}
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.UserID, user.Username, nil, nil)
	return prompt, nil
}

// VerifyPasswordResetMFA checks a TOTP or backup code and, on success,
// returns a single-use reset token. Codes as long as a TOTP code are checked
// as TOTP, everything else as a backup code.
func (e *Engine) VerifyPasswordResetMFA(ctx context.Context, username, code string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if err := e.allowResetStep(ctx, limiters.StepVerify); err != nil {
		return "", err
	}

	user, err := e.userProvider.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return "", e.internalError("password_reset_verify", "", err)
		}
		e.metricInc(MetricPasswordResetVerifyFailure)
		e.emitAudit(ctx, auditEventPasswordResetVerify, false, "", username, ErrInvalidMFACode, nil)
		return "", ErrInvalidMFACode
	}

	kind := MFAKindBackup
	if len(strings.TrimSpace(code)) == e.config.TOTP.Digits {
		kind = MFAKindTOTP
	}
	ok, err := e.verifySecondFactor(ctx, user, code, kind)
	if err != nil {
		return "", err
	}
	if !ok {
		e.metricInc(MetricPasswordResetVerifyFailure)
		e.emitAudit(ctx, auditEventPasswordResetVerify, false, user.UserID, user.Username, ErrInvalidMFACode, nil)
		return "", ErrInvalidMFACode
	}

	token, err := internal.NewResetToken()
	if err != nil {
		return "", e.internalError("password_reset_verify", user.UserID, err)
	}
	if err := e.resetStore.Save(ctx, internal.TokenDigest(token), user.Username, e.config.PasswordReset.TokenTTL); err != nil {
		return "", e.internalError("password_reset_verify", user.UserID, err)
	}

	e.metricInc(MetricPasswordResetVerifySuccess)
	e.emitAudit(ctx, auditEventPasswordResetVerify, true, user.UserID, user.Username, nil, func() map[string]string {
		return map[string]string{"kind": kind.String()}
	})
	return token, nil
}

// CompletePasswordReset redeems token and sets the new password. The token is
// consumed even when it belongs to a different user.
func (e *Engine) CompletePasswordReset(ctx context.Context, username, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.allowResetStep(ctx, limiters.StepComplete); err != nil {
		return err
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return err
	}

	owner, err := e.resetStore.Consume(ctx, internal.TokenDigest(token))
	if err != nil {
		if !errors.Is(err, stores.ErrResetNotFound) {
			return e.internalError("password_reset_complete", "", err)
		}
		return e.resetTokenRejected(ctx, username)
	}
	if owner != username {
		return e.resetTokenRejected(ctx, username)
	}

	user, err := e.userProvider.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return e.resetTokenRejected(ctx, username)
		}
		return e.internalError("password_reset_complete", "", err)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.internalError("password_reset_complete", user.UserID, err)
	}
	if err := e.userProvider.UpdatePasswordHash(ctx, user.UserID, hash); err != nil {
		return e.internalError("password_reset_complete", user.UserID, err)
	}
	if err := e.userProvider.ClearFailedLogins(ctx, user.UserID); err != nil {
		return e.internalError("password_reset_complete", user.UserID, err)
	}
	if err := e.endSession(ctx, user, "password_reset_complete"); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.UserID, user.Username, nil, nil)
	return nil
}

func (e *Engine) resetTokenRejected(ctx context.Context, username string) error {
	e.metricInc(MetricPasswordResetConfirmFailure)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", username, ErrResetTokenInvalid, nil)
	return ErrResetTokenInvalid
}

func (e *Engine) allowResetStep(ctx context.Context, step limiters.ResetStep) error {
	err := e.resetLimiter.Allow(ctx, step, clientIPFromContext(ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrResetRateLimited):
		e.emitRateLimit(ctx, "password_reset_"+string(step))
		return ErrRateLimited
	default:
		return e.internalError("password_reset_rate_limit", "", err)
	}
}
