package campusauth

import (
	"context"
	"strings"

	"github.com/MrEthical07/campusauth/internal"
)

// GenerateBackupCodes replaces the user's backup codes. The plaintext codes
// are returned once and only their hashes are stored.
func (e *Engine) GenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	user, err := e.loadUserByID(ctx, "generate_backup_codes", userID)
	if err != nil {
		return nil, err
	}
	if !user.MFAEnabled {
		return nil, ErrMFASetupRequired
	}

	count := e.config.TOTP.BackupCodeCount
	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		code, err := internal.NewDigits(e.config.TOTP.BackupCodeLength)
		if err != nil {
			return nil, e.internalError("generate_backup_codes", userID, err)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	hashes := make([]string, len(codes))
	for i, code := range codes {
		h, err := e.hasher.Hash(code)
		if err != nil {
			return nil, e.internalError("generate_backup_codes", userID, err)
		}
		hashes[i] = h
	}

	if err := e.userProvider.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		return nil, e.internalError("generate_backup_codes", userID, err)
	}

	e.metricInc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesGenerated, true, user.UserID, user.Username, nil, nil)
	return codes, nil
}

// VerifyAndConsumeBackupCode compares code against each stored hash and
// removes the matching one. Of two concurrent callers presenting the same
// code only one sees true.
func (e *Engine) VerifyAndConsumeBackupCode(ctx context.Context, user UserRecord, code string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}

	code = strings.TrimSpace(code)
	if len(code) != e.config.TOTP.BackupCodeLength || !isNumericString(code) {
		e.metricInc(MetricBackupCodeFailed)
		return false, nil
	}

	for _, hash := range user.BackupCodes {
		ok, err := e.hasher.Verify(code, hash)
		if err != nil || !ok {
			continue
		}

		removed, err := e.userProvider.RemoveBackupCode(ctx, user.UserID, hash)
		if err != nil {
			return false, e.internalError("consume_backup_code", user.UserID, err)
		}
		if !removed {
			break
		}
		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(ctx, auditEventBackupCodeUsed, true, user.UserID, user.Username, nil, nil)
		return true, nil
	}

	e.metricInc(MetricBackupCodeFailed)
	e.emitAudit(ctx, auditEventBackupCodeFailed, false, user.UserID, user.Username, ErrInvalidMFACode, nil)
	return false, nil
}

// verifySecondFactor checks a TOTP or backup code for a user with MFA enabled.
func (e *Engine) verifySecondFactor(ctx context.Context, user UserRecord, code string, kind MFAKind) (bool, error) {
	if !user.MFAEnabled {
		return false, nil
	}
	if kind == MFAKindBackup {
		return e.VerifyAndConsumeBackupCode(ctx, user, code)
	}
	return e.VerifyMFACode(user, code), nil
}
