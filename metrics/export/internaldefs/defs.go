package internaldefs

import (
	campusauth "github.com/MrEthical07/campusauth"
)

type CounterDef struct {
	ID   campusauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   campusauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: campusauth.MetricLoginSuccess, Name: "campusauth_login_success_total", Help: "Logins that issued a session."},
	{ID: campusauth.MetricLoginFailure, Name: "campusauth_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: campusauth.MetricLoginLocked, Name: "campusauth_login_locked_total", Help: "Logins rejected because the account was locked."},
	{ID: campusauth.MetricLoginExpired, Name: "campusauth_login_expired_total", Help: "Logins rejected because the account was expired."},
	{ID: campusauth.MetricLoginBlocked, Name: "campusauth_login_blocked_total", Help: "Logins rejected because the account was blocked."},
	{ID: campusauth.MetricMFALoginRequired, Name: "campusauth_mfa_login_required_total", Help: "Logins that returned an MFA challenge."},
	{ID: campusauth.MetricMFALoginSuccess, Name: "campusauth_mfa_login_success_total", Help: "Successful MFA challenge confirmations."},
	{ID: campusauth.MetricMFALoginFailure, Name: "campusauth_mfa_login_failure_total", Help: "Failed MFA challenge confirmations."},
	{ID: campusauth.MetricTOTPSuccess, Name: "campusauth_totp_success_total", Help: "Accepted TOTP codes."},
	{ID: campusauth.MetricTOTPFailure, Name: "campusauth_totp_failure_total", Help: "Rejected TOTP codes."},
	{ID: campusauth.MetricMFAEnabled, Name: "campusauth_mfa_enabled_total", Help: "MFA enrollments completed."},
	{ID: campusauth.MetricMFADisabled, Name: "campusauth_mfa_disabled_total", Help: "MFA disable operations."},
	{ID: campusauth.MetricBackupCodeUsed, Name: "campusauth_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: campusauth.MetricBackupCodeFailed, Name: "campusauth_backup_code_failed_total", Help: "Rejected backup codes."},
	{ID: campusauth.MetricBackupCodeRegenerated, Name: "campusauth_backup_code_regenerated_total", Help: "Backup-code set regenerations."},
	{ID: campusauth.MetricSessionCreated, Name: "campusauth_session_created_total", Help: "Session tokens issued."},
	{ID: campusauth.MetricSessionSuperseded, Name: "campusauth_session_superseded_total", Help: "Validations rejected because a newer session exists."},
	{ID: campusauth.MetricTokenRevoked, Name: "campusauth_token_revoked_total", Help: "Tokens added to the revocation list."},
	{ID: campusauth.MetricLogout, Name: "campusauth_logout_total", Help: "Logout operations."},
	{ID: campusauth.MetricAccountLocked, Name: "campusauth_account_locked_total", Help: "Accounts locked by repeated failures."},
	{ID: campusauth.MetricAccountExpired, Name: "campusauth_account_expired_total", Help: "Accounts moved to EXPIRED."},
	{ID: campusauth.MetricAccountBlocked, Name: "campusauth_account_blocked_total", Help: "Accounts blocked by an administrator."},
	{ID: campusauth.MetricAccountUnblocked, Name: "campusauth_account_unblocked_total", Help: "Accounts unblocked by an administrator."},
	{ID: campusauth.MetricAccountExtended, Name: "campusauth_account_extended_total", Help: "Expiration deadlines extended."},
	{ID: campusauth.MetricAccountReduced, Name: "campusauth_account_reduced_total", Help: "Expiration deadlines reduced."},
	{ID: campusauth.MetricReconcileRun, Name: "campusauth_reconcile_run_total", Help: "Expiration reconciliation runs."},
	{ID: campusauth.MetricReconcileSkipped, Name: "campusauth_reconcile_skipped_total", Help: "Reconciliation ticks skipped because a run was in progress."},
	{ID: campusauth.MetricPasswordChangeSuccess, Name: "campusauth_password_change_success_total", Help: "Successful password changes."},
	{ID: campusauth.MetricPasswordChangeInvalidOld, Name: "campusauth_password_change_invalid_old_total", Help: "Password changes rejected for a wrong current password."},
	{ID: campusauth.MetricPasswordResetRequest, Name: "campusauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: campusauth.MetricPasswordResetVerifySuccess, Name: "campusauth_password_reset_verify_success_total", Help: "Reset MFA verifications that issued a token."},
	{ID: campusauth.MetricPasswordResetVerifyFailure, Name: "campusauth_password_reset_verify_failure_total", Help: "Rejected reset MFA verifications."},
	{ID: campusauth.MetricPasswordResetConfirmSuccess, Name: "campusauth_password_reset_confirm_success_total", Help: "Completed password resets."},
	{ID: campusauth.MetricPasswordResetConfirmFailure, Name: "campusauth_password_reset_confirm_failure_total", Help: "Rejected password reset completions."},
	{ID: campusauth.MetricRateLimitHit, Name: "campusauth_rate_limit_hit_total", Help: "Requests refused by the reset throttle."},
}

var HistogramDefs = []HistogramDef{
	{ID: campusauth.MetricValidateLatency, Name: "campusauth_validate_latency_seconds", Help: "Session validation latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into gauges.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
