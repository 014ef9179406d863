package campusauth

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/MrEthical07/campusauth/internal/schedule"
	"go.uber.org/zap"
)

const dayDuration = 24 * time.Hour

// loginDeadline is the expiration deadline granted by a login at now.
func (e *Engine) loginDeadline(user UserRecord, now time.Time) time.Time {
	if e.isAdmin(user) {
		return now.AddDate(e.config.Lifecycle.AdminHorizonYears, 0, 0)
	}
	return now.Add(e.config.Lifecycle.LoginExtension)
}

// RecordLogin stamps the last login and pushes the expiration deadline out.
// An expired account becomes active again; a blocked one stays blocked.
func (e *Engine) RecordLogin(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	user, err := e.loadUserByID(ctx, "record_login", userID)
	if err != nil {
		return err
	}

	now := e.now()
	deadline := e.loginDeadline(user, now)
	update := LifecycleUpdate{
		ExpiresAt: &deadline,
		LastLogin: &now,
	}
	if user.Status == AccountExpired {
		active, from := AccountActive, AccountExpired
		update.Status = &active
		update.StatusFrom = &from
	}
	if err := e.userProvider.UpdateLifecycle(ctx, userID, update); err != nil {
		return e.internalError("record_login", userID, err)
	}
	return nil
}

// ReconcileExpirations expires every active, non-administrator account whose
// deadline lies before now. It is idempotent. When ctx ends mid-run the
// partial report is returned together with ctx.Err().
func (e *Engine) ReconcileExpirations(ctx context.Context, now time.Time) (ReconcileReport, error) {
	var report ReconcileReport
	if err := e.ready(); err != nil {
		return report, err
	}

	candidates, err := e.userProvider.ListExpirationCandidates(ctx, now)
	if err != nil {
		return report, e.internalError("reconcile", "", err)
	}

	for _, user := range candidates {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("expiration reconcile interrupted",
				zap.Int("scanned", report.Scanned),
				zap.Int("remaining", len(candidates)-report.Scanned),
				zap.Error(err),
			)
			return report, err
		}

		report.Scanned++
		switch {
		case user.Status == AccountBlocked:
			continue
		case e.isAdmin(user):
			report.SkippedAdmins++
			continue
		case user.Status == AccountExpired:
			report.AlreadyExpired++
			continue
		}

		flipped, err := e.userProvider.ExpireAccount(ctx, user.UserID, now)
		if err != nil {
			report.Failed++
			e.logger.Error("expire account failed",
				zap.String("operation", "reconcile"),
				zap.String("user_id", user.UserID),
				zap.Error(err),
			)
			continue
		}
		if !flipped {
			report.AlreadyExpired++
			continue
		}

		report.Expired++
		e.metricInc(MetricAccountExpired)
		e.logger.Info("account expired",
			zap.String("user_id", user.UserID),
			zap.Time("deadline", user.AccountExpiresAt),
		)
	}

	e.metricInc(MetricReconcileRun)
	e.emitAudit(ctx, auditEventReconcile, report.Failed == 0, "", "", nil, func() map[string]string {
		return map[string]string{
			"scanned":         strconv.Itoa(report.Scanned),
			"expired":         strconv.Itoa(report.Expired),
			"skipped_admins":  strconv.Itoa(report.SkippedAdmins),
			"already_expired": strconv.Itoa(report.AlreadyExpired),
			"failed":          strconv.Itoa(report.Failed),
		}
	})
	return report, nil
}

// StartExpirationJob runs ReconcileExpirations every
// Config.Lifecycle.ReconcileInterval until ctx ends or the engine is closed.
func (e *Engine) StartExpirationJob(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}

	e.jobMu.Lock()
	defer e.jobMu.Unlock()
	if e.expirationJob != nil {
		return schedule.ErrAlreadyStarted
	}

	job := schedule.NewPeriodic(
		"expiration_reconcile",
		e.config.Lifecycle.ReconcileInterval,
		e.config.Lifecycle.MaxRuntime,
		func(runCtx context.Context) error {
			_, err := e.ReconcileExpirations(runCtx, e.now())
			return err
		},
		e.logger,
	).OnSkip(func() { e.metricInc(MetricReconcileSkipped) })
	if err := job.Start(ctx); err != nil {
		return err
	}
	e.expirationJob = job
	return nil
}

// StopExpirationJob stops the job and waits for a run in progress.
func (e *Engine) StopExpirationJob() {
	if e == nil {
		return
	}
	e.jobMu.Lock()
	job := e.expirationJob
	e.expirationJob = nil
	e.jobMu.Unlock()

	if job != nil {
		job.Stop()
		e.logger.Info("expiration job stopped", zap.Uint64("runs", job.Runs()), zap.Uint64("skipped", job.Skips()))
	}
}

// BlockAccount suspends a non-administrator account and ends its live
// session. Blocking a blocked account is a no-op.
func (e *Engine) BlockAccount(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	user, err := e.loadUserByID(ctx, "block_account", userID)
	if err != nil {
		return err
	}
	if e.isAdmin(user) {
		return ErrAdminAccountImmutable
	}
	if user.Status == AccountBlocked {
		return nil
	}

	blocked := AccountBlocked
	if err := e.userProvider.UpdateLifecycle(ctx, userID, LifecycleUpdate{Status: &blocked}); err != nil {
		return e.internalError("block_account", userID, err)
	}
	if err := e.endSession(ctx, user, "block_account"); err != nil {
		return err
	}

	e.metricInc(MetricAccountBlocked)
	e.logger.Info("account blocked", zap.String("user_id", userID))
	e.emitStatusChange(ctx, user, AccountBlocked)
	return nil
}

// UnblockAccount reactivates an account and renews its deadline as a fresh
// login would.
func (e *Engine) UnblockAccount(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	user, err := e.loadUserByID(ctx, "unblock_account", userID)
	if err != nil {
		return err
	}
	if e.isAdmin(user) {
		return ErrAdminAccountImmutable
	}

	active := AccountActive
	deadline := e.loginDeadline(user, e.now())
	update := LifecycleUpdate{Status: &active, ExpiresAt: &deadline}
	if err := e.userProvider.UpdateLifecycle(ctx, userID, update); err != nil {
		return e.internalError("unblock_account", userID, err)
	}

	e.metricInc(MetricAccountUnblocked)
	e.logger.Info("account unblocked", zap.String("user_id", userID))
	e.emitStatusChange(ctx, user, AccountActive)
	return nil
}

// ExtendExpiration moves the deadline days later, counting from the current
// deadline or from now when none is set. An expired account becomes active.
// Administrator accounts are left unchanged.
func (e *Engine) ExtendExpiration(ctx context.Context, userID string, days int) error {
	if days <= 0 {
		return ErrInvalidExpirationDays
	}
	if err := e.ready(); err != nil {
		return err
	}

	user, err := e.loadUserByID(ctx, "extend_expiration", userID)
	if err != nil {
		return err
	}
	if e.isAdmin(user) {
		return nil
	}

	base := user.AccountExpiresAt
	if base.IsZero() {
		base = e.now()
	}
	deadline := base.AddDate(0, 0, days)
	update := LifecycleUpdate{ExpiresAt: &deadline}
	if user.Status == AccountExpired {
		active, from := AccountActive, AccountExpired
		update.Status = &active
		update.StatusFrom = &from
	}
	if err := e.userProvider.UpdateLifecycle(ctx, userID, update); err != nil {
		return e.internalError("extend_expiration", userID, err)
	}

	e.metricInc(MetricAccountExtended)
	e.emitExpirationChange(ctx, user, deadline, days)
	return nil
}

// ReduceExpiration moves the deadline days earlier, counting from the
// current deadline or from the login extension when none is set. A deadline
// that lands in the past is clamped to now and the account expires, unless it
// is blocked.
func (e *Engine) ReduceExpiration(ctx context.Context, userID string, days int) error {
	if days <= 0 {
		return ErrInvalidExpirationDays
	}
	if err := e.ready(); err != nil {
		return err
	}

	user, err := e.loadUserByID(ctx, "reduce_expiration", userID)
	if err != nil {
		return err
	}
	if e.isAdmin(user) {
		return nil
	}

	now := e.now()
	base := user.AccountExpiresAt
	if base.IsZero() {
		base = now.Add(e.config.Lifecycle.LoginExtension)
	}
	deadline := base.AddDate(0, 0, -days)
	update := LifecycleUpdate{ExpiresAt: &deadline}
	if deadline.Before(now) {
		deadline = now
		if user.Status != AccountBlocked {
			expired, from := AccountExpired, user.Status
			update.Status = &expired
			update.StatusFrom = &from
		}
	}
	if err := e.userProvider.UpdateLifecycle(ctx, userID, update); err != nil {
		return e.internalError("reduce_expiration", userID, err)
	}

	e.metricInc(MetricAccountReduced)
	if update.Status != nil {
		e.metricInc(MetricAccountExpired)
	}
	e.emitExpirationChange(ctx, user, deadline, -days)
	return nil
}

// ForceExpire sets the deadline to now and expires the account. Blocked
// accounts keep their status; administrators are left unchanged.
func (e *Engine) ForceExpire(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	user, err := e.loadUserByID(ctx, "force_expire", userID)
	if err != nil {
		return err
	}
	if e.isAdmin(user) {
		return nil
	}

	now := e.now()
	update := LifecycleUpdate{ExpiresAt: &now}
	if user.Status == AccountActive {
		expired, from := AccountExpired, AccountActive
		update.Status = &expired
		update.StatusFrom = &from
	}
	if err := e.userProvider.UpdateLifecycle(ctx, userID, update); err != nil {
		return e.internalError("force_expire", userID, err)
	}

	if update.Status != nil {
		e.metricInc(MetricAccountExpired)
		e.emitStatusChange(ctx, user, AccountExpired)
	}
	return nil
}

// GetAccountStatus reports the lifecycle view of an account.
func (e *Engine) GetAccountStatus(ctx context.Context, userID string) (*AccountStatusInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	user, err := e.loadUserByID(ctx, "get_account_status", userID)
	if err != nil {
		return nil, err
	}

	info := &AccountStatusInfo{
		UserID:           user.UserID,
		Username:         user.Username,
		Status:           user.Status,
		IsAdmin:          e.isAdmin(user),
		AccountExpiresAt: user.AccountExpiresAt,
		LastLoginAt:      user.LastLoginAt,
	}
	switch {
	case info.IsAdmin:
		info.Unbounded = true
	case !user.AccountExpiresAt.IsZero():
		info.DaysUntilExpiration = daysUntil(e.now(), user.AccountExpiresAt)
	}
	return info, nil
}

// daysUntil rounds up partial days and never reports a negative count.
func daysUntil(now, deadline time.Time) int64 {
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(remaining) / float64(dayDuration)))
}

func (e *Engine) emitStatusChange(ctx context.Context, user UserRecord, to AccountStatus) {
	e.emitAudit(ctx, auditEventAccountStatusChange, true, user.UserID, user.Username, nil, func() map[string]string {
		return map[string]string{
			"from": user.Status.String(),
			"to":   to.String(),
		}
	})
}

func (e *Engine) emitExpirationChange(ctx context.Context, user UserRecord, deadline time.Time, days int) {
	e.emitAudit(ctx, auditEventAccountExpirationEdit, true, user.UserID, user.Username, nil, func() map[string]string {
		return map[string]string{
			"days":       strconv.Itoa(days),
			"expires_at": deadline.UTC().Format(time.RFC3339),
		}
	})
}
