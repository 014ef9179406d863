package campusauth

import (
	"context"
	"errors"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/campusauth/internal/audit"
	"github.com/MrEthical07/campusauth/internal/limiters"
	"github.com/MrEthical07/campusauth/internal/schedule"
	"github.com/MrEthical07/campusauth/internal/stores"
	"github.com/MrEthical07/campusauth/jwt"
	"github.com/MrEthical07/campusauth/session"
	"go.uber.org/zap"
)

// Engine is the authentication and account-lifecycle core. It is safe for
// concurrent use. Build one with [New].
type Engine struct {
	config       Config
	userProvider UserProvider
	hasher       PasswordHasher
	totp         *totpManager
	jwtManager   *jwt.Manager
	revocations  *session.RevocationList
	resetStore   *stores.PasswordResetStore
	resetLimiter *limiters.PasswordResetLimiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	logger       *zap.Logger
	clock        func() time.Time

	// dummyHash is verified against for unknown usernames so both paths
	// cost one hash comparison.
	dummyHash string

	jobMu         sync.Mutex
	expirationJob *schedule.Periodic
}

// Close stops the expiration job and drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.StopExpirationJob()
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:      map[MetricID]uint64{},
			Histograms:    map[MetricID][]uint64{},
			HistogramSums: map[MetricID]float64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	return e.clock()
}

func (e *Engine) ready() error {
	if e == nil || e.userProvider == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}
	return nil
}

// internalError logs err in full and returns the opaque ErrInternal.
func (e *Engine) internalError(op, userID string, err error) error {
	e.logger.Error("storage failure",
		zap.String("operation", op),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	return ErrInternal
}

func (e *Engine) loadUserByID(ctx context.Context, op, userID string) (UserRecord, error) {
	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, e.internalError(op, userID, err)
	}
	return user, nil
}

func (e *Engine) isAdmin(user UserRecord) bool {
	return user.HasRole(e.config.Lifecycle.AdminRole)
}

func statusError(status AccountStatus) error {
	switch status {
	case AccountActive:
		return nil
	case AccountExpired:
		return ErrAccountExpired
	default:
		return ErrAccountBlocked
	}
}

func (e *Engine) statusGate(user UserRecord) error {
	err := statusError(user.Status)
	switch {
	case errors.Is(err, ErrAccountExpired):
		e.metricInc(MetricLoginExpired)
	case errors.Is(err, ErrAccountBlocked):
		e.metricInc(MetricLoginBlocked)
	}
	return err
}

// LoginOption adjusts a single Login call.
type LoginOption func(*loginOptions)

type loginOptions struct {
	detectLiveSession bool
}

// DetectLiveSession makes Login stop after the password step and report
// AlreadyLoggedIn when the user's current session token is still valid.
// Callers confirm with the user and log in again without the option to
// replace that session.
func DetectLiveSession() LoginOption {
	return func(o *loginOptions) { o.detectLiveSession = true }
}

// Login checks a username and password. Accounts with MFA enabled receive a
// challenge token that must be redeemed with [Engine.ConfirmLoginMFA];
// everyone else receives a session token.
func (e *Engine) Login(ctx context.Context, username, password string, opts ...LoginOption) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var o loginOptions
	for _, opt := range opts {
		opt(&o)
	}

	user, err := e.userProvider.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, e.internalError("login", "", err)
		}
		_, _ = e.hasher.Verify(password, e.dummyHash)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", username, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	if err := e.checkLockout(ctx, &user); err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, user.Username, err, nil)
		return nil, err
	}

	ok, err := e.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		e.logger.Warn("stored password hash unreadable", zap.String("user_id", user.UserID), zap.Error(err))
		ok = false
	}
	if !ok {
		e.metricInc(MetricLoginFailure)
		failErr := e.recordFailure(ctx, &user)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, user.Username, failErr, nil)
		return nil, failErr
	}

	if err := e.statusGate(user); err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, user.Username, err, nil)
		return nil, err
	}

	// With MFA counted toward lockout, failures clear only once the second
	// factor passes.
	if !user.MFAEnabled || !e.config.Lockout.CountMFAFailures {
		if err := e.userProvider.ClearFailedLogins(ctx, user.UserID); err != nil {
			return nil, e.internalError("login", user.UserID, err)
		}
	}
	e.upgradeHash(ctx, user, password)

	if o.detectLiveSession && e.hasLiveSession(ctx, user) {
		return &LoginResult{
			UserID:          user.UserID,
			Username:        user.Username,
			Roles:           append([]string(nil), user.Roles...),
			AlreadyLoggedIn: true,
		}, nil
	}

	if user.MFAEnabled {
		challenge, err := e.IssueMFAChallengeToken(user)
		if err != nil {
			return nil, err
		}
		e.metricInc(MetricMFALoginRequired)
		e.emitAudit(ctx, auditEventMFARequired, true, user.UserID, user.Username, nil, nil)
		return &LoginResult{
			UserID:         user.UserID,
			Username:       user.Username,
			Roles:          append([]string(nil), user.Roles...),
			MFARequired:    true,
			ChallengeToken: challenge,
		}, nil
	}

	return e.completeLogin(ctx, user)
}

// ConfirmLoginMFA redeems a challenge token with a TOTP or backup code.
func (e *Engine) ConfirmLoginMFA(ctx context.Context, challengeToken, code string, kind MFAKind) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.parseAndCheckRevoked(ctx, challengeToken)
	if err != nil {
		e.metricInc(MetricMFALoginFailure)
		return nil, err
	}
	if !claims.MFAPending {
		e.metricInc(MetricMFALoginFailure)
		return nil, ErrTokenInvalid
	}

	user, err := e.loadUserByID(ctx, "confirm_login_mfa", claims.UID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	if err := e.checkLockout(ctx, &user); err != nil {
		e.metricInc(MetricMFALoginFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, user.UserID, user.Username, err, nil)
		return nil, err
	}
	if err := e.statusGate(user); err != nil {
		e.metricInc(MetricMFALoginFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, user.UserID, user.Username, err, nil)
		return nil, err
	}

	ok, err := e.verifySecondFactor(ctx, user, code, kind)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricMFALoginFailure)
		failErr := ErrInvalidMFACode
		if e.config.Lockout.CountMFAFailures {
			if lockErr := e.recordFailure(ctx, &user); errors.Is(lockErr, ErrAccountLocked) || errors.Is(lockErr, ErrInternal) {
				failErr = lockErr
			}
		}
		e.emitAudit(ctx, auditEventMFAFailure, false, user.UserID, user.Username, failErr, func() map[string]string {
			return map[string]string{"kind": kind.String()}
		})
		return nil, failErr
	}

	if err := e.RevokeToken(ctx, challengeToken); err != nil {
		return nil, err
	}
	if err := e.userProvider.ClearFailedLogins(ctx, user.UserID); err != nil {
		return nil, e.internalError("confirm_login_mfa", user.UserID, err)
	}

	e.metricInc(MetricMFALoginSuccess)
	e.emitAudit(ctx, auditEventMFASuccess, true, user.UserID, user.Username, nil, func() map[string]string {
		return map[string]string{"kind": kind.String()}
	})
	return e.completeLogin(ctx, user)
}

// completeLogin renews the expiration deadline and issues the session token.
func (e *Engine) completeLogin(ctx context.Context, user UserRecord) (*LoginResult, error) {
	if err := e.RecordLogin(ctx, user.UserID); err != nil {
		return nil, err
	}
	token, err := e.IssueSessionToken(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, user.Username, nil, nil)
	return &LoginResult{
		UserID:       user.UserID,
		Username:     user.Username,
		Roles:        append([]string(nil), user.Roles...),
		SessionToken: token,
	}, nil
}
