package campusauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/MrEthical07/campusauth/jwt"
)

// IssueSessionToken signs a session token for user and records it as the
// user's only live session. Any earlier token stops validating.
func (e *Engine) IssueSessionToken(ctx context.Context, user UserRecord) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	token, _, err := e.jwtManager.CreateSession(user.UserID, user.Username, user.Roles)
	if err != nil {
		return "", e.internalError("issue_session", user.UserID, err)
	}
	if err := e.userProvider.SetSessionToken(ctx, user.UserID, token); err != nil {
		return "", e.internalError("issue_session", user.UserID, err)
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionIssued, true, user.UserID, user.Username, nil, nil)
	return token, nil
}

// IssueMFAChallengeToken signs the short-lived token handed out after the
// password step. It is not recorded on the user.
func (e *Engine) IssueMFAChallengeToken(user UserRecord) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	token, _, err := e.jwtManager.CreateChallenge(user.UserID, user.Username, user.Roles)
	if err != nil {
		return "", e.internalError("issue_challenge", user.UserID, err)
	}
	return token, nil
}

// Validate authenticates a bearer token for the given route kind.
//
// Checks run in order: signature and expiry, revocation list, MFA marker,
// then equality with the user's current session token.
func (e *Engine) Validate(ctx context.Context, token string, route RouteKind) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	claims, err := e.parseAndCheckRevoked(ctx, token)
	if err != nil {
		return nil, err
	}

	result := &AuthResult{
		UserID:     claims.UID,
		Username:   claims.Subject,
		Roles:      append([]string(nil), claims.Roles...),
		MFAPending: claims.MFAPending,
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}

	if claims.MFAPending {
		if route != RouteMFAVerification {
			return nil, ErrMFAPending
		}
		return result, nil
	}

	user, err := e.loadUserByID(ctx, "validate", claims.UID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(user.CurrentSessionToken), []byte(token)) != 1 {
		e.metricInc(MetricSessionSuperseded)
		return nil, ErrSessionSuperseded
	}

	return result, nil
}

// hasLiveSession reports whether user's recorded session token would still
// pass Validate. Lookup failures count as no live session.
func (e *Engine) hasLiveSession(ctx context.Context, user UserRecord) bool {
	if user.CurrentSessionToken == "" {
		return false
	}
	claims, err := e.parseAndCheckRevoked(ctx, user.CurrentSessionToken)
	return err == nil && !claims.MFAPending && claims.UID == user.UserID
}

func (e *Engine) parseAndCheckRevoked(ctx context.Context, token string) (*jwt.SessionClaims, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}
	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	revoked, err := e.revocations.IsRevoked(ctx, token)
	if err != nil {
		return nil, e.internalError("revocation_check", claims.UID, err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// RevokeToken puts token on the revocation list until it would have expired.
// Revoking an already revoked token is not an error.
func (e *Engine) RevokeToken(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if token == "" {
		return ErrTokenInvalid
	}

	expiresAt, _ := jwt.ExpiresAt(token)
	if err := e.revocations.Revoke(ctx, token, expiresAt); err != nil {
		return e.internalError("revoke", "", err)
	}
	e.metricInc(MetricTokenRevoked)
	return nil
}

// Logout revokes token and ends the user's session if token is still the
// current one. A stale token never ends a newer session.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if err := e.ready(); err != nil {
		return err
	}

	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		return ErrTokenInvalid
	}
	if err := e.RevokeToken(ctx, token); err != nil {
		return err
	}
	if !claims.MFAPending {
		if _, err := e.userProvider.ClearSessionToken(ctx, claims.UID, token); err != nil && !errors.Is(err, ErrUserNotFound) {
			return e.internalError("logout", claims.UID, err)
		}
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, claims.UID, claims.Subject, nil, nil)
	return nil
}

// endSession revokes and clears whatever session user currently holds.
func (e *Engine) endSession(ctx context.Context, user UserRecord, op string) error {
	if user.CurrentSessionToken == "" {
		return nil
	}
	if err := e.RevokeToken(ctx, user.CurrentSessionToken); err != nil {
		return err
	}
	if _, err := e.userProvider.ClearSessionToken(ctx, user.UserID, user.CurrentSessionToken); err != nil {
		return e.internalError(op, user.UserID, err)
	}
	return nil
}
