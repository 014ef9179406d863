package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSigningKeyBytes = 32

// Config controls token lifetimes and validation.
type Config struct {
	SigningKey   []byte
	SessionTTL   time.Duration
	ChallengeTTL time.Duration
	Issuer       string
	Leeway       time.Duration

	// KeyID is written to the kid header when set. VerifyKeys lets tokens
	// signed under a retired key keep validating until they expire.
	KeyID      string
	VerifyKeys map[string][]byte

	// Now overrides the clock for issuance and expiry checks.
	Now func() time.Time
}

// Manager signs and parses tokens. It is safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// SessionClaims is the payload of both session and challenge tokens. The
// subject is the username.
type SessionClaims struct {
	UID        string   `json:"uid"`
	Roles      []string `json:"roles,omitempty"`
	MFAPending bool     `json:"mfa,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.SigningKey) < minSigningKeyBytes {
		return nil, fmt.Errorf("signing key must be at least %d bytes", minSigningKeyBytes)
	}
	if cfg.SessionTTL <= 0 || cfg.ChallengeTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.ChallengeTTL > cfg.SessionTTL {
		return nil, errors.New("challenge TTL must not exceed session TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if len(key) < minSigningKeyBytes {
			return nil, fmt.Errorf("verify key for kid %q is too short", kid)
		}
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, now: now}, nil
}

// CreateSession signs a full session token. It returns the token and its expiry.
func (j *Manager) CreateSession(uid, username string, roles []string) (string, time.Time, error) {
	return j.create(uid, username, roles, false, j.config.SessionTTL)
}

// CreateChallenge signs a short-lived token that only proves the password step.
func (j *Manager) CreateChallenge(uid, username string, roles []string) (string, time.Time, error) {
	return j.create(uid, username, roles, true, j.config.ChallengeTTL)
}

func (j *Manager) create(uid, username string, roles []string, mfa bool, ttl time.Duration) (string, time.Time, error) {
	now := j.now()
	exp := now.Add(ttl)
	claims := SessionClaims{
		UID:        uid,
		Roles:      append([]string(nil), roles...),
		MFAPending: mfa,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}
	signed, err := token.SignedString(j.config.SigningKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp.Truncate(time.Second), nil
}

// Parse verifies signature, issuer and expiry. It does not consult revocation
// or the user's current session.
func (j *Manager) Parse(tokenStr string) (*SessionClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if len(j.config.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := j.config.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return key, nil
		}
		return j.config.SigningKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UID == "" || claims.Subject == "" {
		return nil, errors.New("token missing subject")
	}
	return claims, nil
}

// ExpiresAt reads the exp claim without verifying the signature. Callers use
// it to size revocation entries for tokens that may already be invalid.
func ExpiresAt(tokenStr string) (time.Time, bool) {
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
