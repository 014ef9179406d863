package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/campusauth"
)

// Validator is the subset of *campusauth.Engine the guards need.
type Validator interface {
	Validate(ctx context.Context, token string, route campusauth.RouteKind) (*campusauth.AuthResult, error)
}

type authResultContextKey struct{}

// AuthResultFromContext returns the identity stored by [Guard]. It reports
// false for anonymous requests, including those carrying an MFA challenge
// token on a standard route.
func AuthResultFromContext(ctx context.Context) (*campusauth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*campusauth.AuthResult)
	return res, ok
}

// Guard authenticates the bearer token for route. A challenge token on a
// standard route is let through without an identity; downstream handlers
// that need one reject the request themselves.
func Guard(engine Validator, route campusauth.RouteKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			res, err := engine.Validate(r.Context(), token, route)
			switch {
			case errors.Is(err, campusauth.ErrMFAPending):
				next.ServeHTTP(w, r)
				return
			case err != nil:
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireMFAVerification accepts challenge tokens as well as sessions.
func RequireMFAVerification(engine Validator) func(http.Handler) http.Handler {
	return Guard(engine, campusauth.RouteMFAVerification)
}

// RequireRole rejects requests whose identity lacks role. It must run after
// [Guard].
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok || res.MFAPending {
				unauthorized(w)
				return
			}
			for _, have := range res.Roles {
				if have == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
