// Package campusauth is the authentication and account-lifecycle core of the
// campus records service: password login with lockout, TOTP second factor and
// backup codes, single-session bearer tokens, account expiration, and the
// MFA-gated password reset.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// campusauth is the public surface. It exposes [Engine], [Builder], [Config],
// [UserProvider] and value types. User records live behind [UserProvider]
// (see store/postgres and store/memory). Revocation entries, reset tokens and
// reset rate-limit windows live in Redis.
//
// # What this package must NOT do
//
//   - Expose Redis clients or internal stores in its public API.
//   - Leak storage errors to callers; they are logged and returned as [ErrInternal].
//   - Accept fixed or test-only MFA codes.
//   - Import any sub-package that re-imports campusauth.
package campusauth
