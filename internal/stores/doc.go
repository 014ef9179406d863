// Package stores holds short-lived Redis records for the password-reset flow.
//
// Reset tokens are stored under the SHA-256 digest of the token with the
// owning username as the value. Redis TTLs do the eviction; Consume is a
// single GETDEL so a token can be redeemed at most once even under
// concurrent requests.
//
// # What this package must NOT do
//
//   - Import campusauth or any sibling internal package.
//   - Store plaintext reset tokens.
package stores
