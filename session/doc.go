// Package session keeps the Redis-backed revocation list for signed session
// and challenge tokens.
//
// Entries are keyed by the SHA-256 of the token and expire with the token, so
// the list never grows past the set of still-valid revoked tokens.
//
// # Architecture boundaries
//
// This package does NOT parse tokens or decide whether a session is current.
// Those checks belong to the Engine.
package session
