// Package jwt issues and parses the HS256 session and MFA challenge tokens.
//
// Both token kinds share one claim set. Challenge tokens carry the "mfa"
// marker and a short lifetime; they only unlock the MFA verification route.
package jwt
