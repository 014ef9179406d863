// Package middleware adapts campusauth.Engine validation to net/http.
//
// # Guards
//
//   - [Guard] validates the bearer token for a route kind.
//   - [RequireMFAVerification] is the guard for the MFA completion route.
//   - [RequireRole] restricts a route to an identity holding a role.
//
// Guards read the Authorization header, call Engine.Validate, and store the
// result in the request context ([AuthResultFromContext]).
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis.
//   - Make authentication decisions beyond pass or reject from Engine.Validate.
package middleware
