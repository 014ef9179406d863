// Package limiters provides the Redis-backed request throttle for the
// password-reset steps.
//
// Each (step, client IP) pair may make one call per window. The first call
// claims the key with SET NX PX; later calls inside the window are refused.
//
// # What this package must NOT do
//
//   - Import campusauth or any sibling internal package.
//   - Decide what a refusal means; the Engine maps it to a denial.
package limiters
