// Package internal holds the random-value helpers shared by the engine:
// reset tokens, numeric backup codes and token digests.
//
// Sub-packages:
//
//   - audit: async event dispatch
//   - bootstrap: service config and runtime wiring
//   - httpapi: chi router and JSON handlers
//   - limiters: Redis-backed throttles for the reset flow
//   - schedule: periodic job runner
//   - stores: Redis-backed reset token store
package internal
