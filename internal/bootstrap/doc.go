// Package bootstrap resolves service configuration and wires the engine,
// its stores and the HTTP server for cmd/campusauthd.
package bootstrap
