// Package httpapi exposes the engine over JSON HTTP routes for the
// campusauthd service.
package httpapi
