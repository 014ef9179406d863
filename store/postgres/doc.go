// Package postgres is the gorm-backed campusauth.UserProvider. The schema
// lives in embedded goose migrations applied by [RunMigrations].
//
// Counter, backup-code, session and expiration writes are single
// conditional statements so concurrent engine instances cannot lose updates.
package postgres
