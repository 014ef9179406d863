// Package memory is a mutex-guarded campusauth.UserProvider for development
// mode and tests. Records are lost when the process exits.
package memory
