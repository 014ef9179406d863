// Package password implements the one-way hashing comparator.
//
// # Output format
//
// Argon2id hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and hash use unpadded standard base64. Stored hashes whose parameters
// fall below the accepted floor are treated as malformed.
//
// Bcrypt hashes use the standard modular crypt format ($2a$/$2b$). A [Chain]
// hashes with one algorithm and verifies against any configured algorithm, so
// stores migrated from bcrypt keep working while new hashes use argon2id.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// length) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other campusauth package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
