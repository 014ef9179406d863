package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

// Lower bounds accepted both for new hashes and for stored ones.
var argon2Floor = Config{
	Memory:      8 * 1024,
	Time:        1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   16,
}

// b64 is the unpadded alphabet PHC strings use.
var b64 = base64.RawStdEncoding

// Config holds argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c Config) check() error {
	switch {
	case c.Memory < argon2Floor.Memory:
		return fmt.Errorf("argon2 memory must be >= %d KiB", argon2Floor.Memory)
	case c.Time < argon2Floor.Time:
		return errors.New("argon2 time must be >= 1")
	case c.Parallelism < argon2Floor.Parallelism:
		return errors.New("argon2 parallelism must be >= 1")
	case c.SaltLength < argon2Floor.SaltLength:
		return fmt.Errorf("argon2 salt length must be >= %d", argon2Floor.SaltLength)
	case c.KeyLength < argon2Floor.KeyLength:
		return fmt.Errorf("argon2 key length must be >= %d", argon2Floor.KeyLength)
	}
	return nil
}

// Argon2 is the default Algorithm. Hashes are PHC strings:
// $argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>.
type Argon2 struct {
	params Config
}

func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &Argon2{params: cfg}, nil
}

// Hash refuses only the empty string. Length rules belong to the caller.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, a.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2 salt: %w", err)
	}
	key := derive(password, salt, a.params)
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version,
		a.params.Memory, a.params.Time, a.params.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	stored, salt, key, err := decodeArgon2(encodedHash)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(derive(password, salt, stored), key) == 1, nil
}

// NeedsUpgrade is true when any cost in encodedHash is below a's, or the key
// length differs.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	stored, _, _, err := decodeArgon2(encodedHash)
	if err != nil {
		return false, err
	}
	weaker := stored.Memory < a.params.Memory ||
		stored.Time < a.params.Time ||
		stored.Parallelism < a.params.Parallelism
	return weaker || stored.KeyLength != a.params.KeyLength, nil
}

func (a *Argon2) Handles(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, argon2Prefix)
}

func derive(password string, salt []byte, p Config) []byte {
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, p.KeyLength)
}

// decodeArgon2 splits a PHC string into its parameters, salt and key. Every
// failure wraps ErrMalformedHash.
func decodeArgon2(encoded string) (Config, []byte, []byte, error) {
	var p Config
	fields := strings.Split(strings.TrimPrefix(encoded, argon2Prefix), "$")
	if !strings.HasPrefix(encoded, argon2Prefix) || len(fields) != 4 {
		return p, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("%w: version", ErrMalformedHash)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: argon2 version %d", ErrMalformedHash, version)
	}

	// Sscanf ignores trailing input, so the fields must also round-trip.
	n, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Parallelism)
	if err != nil || n != 3 || fmt.Sprintf("m=%d,t=%d,p=%d", p.Memory, p.Time, p.Parallelism) != fields[1] {
		return p, nil, nil, fmt.Errorf("%w: parameters", ErrMalformedHash)
	}

	salt, err := b64.DecodeString(fields[2])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	key, err := b64.DecodeString(fields[3])
	if err != nil || len(key) == 0 {
		return p, nil, nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))

	if err := p.check(); err != nil {
		return p, nil, nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	return p, salt, key, nil
}
