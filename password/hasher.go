package password

import "errors"

var (
	// ErrEmptyPassword is returned when asked to hash an empty string.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Algorithm is a single hashing scheme.
type Algorithm interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
	Handles(encodedHash string) bool
}

// Chain hashes with its primary algorithm and verifies with whichever
// algorithm recognizes the stored hash.
type Chain struct {
	primary Algorithm
	legacy  []Algorithm
}

// NewChain builds a Chain. legacy algorithms are only used for verification.
func NewChain(primary Algorithm, legacy ...Algorithm) *Chain {
	return &Chain{primary: primary, legacy: legacy}
}

func (c *Chain) Hash(password string) (string, error) {
	return c.primary.Hash(password)
}

func (c *Chain) Verify(password, encodedHash string) (bool, error) {
	if alg := c.match(encodedHash); alg != nil {
		return alg.Verify(password, encodedHash)
	}
	return false, ErrMalformedHash
}

// NeedsUpgrade is true for hashes from a legacy algorithm or weaker primary parameters.
func (c *Chain) NeedsUpgrade(encodedHash string) (bool, error) {
	alg := c.match(encodedHash)
	if alg == nil {
		return false, ErrMalformedHash
	}
	if alg != c.primary {
		return true, nil
	}
	return alg.NeedsUpgrade(encodedHash)
}

func (c *Chain) match(encodedHash string) Algorithm {
	if c.primary.Handles(encodedHash) {
		return c.primary
	}
	for _, alg := range c.legacy {
		if alg.Handles(encodedHash) {
			return alg
		}
	}
	return nil
}
