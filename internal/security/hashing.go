package security

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int

	dummyOnce sync.Once
	dummy     string
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to bcrypt's 4–31 range.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt hash of password suitable for storage.
func (h *Hasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies password against the stored hash. Returns nil if they match;
// bcrypt.ErrMismatchedHashAndPassword or a parse error otherwise.
func (h *Hasher) Compare(hash string, password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}

// CompareDummy runs a bcrypt comparison against a fixed hash of the same cost and always
// fails. Used when no user matches so the response time does not reveal whether the
// username exists.
func (h *Hasher) CompareDummy(password []byte) error {
	h.dummyOnce.Do(func() {
		b, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), h.Cost)
		if err == nil {
			h.dummy = string(b)
		}
	})
	if h.dummy != "" {
		_ = bcrypt.CompareHashAndPassword([]byte(h.dummy), password)
	}
	return bcrypt.ErrMismatchedHashAndPassword
}
