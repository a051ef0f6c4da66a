package auth

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLen = 72

	passwordSymbols = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?`~"
)

// ValidateStrength checks password against the strength policy and returns the first violated rule.
func ValidateStrength(password string) (bool, string) {
	if len(password) < minPasswordLen {
		return false, "password must be at least 8 characters long"
	}
	if !strings.ContainsFunc(password, unicode.IsUpper) {
		return false, "password must contain at least one uppercase letter"
	}
	if !strings.ContainsFunc(password, unicode.IsLower) {
		return false, "password must contain at least one lowercase letter"
	}
	if !strings.ContainsFunc(password, unicode.IsDigit) {
		return false, "password must contain at least one number"
	}
	if !strings.ContainsAny(password, passwordSymbols) {
		return false, "password must contain at least one symbol"
	}
	if len(password) > maxPasswordLen {
		return false, "password must be at most 72 bytes long"
	}
	return true, ""
}

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword reports whether password matches the stored hash.
func VerifyPassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}

// Hasher binds a bcrypt cost and keeps a dummy hash for unknown-account comparisons.
type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummy     string
}

// NewHasher builds a hasher. Costs outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash hashes password.
func (h *Hasher) Hash(password string) (string, error) {
	return HashPassword(password, h.cost)
}

// Verify compares password with hashed.
func (h *Hasher) Verify(hashed, password string) bool {
	return VerifyPassword(hashed, password)
}

// VerifyDummy burns one comparison at the configured cost and always reports false.
func (h *Hasher) VerifyDummy(password string) bool {
	h.dummyOnce.Do(func() {
		h.dummy, _ = HashPassword("dummy-password-for-timing", h.cost)
	})
	VerifyPassword(h.dummy, password)
	return false
}
