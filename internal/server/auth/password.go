// Package auth implements the credential primitives of the server:
// one-way password hashing (bcrypt) and the signed access/refresh token
// codec (HS256 JWTs with a purpose tag).
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/cliptube/cliptube/internal/common"
)

// PasswordHasher produces and verifies salted bcrypt digests.
// The zero cost value falls back to bcrypt.DefaultCost.
type PasswordHasher struct {
	cost int
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash returns a fresh salted digest of plaintext. Two calls with the same
// input produce different digests; Verify still matches both.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrHashing, err)
	}
	return string(digest), nil
}

// Verify reports whether digest was produced from plaintext. A mismatch is
// (false, nil); only a digest that bcrypt cannot parse yields an error.
func (h *PasswordHasher) Verify(plaintext, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", common.ErrHashing, err)
}
