package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Password length bounds in bytes. bcrypt ignores everything past 72 bytes,
// so longer passwords are rejected instead of silently truncated.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 72
)

// defaultCost is the bcrypt work factor. Each +1 doubles hashing time.
const defaultCost = 12

var (
	// ErrPasswordMismatch is returned by Verify for a wrong password.
	ErrPasswordMismatch = errors.New("auth: invalid password")
	// ErrPasswordLength is returned by Hash for a password outside the bounds.
	ErrPasswordLength = errors.New("auth: password length out of range")
)

// PasswordService hashes and verifies passwords with bcrypt.
type PasswordService struct {
	cost int
}

// NewPasswordService uses the production cost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest uses a caller-chosen cost, typically
// bcrypt.MinCost, so tests that hash many passwords stay fast.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt hash of plaintext. The salt is random, so the same
// password hashes differently every time.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) < MinPasswordLength || len(plaintext) > MaxPasswordLength {
		return "", fmt.Errorf("%w: must be %d to %d bytes", ErrPasswordLength, MinPasswordLength, MaxPasswordLength)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify compares plaintext against hash in constant time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
