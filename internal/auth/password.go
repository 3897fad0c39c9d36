package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost keeps registration latency tolerable on commodity hardware.
const bcryptCost = 10

// HashPassword produces the bcrypt digest stored on the user record at
// registration. Plaintext passwords never reach the store.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword checks a login attempt against the stored digest. A
// non-nil error means the credentials do not match; Login maps it to
// ErrInvalidCredentials without further detail.
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
