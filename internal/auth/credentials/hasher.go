package credentials

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	HashVersionBcrypt = "bcrypt"

	MinPasswordLength = 8
	// bcrypt ignores input beyond 72 bytes.
	MaxPasswordLength = 72
)

var ErrWeakPassword = errors.New("credentials: password must be 8 to 72 characters")

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string, cost int) (hash string, version string, err error) {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return "", "", ErrWeakPassword
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", "", err
	}

	return string(bytes), HashVersionBcrypt, nil
}

// VerifyPassword compares plaintext password with stored hash.
func VerifyPassword(hash string, password string) error {
	return bcrypt.CompareHashAndPassword(
		[]byte(hash),
		[]byte(password),
	)
}
