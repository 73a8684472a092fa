package session

import (
	"fmt"

	"sessiongate/internal/utils"
)

// tokenBytes = 256 bits of entropy.
const tokenBytes = 32

// GenerateToken generates a cryptographically secure session token.
func GenerateToken() (string, error) {
	token, err := utils.RandomString(tokenBytes)
	if err != nil {
		return "", fmt.Errorf("session: failed to generate token: %w", err)
	}
	return token, nil
}
