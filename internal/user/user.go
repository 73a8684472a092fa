package user

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("user: not found")
	ErrEmailTaken    = errors.New("user: email already registered")
	ErrInvalidRecord = errors.New("user: invalid record")
)

// User is the internal record. PasswordHash never leaves the process; every
// response that embeds a user must go through Public.
type User struct {
	ID            string
	Email         string
	Name          string
	EmailVerified bool
	Image         *string
	PasswordHash  string `json:"-"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PublicUser is the allow-listed projection safe to return to clients.
type PublicUser struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	Name          string  `json:"name"`
	EmailVerified bool    `json:"emailVerified"`
	Image         *string `json:"image"`
}

// Public copies only the allow-listed fields.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		Image:         u.Image,
	}
}
