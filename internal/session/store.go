package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session: not found")
	ErrInvalid  = errors.New("session: invalid")
)

// Session represents an authenticated user session.
// It intentionally stores only identity pointers, not auth state.
type Session struct {
	Token     string    `json:"token"`     // opaque, unguessable identifier
	UserID    string    `json:"userId"`    // references users.id
	ExpiresAt time.Time `json:"expiresAt"` // absolute expiry time
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// Valid reports whether the session has not yet expired at now.
func (s Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// NeedsRefresh reports whether a sliding extension is due: updateAge has
// elapsed since the last extension.
func (s Session) NeedsRefresh(now time.Time, updateAge time.Duration) bool {
	return !now.Before(s.UpdatedAt.Add(updateAge))
}

// Refreshed returns a copy whose lifetime restarts at now.
func (s Session) Refreshed(now time.Time, expiresIn time.Duration) Session {
	s.ExpiresAt = now.Add(expiresIn)
	s.UpdatedAt = now
	return s
}

// Store defines how sessions are stored and retrieved. Every serving surface
// shares one Store. Get returns ErrNotFound for unknown or expired tokens.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, token string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, token string) error
}
