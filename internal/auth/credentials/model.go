package credentials

import (
	"time"

	"sessiongate/internal/session"
	"sessiongate/internal/user"
)

// SessionView is the session as the verifier reports it to clients. The
// token stays in the cookie and the bearer value, never in a body field.
type SessionView struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

func ViewOf(s session.Session) SessionView {
	return SessionView{
		UserID:    s.UserID,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
	}
}

// Issued is a freshly created session and the signed credential that
// carries it.
type Issued struct {
	Session session.Session
	Signed  string
	User    user.PublicUser
}
