package auth

import (
	"context"
	"net/http"

	"sessiongate/internal/session"
	"sessiongate/internal/user"
)

// Result is a resolved, valid session together with its owner.
type Result struct {
	User    user.PublicUser
	Session session.Session

	// Refreshed is set when the lookup extended the session's expiry.
	Refreshed bool
}

// SessionLookup resolves the credential carried by a request. It returns
// (nil, nil) when the request carries no session and an error when the
// lookup itself failed; callers decide how to surface each.
type SessionLookup interface {
	GetSession(ctx context.Context, r *http.Request) (*Result, error)
}

// Verifier is the credential verifier capability shared by every surface:
// session lookup plus the raw handler that owns sign-up, sign-in, sign-out
// and session issuance. Its responses use its own format, not the local
// envelope.
type Verifier interface {
	SessionLookup
	http.Handler
}
