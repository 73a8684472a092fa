package session

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	CookieName       = "session_token"
	SecureCookieName = "__Host-session_token"
)

var ErrNoCredential = errors.New("session: no credential")

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Path     string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
	Domain   string // must be empty for __Host- cookies
}

// Name returns the cookie name for these options.
func (o CookieOptions) Name() string {
	if o.Secure {
		return SecureCookieName
	}
	return CookieName
}

// normalize applies safe defaults without breaking callers
func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/" // required for __Host-
	}
	if !o.HttpOnly {
		o.HttpOnly = true
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	if o.Secure {
		o.Domain = ""
	}
	return o
}

// SetCookie issues the signed session cookie to the client.
func SetCookie(
	w http.ResponseWriter,
	value string,
	expiresAt time.Time,
	opts CookieOptions,
) {
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name(),
		Value:    value,
		Path:     opts.Path,
		Domain:   opts.Domain,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// ClearCookie removes the session cookie from the client.
func ClearCookie(
	w http.ResponseWriter,
	opts CookieOptions,
) {
	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name(),
		Value:    "",
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}

// RawCredential returns the signed credential carried by r, preferring the
// session cookie over an Authorization bearer token.
func RawCredential(r *http.Request, opts CookieOptions) (string, error) {
	if c, err := r.Cookie(opts.Name()); err == nil && c.Value != "" {
		return c.Value, nil
	}

	const bearer = "Bearer "
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearer) {
		if v := strings.TrimSpace(h[len(bearer):]); v != "" {
			return v, nil
		}
	}

	return "", ErrNoCredential
}
