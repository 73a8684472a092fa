// Package authroute is the auth surface router mounted at the auth base path
// of every serving surface. It answers /status locally, passes /get-session
// straight to the credential verifier, and sends everything else to the
// verifier through the rate-limit gate.
package authroute

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"sessiongate/internal/metrics"
	"sessiongate/internal/middleware"
	"sessiongate/internal/ratelimit"
	"sessiongate/internal/response"
	"sessiongate/internal/user"
)

type Options struct {
	BasePath string

	// Verifier is the credential verifier's raw handler. Requests reach it
	// with their full path and unmodified bodies.
	Verifier http.Handler

	Limiter ratelimit.Limiter
	Metrics *metrics.Metrics

	General ratelimit.Rule
	SignIn  ratelimit.Rule
}

// New builds the router. It routes on the full request path, so it can sit
// behind gin.WrapH or inside a chi router without path rewriting.
//
// With a Limiter set, delegated routes pass the rate-limit gate inside the
// router. A surface that applies Gate ahead of its session middleware leaves
// Limiter nil so requests are counted once.
func New(opts Options) http.Handler {
	base := strings.TrimRight(opts.BasePath, "/")

	r := chi.NewRouter()

	notFound := func(w http.ResponseWriter, _ *http.Request) {
		response.Fail(w, response.KindNotFound)
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Get(base+"/status", status)
	r.Get(base+"/get-session", opts.Verifier.ServeHTTP)

	delegate := opts.Verifier
	if opts.Limiter != nil {
		delegate = Gate(opts)(delegate)
	}
	r.Handle(base+"/*", delegate)

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// drop any routing state from an enclosing chi router
		ctx := context.WithValue(req.Context(), chi.RouteCtxKey, (*chi.Context)(nil))
		r.ServeHTTP(w, req.WithContext(ctx))
	})
}

// Gate is the rate-limit middleware for the auth routes. It only counts
// requests that New would delegate, so it may wrap a whole surface.
func Gate(opts Options) func(http.Handler) http.Handler {
	base := strings.TrimRight(opts.BasePath, "/")
	return middleware.RateLimit(opts.Limiter, opts.Metrics, Rules(base, opts.General, opts.SignIn))
}

// Rules picks the throttling rules for a delegated request: the general rule
// for all of them, plus the sign-in rule beneath /sign-in/. Read-only routes,
// paths outside base and preflight requests are not counted.
func Rules(base string, general, signIn ratelimit.Rule) middleware.RuleFunc {
	prefix := base + "/"
	signInPrefix := base + "/sign-in/"
	open := map[string]bool{
		base + "/status":      true,
		base + "/get-session": true,
	}

	return func(r *http.Request) []ratelimit.Rule {
		path := r.URL.Path
		if r.Method == http.MethodOptions || open[path] || !strings.HasPrefix(path, prefix) {
			return nil
		}
		if strings.HasPrefix(path, signInPrefix) {
			return []ratelimit.Rule{general, signIn}
		}
		return []ratelimit.Rule{general}
	}
}

type sessionInfo struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

type statusData struct {
	Authenticated bool             `json:"authenticated"`
	User          *user.PublicUser `json:"user"`
	Session       *sessionInfo     `json:"session"`
}

func status(w http.ResponseWriter, r *http.Request) {
	rc := middleware.FromContext(r.Context())

	data := statusData{}
	if rc.Authenticated() {
		data.Authenticated = true
		data.User = rc.User
		data.Session = &sessionInfo{ExpiresAt: rc.Session.ExpiresAt}
	}

	response.OK(w, data)
}
