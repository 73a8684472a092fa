package middleware

import (
	"net/http"

	"sessiongate/internal/auth"
	"sessiongate/internal/logger"
	"sessiongate/internal/metrics"
)

// Outcome classifies one session resolution.
type Outcome string

const (
	OutcomeAuthenticated Outcome = "authenticated"
	OutcomeAnonymous     Outcome = "anonymous"
	// OutcomeFailed is reported to clients exactly like OutcomeAnonymous.
	OutcomeFailed Outcome = "failed"
)

// RefreshFunc re-issues the credential after a sliding refresh.
type RefreshFunc func(w http.ResponseWriter, res *auth.Result)

type SessionMiddleware struct {
	lookup  auth.SessionLookup
	metrics *metrics.Metrics
	refresh RefreshFunc
}

type SessionOption func(*SessionMiddleware)

// WithRefresh makes the middleware re-issue the cookie whenever a lookup
// extended the session.
func WithRefresh(fn RefreshFunc) SessionOption {
	return func(s *SessionMiddleware) { s.refresh = fn }
}

func NewSessionMiddleware(lookup auth.SessionLookup, m *metrics.Metrics, opts ...SessionOption) *SessionMiddleware {
	if m == nil {
		m = metrics.NewNop()
	}
	s := &SessionMiddleware{lookup: lookup, metrics: m}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve looks up the session for r. It never fails: a lookup error yields
// an anonymous RequestContext and OutcomeFailed.
func (s *SessionMiddleware) Resolve(w http.ResponseWriter, r *http.Request) (RequestContext, Outcome) {
	res, err := s.lookup.GetSession(r.Context(), r)
	if err != nil {
		logger.Warn("session lookup failed", map[string]any{
			"path":  r.URL.Path,
			"error": logger.ErrorDetail(err),
		})
		s.metrics.SessionLookups.WithLabelValues(string(OutcomeFailed)).Inc()
		return RequestContext{}, OutcomeFailed
	}

	if res == nil {
		s.metrics.SessionLookups.WithLabelValues(string(OutcomeAnonymous)).Inc()
		return RequestContext{}, OutcomeAnonymous
	}

	if res.Refreshed && s.refresh != nil && w != nil {
		s.refresh(w, res)
	}

	u, sess := res.User, res.Session
	s.metrics.SessionLookups.WithLabelValues(string(OutcomeAuthenticated)).Inc()
	return RequestContext{User: &u, Session: &sess}, OutcomeAuthenticated
}

// Handler attaches the RequestContext and always continues the chain.
func (s *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, _ := s.Resolve(w, r)
		next.ServeHTTP(w, r.WithContext(WithRequestContext(r.Context(), rc)))
	})
}
