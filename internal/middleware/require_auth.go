package middleware

import (
	"net/http"

	"sessiongate/internal/response"
)

// RequireAuth rejects requests the session middleware did not authenticate.
// It only inspects the request context.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !FromContext(r.Context()).Authenticated() {
			response.Fail(w, response.KindUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
