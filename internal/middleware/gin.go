package middleware

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"sessiongate/internal/logger"
	"sessiongate/internal/metrics"
)

// Gin adapts a net/http middleware to Gin. The rest of the Gin chain runs
// inside the wrapped handler, so request context changes made by the
// middleware are visible downstream. A middleware that answers without
// calling next aborts the chain.
func Gin(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		called := false

		// Bridge handler to allow net/http middleware execution
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			c.Request = r
			c.Next()
		})

		mw(next).ServeHTTP(c.Writer, c.Request)

		if !called {
			c.Abort()
		}
	}
}

func GinSession(s *SessionMiddleware) gin.HandlerFunc {
	return Gin(s.Handler)
}

func GinRequireAuth() gin.HandlerFunc {
	return Gin(RequireAuth)
}

// GinRecovery is Recovery for Gin, built on gin.CustomRecoveryWithWriter.
// Gin's own panic dump goes to its error writer only in development; the
// answer is always the fixed 500 envelope unless the response has started.
func GinRecovery(m *metrics.Metrics) gin.HandlerFunc {
	if m == nil {
		m = metrics.NewNop()
	}
	return gin.CustomRecoveryWithWriter(recoveryOutput(), func(c *gin.Context, rec any) {
		handlePanic(c.Writer, c.Request, rec, m)
		c.Abort()
	})
}

func recoveryOutput() io.Writer {
	if logger.Development() {
		return gin.DefaultErrorWriter
	}
	return io.Discard
}
