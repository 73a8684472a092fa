package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"sessiongate/internal/logger"
	"sessiongate/internal/metrics"
	"sessiongate/internal/response"
)

// Recovery is the outermost boundary. A panic becomes a generic 500; its
// value and stack reach the logs only in development.
func Recovery(m *metrics.Metrics) func(http.Handler) http.Handler {
	if m == nil {
		m = metrics.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &trackingWriter{ResponseWriter: w}
			defer func() {
				if rec := recover(); rec != nil {
					handlePanic(tw, r, rec, m)
				}
			}()
			next.ServeHTTP(tw, r)
		})
	}
}

func handlePanic(w http.ResponseWriter, r *http.Request, rec any, m *metrics.Metrics) {
	if rec == http.ErrAbortHandler {
		panic(rec)
	}

	m.HandlerPanics.Inc()

	fields := map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
	}
	if logger.Development() {
		fields["panic"] = fmt.Sprint(rec)
		fields["stack"] = string(debug.Stack())
	}
	logger.Error("panic recovered", fields)

	if written(w) {
		return
	}
	response.Fail(w, response.KindInternal)
}

type writtenReporter interface {
	Written() bool
}

func written(w http.ResponseWriter) bool {
	if wr, ok := w.(writtenReporter); ok {
		return wr.Written()
	}
	return false
}

type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (t *trackingWriter) WriteHeader(status int) {
	t.wrote = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(b)
}

func (t *trackingWriter) Written() bool { return t.wrote }

func (t *trackingWriter) Unwrap() http.ResponseWriter { return t.ResponseWriter }
