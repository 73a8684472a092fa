package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"sessiongate/internal/clientip"
	"sessiongate/internal/logger"
	"sessiongate/internal/metrics"
	"sessiongate/internal/ratelimit"
	"sessiongate/internal/response"
)

// RuleFunc selects the rules that apply to a request. An empty result lets
// the request through uncounted.
type RuleFunc func(r *http.Request) []ratelimit.Rule

// RateLimit throttles requests per client under the rules chosen for each
// request. If the limiter cannot decide, the request is admitted.
func RateLimit(l ratelimit.Limiter, m *metrics.Metrics, rules RuleFunc) func(http.Handler) http.Handler {
	if m == nil {
		m = metrics.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			applied := rules(r)
			if len(applied) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			client := clientip.Resolve(r)

			d, err := ratelimit.AdmitAll(r.Context(), l, client, applied...)
			if err != nil {
				label := ruleNames(applied)
				logger.Error("rate limiter unavailable, admitting request", map[string]any{
					"rules": label,
					"path":  r.URL.Path,
					"error": logger.ErrorDetail(err),
				})
				m.RateLimitErrors.WithLabelValues(label).Inc()
				next.ServeHTTP(w, r)
				return
			}

			if !d.Allowed {
				m.RateLimitDecisions.WithLabelValues(d.Rule, "rejected").Inc()
				logger.Warn("rate limit exceeded", map[string]any{
					"rule":   d.Rule,
					"client": client,
					"path":   r.URL.Path,
				})
				response.TooManyRequests(w, d.RetryAfter, d.Limit)
				return
			}

			for _, rule := range applied {
				m.RateLimitDecisions.WithLabelValues(rule.Name, "allowed").Inc()
			}
			if d.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ruleNames(rules []ratelimit.Rule) string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return strings.Join(names, "+")
}
