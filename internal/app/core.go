package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sessiongate/internal/auth/credentials"
	"sessiongate/internal/auth/handler"
	"sessiongate/internal/auth/provider"
	"sessiongate/internal/auth/provider/oidc"
	"sessiongate/internal/auth/resolver"
	"sessiongate/internal/authroute"
	"sessiongate/internal/config"
	"sessiongate/internal/logger"
	"sessiongate/internal/metrics"
	"sessiongate/internal/middleware"
	"sessiongate/internal/ratelimit"
	"sessiongate/internal/redis"
	"sessiongate/internal/session"
)

const sweepInterval = time.Minute

// userStore is everything the verifier and the identity resolver need from
// the user repository.
type userStore interface {
	credentials.Users
	resolver.Users
}

type deps struct {
	users     userStore
	sessions  session.Store
	limiter   ratelimit.Limiter
	providers []provider.OAuthProvider
	registry  *prometheus.Registry
	surface   string
}

// core is the part every surface shares: one verifier, one session
// middleware and one auth router built from the same configuration.
type core struct {
	cfg        config.Config
	metrics    *metrics.Metrics
	verifier   *handler.Handler
	gate       func(http.Handler) http.Handler
	sessions   *middleware.SessionMiddleware
	authRouter http.Handler
}

func newCore(cfg config.Config, d deps) *core {
	m := metrics.New(d.registry, d.surface)

	svc := credentials.NewService(
		d.users,
		d.sessions,
		session.NewSigner(cfg.Auth.Secret),
		credentials.Options{
			ExpiresIn: cfg.Auth.ExpiresIn,
			UpdateAge: cfg.Auth.UpdateAge,
			Cookie: session.CookieOptions{
				Secure:   cfg.Auth.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			},
		},
	)

	verifier := handler.NewHandler(
		svc,
		provider.NewRegistry(d.providers...),
		resolver.NewUserResolver(d.users),
		handler.Config{
			BasePath:       cfg.Auth.BasePath,
			BaseURL:        cfg.Auth.BaseURL,
			TrustedOrigins: cfg.Auth.TrustedOrigins,
		},
	)

	routeOpts := authroute.Options{
		BasePath: cfg.Auth.BasePath,
		Verifier: verifier,
		Limiter:  d.limiter,
		Metrics:  m,
		General: ratelimit.Rule{
			Name:   "general",
			Limit:  cfg.RateLimit.GeneralMax,
			Window: cfg.RateLimit.GeneralWindow,
		},
		SignIn: ratelimit.Rule{
			Name:   "sign-in",
			Limit:  cfg.RateLimit.SignInMax,
			Window: cfg.RateLimit.SignInWindow,
		},
	}
	gate := authroute.Gate(routeOpts)

	// the surfaces run the gate ahead of session resolution
	routeOpts.Limiter = nil

	return &core{
		cfg:        cfg,
		metrics:    m,
		verifier:   verifier,
		gate:       gate,
		sessions:   middleware.NewSessionMiddleware(verifier, m, middleware.WithRefresh(verifier.RefreshCookie)),
		authRouter: authroute.New(routeOpts),
	}
}

// newLimiter builds the configured backend. The memory backend's sweeper
// runs until ctx is done.
func newLimiter(ctx context.Context, cfg config.Config, client *redis.Client) ratelimit.Limiter {
	if cfg.RateLimit.Backend == config.RateLimitRedis {
		logger.Info("rate limiter backend", map[string]any{"backend": "redis"})
		return ratelimit.NewRedis(client.Client, "")
	}

	mem := ratelimit.NewMemory()
	go mem.RunSweeper(ctx, sweepInterval)
	logger.Info("rate limiter backend", map[string]any{"backend": "memory"})
	return mem
}

func newProviders(ctx context.Context, cfg config.Config) ([]provider.OAuthProvider, error) {
	base := strings.TrimRight(cfg.Auth.BaseURL, "/") + strings.TrimRight(cfg.Auth.BasePath, "/")

	var out []provider.OAuthProvider
	for _, pc := range cfg.Providers {
		p, err := oidc.New(ctx, oidc.Config{
			Name:          pc.Name,
			Issuer:        pc.Issuer,
			ClientID:      pc.ClientID,
			ClientSecret:  pc.ClientSecret,
			RedirectURL:   base + "/callback/" + pc.Name,
			PublicAuthURL: pc.PublicAuthURL,
		})
		if err != nil {
			return nil, fmt.Errorf("app: provider %s: %w", pc.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}
