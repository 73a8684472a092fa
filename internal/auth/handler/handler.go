// Package handler is the credential verifier's raw HTTP surface. It owns
// sign-up, sign-in, sign-out, session lookup and social sign-in, and answers
// in the verifier's own {code, message} error format.
package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"sessiongate/internal/auth"
	"sessiongate/internal/auth/credentials"
	"sessiongate/internal/auth/provider"
	"sessiongate/internal/auth/resolver"
	"sessiongate/internal/logger"
)

type Config struct {
	// BasePath is the mount point; routes are registered beneath it and
	// requests are expected to arrive with their full path.
	BasePath string
	// BaseURL is where browsers land after social sign-in. Its origin is
	// always trusted.
	BaseURL        string
	TrustedOrigins []string
}

type Handler struct {
	service   *credentials.Service
	providers *provider.Registry
	resolver  resolver.Resolver
	cfg       Config
	origins   map[string]struct{}
	engine    *gin.Engine
}

var _ auth.Verifier = (*Handler)(nil)

// NewHandler builds the verifier. providers and resolver may be nil when
// social sign-in is not configured.
func NewHandler(
	service *credentials.Service,
	registry *provider.Registry,
	resolver resolver.Resolver,
	cfg Config,
) *Handler {
	h := &Handler{
		service:   service,
		providers: registry,
		resolver:  resolver,
		cfg:       cfg,
		origins:   trustedOrigins(cfg),
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = false
	engine.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "NOT_FOUND", "Not found")
	})

	g := engine.Group(strings.TrimRight(cfg.BasePath, "/"))
	g.Use(h.checkOrigin)

	g.POST("/sign-up/email", h.signUp)
	g.POST("/sign-in/email", h.signIn)
	g.POST("/sign-out", h.signOut)
	g.GET("/get-session", h.getSession)
	g.GET("/sign-in/social/:provider", h.socialLogin)
	g.GET("/callback/:provider", h.callback)

	for _, route := range engine.Routes() {
		logger.Debug("verifier route", map[string]any{
			"method": route.Method,
			"path":   route.Path,
		})
	}

	h.engine = engine
	return h
}

// ServeHTTP serves the raw verifier routes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.engine.ServeHTTP(w, r)
}

// GetSession resolves the session carried by r.
func (h *Handler) GetSession(ctx context.Context, r *http.Request) (*auth.Result, error) {
	return h.service.GetSession(ctx, r)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorBody{Code: code, Message: message})
}

// checkOrigin rejects cross-site state changes. Requests without an Origin
// header come from non-browser clients and pass.
func (h *Handler) checkOrigin(c *gin.Context) {
	if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
		c.Next()
		return
	}

	origin := c.GetHeader("Origin")
	if origin == "" {
		c.Next()
		return
	}

	if _, ok := h.origins[strings.TrimRight(origin, "/")]; !ok {
		logger.Warn("untrusted origin rejected", map[string]any{
			"origin": origin,
			"path":   c.Request.URL.Path,
		})
		fail(c, http.StatusForbidden, "INVALID_ORIGIN", "Invalid origin")
		return
	}

	c.Next()
}

func trustedOrigins(cfg Config) map[string]struct{} {
	set := make(map[string]struct{}, len(cfg.TrustedOrigins)+1)
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		set[u.Scheme+"://"+u.Host] = struct{}{}
	}
	for _, o := range cfg.TrustedOrigins {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return set
}
