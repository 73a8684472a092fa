package app

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sessiongate/internal/middleware"
	"sessiongate/internal/response"
)

// newAPIRouter builds the JSON API surface.
func newAPIRouter(c *core) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.GinRecovery(c.metrics),
		middleware.Gin(c.gate),
		middleware.GinSession(c.sessions),
	)

	// ----------------------------
	// Auth surface
	// ----------------------------

	base := strings.TrimRight(c.cfg.Auth.BasePath, "/")
	router.Any(base+"/*path", gin.WrapH(c.authRouter))

	// ----------------------------
	// Public routes
	// ----------------------------

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(c.metrics.Handler()))

	// ----------------------------
	// Protected routes
	// ----------------------------

	api := router.Group("/api")
	api.Use(middleware.GinRequireAuth())

	api.GET("/me", func(ctx *gin.Context) {
		rc := middleware.FromContext(ctx.Request.Context())
		response.OK(ctx.Writer, gin.H{
			"user":    rc.User,
			"session": gin.H{"expiresAt": rc.Session.ExpiresAt},
		})
	})

	router.NoRoute(func(ctx *gin.Context) {
		response.Fail(ctx.Writer, response.KindNotFound)
	})

	return router
}
