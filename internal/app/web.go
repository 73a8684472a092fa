package app

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"sessiongate/internal/logger"
	"sessiongate/internal/middleware"
	"sessiongate/internal/response"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
{{if .User}}<p>Signed in as {{.User.Email}}</p>{{else}}<p>Not signed in</p>{{end}}
</body>
</html>
`))

type pageData struct {
	Title string
	User  any
}

// newWebRouter builds the server-rendered surface. It shares the auth router
// and session middleware with the API surface, so one cookie serves both.
func newWebRouter(c *core) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(c.metrics))
	r.Use(c.gate)
	r.Use(c.sessions.Handler)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Fail(w, response.KindNotFound)
	})

	r.Mount(strings.TrimRight(c.cfg.Auth.BasePath, "/"), c.authRouter)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", c.metrics.Handler())

	r.Get("/", renderPage("Home"))
	r.With(middleware.RequireAuth).Get("/dashboard", renderPage("Dashboard"))

	return r
}

func renderPage(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := pageData{Title: title}
		if rc := middleware.FromContext(r.Context()); rc.Authenticated() {
			data.User = rc.User
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := pageTemplate.Execute(w, data); err != nil {
			logger.Error("page render failed", map[string]any{
				"page":  title,
				"error": logger.ErrorDetail(err),
			})
		}
	}
}
