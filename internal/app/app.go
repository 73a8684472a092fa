package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sessiongate/internal/config"
	"sessiongate/internal/session"
	"sessiongate/internal/user"
)

// Surface names a request-serving process.
type Surface string

const (
	SurfaceAPI Surface = "api"
	SurfaceWeb Surface = "web"
)

type App struct {
	httpServer *http.Server
	cancel     context.CancelFunc
	cleanup    func() error
}

// New connects to the shared stores and builds the server for surface. cfg
// must already be validated.
func New(ctx context.Context, cfg config.Config, surface Surface) (*App, error) {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, err
	}

	providers, err := newProviders(ctx, cfg)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}

	bgCtx, cancel := context.WithCancel(context.Background())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := newCore(cfg, deps{
		users:     user.NewRepository(infra.DB.DB),
		sessions:  session.NewRedisStore(infra.Redis.Client),
		limiter:   newLimiter(bgCtx, cfg, infra.Redis),
		providers: providers,
		registry:  registry,
		surface:   string(surface),
	})

	var (
		handler http.Handler
		port    string
	)
	switch surface {
	case SurfaceAPI:
		handler, port = newAPIRouter(c), cfg.APIPort
	case SurfaceWeb:
		handler, port = newWebRouter(c), cfg.WebPort
	default:
		cancel()
		_ = infra.Close()
		return nil, fmt.Errorf("app: unknown surface %q", surface)
	}

	return &App{
		httpServer: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		cancel:  cancel,
		cleanup: infra.Close,
	}, nil
}

// Addr is the listen address.
func (a *App) Addr() string {
	return a.httpServer.Addr
}

// Run serves until Shutdown. It returns nil after a graceful shutdown.
func (a *App) Run() error {
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	defer a.cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if a.cleanup != nil {
		return a.cleanup()
	}
	return nil
}
