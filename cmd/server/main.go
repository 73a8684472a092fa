package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sessiongate/internal/app"
	"sessiongate/internal/config"
	"sessiongate/internal/db"
	"sessiongate/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error("command failed", map[string]any{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sessiongate",
		Short:         "Session authentication and rate limiting for the api and web surfaces",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		serveCmd(app.SurfaceAPI, "Serve the JSON API surface"),
		serveCmd(app.SurfaceWeb, "Serve the server-rendered web surface"),
		migrateCmd(),
	)

	return root
}

// loadConfig stops the process on any configuration problem.
func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", map[string]any{
			"error": err.Error(),
		})
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", map[string]any{
			"error": err.Error(),
		})
	}

	logger.Init(cfg.IsDevelopment())
	return cfg
}

func serveCmd(surface app.Surface, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(surface),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), surface)
		},
	}
}

func serve(parent context.Context, surface app.Surface) error {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(
		parent,
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	application, err := app.New(ctx, cfg, surface)
	if err != nil {
		logger.Fatal("failed to initialize app", map[string]any{
			"surface": surface,
			"error":   err.Error(),
		})
	}

	go func() {
		if err := application.Run(); err != nil {
			logger.Fatal("http server failed", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	logger.Info("sessiongate started", map[string]any{
		"surface": surface,
		"addr":    application.Addr(),
	})

	<-ctx.Done() // wait for Ctrl+C

	logger.Info("shutdown signal received", nil)

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	logger.Info("sessiongate stopped cleanly", map[string]any{"surface": surface})
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := loadConfig()

			database, err := db.Open(cmd.Context(), cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer database.Close()

			return db.Migrate(database.DB)
		},
	}
}
