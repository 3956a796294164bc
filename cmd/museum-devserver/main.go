// Command museum-devserver runs the in-memory museum backend on a real port so
// the necronet CLI can be exercised without the production service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/necronet/internal/museumtest"
)

type Config struct {
	Host            string        `env:"HOST" env-default:"localhost"`
	Port            string        `env:"PORT" env-default:"8000"`
	UploadDelay     time.Duration `env:"MUSEUM_UPLOAD_DELAY" env-default:"0s"`
	ShutdownTimeout time.Duration `env:"MUSEUM_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	backend := museumtest.New(
		museumtest.WithAfterUpload(museumtest.DefaultMigration),
		museumtest.WithUploadDelay(config.UploadDelay),
		museumtest.WithLogger(logger),
	)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.RealIP)
	r.Mount("/", backend.Routes())

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", config.Host, config.Port),
		Handler: r,
	}

	go func() {
		slog.Info("Museum listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}
	slog.Info("Server exited")
}
