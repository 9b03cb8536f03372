package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/daygrid/daygrid/internal/config"
	"github.com/daygrid/daygrid/internal/database"
	"github.com/daygrid/daygrid/internal/handlers"
	"github.com/daygrid/daygrid/internal/logging"
	"github.com/daygrid/daygrid/internal/repositories"
	"github.com/daygrid/daygrid/internal/services"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		logger.Error(ctx, "failed to run migrations", "error", err)
		os.Exit(1)
	}

	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(ctx, "failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer postgresPool.Close()

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(ctx, "failed to create redis client", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	store := repositories.NewPostgresStore(postgresPool)
	checkpoints := repositories.NewRedisCheckpointRepository(redisClient)

	pullService := services.NewPullService(store, checkpoints, logger, cfg.DefaultPullLimit)
	pushService := services.NewPushService(store, checkpoints, logger, cfg.MaxItemsPerList, cfg.MaxTotalItems)
	resolveService := services.NewResolveService(store, logger)

	syncHandler := handlers.NewSyncHandler(pullService, pushService, resolveService, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	router.Route("/api/v1/sync", func(r chi.Router) {
		r.Use(handlers.Authenticator(cfg.JWTSecret))
		syncHandler.Routes(r)
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "starting server", "port", cfg.ServerPort)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error(ctx, "server error", "error", err)
		os.Exit(1)
	}

	logger.Info(ctx, "server stopped gracefully")
}
