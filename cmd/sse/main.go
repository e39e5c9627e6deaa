package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zatekoja/clinicalorders/internal/adapters/cache"
	"github.com/zatekoja/clinicalorders/internal/adapters/events"
	"github.com/zatekoja/clinicalorders/internal/api/handlers"
	"github.com/zatekoja/clinicalorders/internal/api/middleware"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/clients/redis"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/observability"
	"github.com/zatekoja/clinicalorders/pkg/config"
)

// The stream server fans session snapshot updates out to clinician screens so the
// extraction API can scale separately. It needs the Redis that cmd/api publishes to.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.Redis.Enabled() {
		log.Fatalf("REDIS_HOST is required: the stream server reads updates published by the API")
	}

	observability.InitLogger(cfg.OTEL.ServiceName+"-sse", cfg.Log.Environment, cfg.Log.Level)
	logger := observability.GetLogger()

	ctx := context.Background()
	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to initialize Redis client: %v", err)
	}
	defer redisClient.Close()

	eventBus := events.NewRedisEventBus(redisClient)
	snapshots := cache.NewSnapshotStore(cache.NewRedisAdapter(redisClient), cfg.Session.SnapshotTTL)
	sseHandler := handlers.NewSSEHandler(eventBus, snapshots)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := redisClient.Ping(r.Context()); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /api/stream/sessions/{id}", sseHandler.StreamSessionUpdates)

	mux.HandleFunc("GET /api/stream/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"connected_clients": %d}`, sseHandler.GetClientCount())
	})

	var handler http.Handler = mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)
	handler = middleware.CORSMiddleware(cfg.Server.AllowedOrigins)(handler)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streams stay open
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", serverAddr).Msg("stream server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Stream server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("stream server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during server shutdown")
	}

	if err := eventBus.Close(); err != nil {
		logger.Error().Err(err).Msg("error closing event bus")
	}

	logger.Info().Msg("stream server stopped")
}
