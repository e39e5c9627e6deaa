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
	"github.com/zatekoja/clinicalorders/internal/adapters/database"
	"github.com/zatekoja/clinicalorders/internal/adapters/events"
	"github.com/zatekoja/clinicalorders/internal/api/handlers"
	"github.com/zatekoja/clinicalorders/internal/api/routes"
	"github.com/zatekoja/clinicalorders/internal/application/services"
	"github.com/zatekoja/clinicalorders/internal/domain/providers"
	"github.com/zatekoja/clinicalorders/internal/extraction"
	"github.com/zatekoja/clinicalorders/internal/extraction/modelextract"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/clients/llm"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/clients/redis"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/observability"
	"github.com/zatekoja/clinicalorders/internal/vocabulary"
	"github.com/zatekoja/clinicalorders/pkg/config"
	"github.com/zatekoja/clinicalorders/pkg/secrets"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Vault credentials must be exported before configuration is read
	vaultResult, err := secrets.ApplyModelCredentials(ctx, secrets.LoadVaultConfigFromEnv())
	if err != nil {
		log.Fatalf("Failed to load credentials from Vault: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Log.Environment, cfg.Log.Level)
	logger := observability.GetLogger()
	if vaultResult.Enabled {
		logger.Info().Strs("loaded", vaultResult.Loaded).Strs("skipped", vaultResult.Skipped).Msg("credentials loaded from Vault")
	}

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			logger.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}

	// Extraction engines
	vocab, err := loadVocabulary(cfg.Engine.VocabularyPath)
	if err != nil {
		log.Fatalf("Failed to load vocabulary: %v", err)
	}
	engine, err := extraction.NewEngine(extraction.Options{
		Vocabulary: vocab,
		Guardrails: extraction.GuardrailConfig{
			MinConfidence: cfg.Engine.MinConfidence,
			MaxEntities:   cfg.Engine.MaxEntities,
		},
	})
	if err != nil {
		log.Fatalf("Failed to initialize extraction engine: %v", err)
	}

	model, err := llm.NewJSONModel(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("language model disabled")
	}
	if model != nil {
		logger.Info().Str("provider", model.Name()).Msg("language model configured")
	}
	modelEngine := modelextract.New(model, vocab, modelextract.WithTimeout(cfg.Model.Timeout))

	pingers := map[string]handlers.Pinger{}

	// Session state: Redis when configured, in-process otherwise
	var cacheProvider providers.CacheProvider
	var eventBus providers.EventBus
	var sessionLocker providers.SessionLocker
	if cfg.Redis.Enabled() {
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to initialize Redis client: %v", err)
		}
		defer redisClient.Close()

		cacheProvider, eventBus, sessionLocker = redisSessionBackends(redisClient, cfg.Session.LockTTL)
		pingers["redis"] = redisClient.Ping
	} else {
		logger.Info().Msg("REDIS_HOST not set, keeping sessions in memory")
		cacheProvider = cache.NewMemoryAdapter()
		eventBus = events.NewMemoryEventBus()
	}
	defer eventBus.Close()

	opts := []services.SessionOption{
		services.WithEventBus(eventBus),
		services.WithMetrics(metrics),
	}
	if sessionLocker != nil {
		opts = append(opts, services.WithSessionLocker(sessionLocker))
	}

	// Audit log
	if cfg.Database.Enabled() {
		pgClient, err := postgres.NewClient(ctx, &cfg.Database)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL client: %v", err)
		}
		defer pgClient.Close()

		opts = append(opts, services.WithRunRepository(database.NewExtractionRunAdapter(pgClient)))
		pingers["postgres"] = pgClient.Ping
	} else {
		logger.Info().Msg("DB_HOST not set, extraction runs are not recorded")
	}

	sessionService := services.NewOrderSessionService(
		engine,
		modelEngine,
		cache.NewSnapshotStore(cacheProvider, cfg.Session.SnapshotTTL),
		opts...,
	)

	sessionHandler := handlers.NewSessionHandler(sessionService)
	sseHandler := handlers.NewSSEHandler(eventBus, sessionService)
	healthHandler := handlers.NewHealthHandler(pingers, sessionService.ModelAvailable, sseHandler.GetClientCount)

	router := routes.NewRouter(sessionHandler, sseHandler, healthHandler, cfg.Server.AllowedOrigins, metrics)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Bool("model_available", sessionService.ModelAvailable()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}

// redisSessionBackends shares snapshots, updates and the per-session lock between every
// API instance pointed at the same Redis.
func redisSessionBackends(client *redis.Client, lockTTL time.Duration) (providers.CacheProvider, providers.EventBus, providers.SessionLocker) {
	return cache.NewRedisAdapter(client),
		events.NewRedisEventBus(client),
		cache.NewRedisSessionLocker(client, lockTTL)
}

func loadVocabulary(path string) (*vocabulary.Vocabulary, error) {
	if path == "" {
		return vocabulary.Default()
	}
	return vocabulary.Load(path)
}
