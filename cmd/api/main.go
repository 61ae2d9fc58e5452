package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/bpcare/internal/adapters/cache"
	"github.com/zatekoja/bpcare/internal/adapters/database"
	"github.com/zatekoja/bpcare/internal/adapters/events"
	"github.com/zatekoja/bpcare/internal/api/handlers"
	"github.com/zatekoja/bpcare/internal/api/routes"
	"github.com/zatekoja/bpcare/internal/application/services"
	"github.com/zatekoja/bpcare/internal/domain/providers"
	"github.com/zatekoja/bpcare/internal/infrastructure/clients/openai"
	"github.com/zatekoja/bpcare/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/bpcare/internal/infrastructure/clients/redis"
	"github.com/zatekoja/bpcare/internal/infrastructure/observability"
	"github.com/zatekoja/bpcare/pkg/config"
	"github.com/zatekoja/bpcare/pkg/secrets"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Credentials may live in Vault; reload config when any were exported
	vaultResult, err := secrets.Apply(ctx, secrets.ConfigFromEnv(), nil)
	if err != nil {
		log.Fatal().Err(err).Str("path", vaultResult.Path).Msg("failed to load secrets from Vault")
	}
	if vaultResult.Loaded > 0 {
		log.Info().Int("loaded", vaultResult.Loaded).Int("skipped", vaultResult.Skipped).Msg("secrets loaded from Vault")
		if cfg, err = config.Load(); err != nil {
			log.Fatal().Err(err).Msg("failed to reload configuration")
		}
	}

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize metrics")
	}

	loc, err := cfg.Clinical.Location()
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Clinical.IntakeTimezone).Msg("invalid intake timezone")
	}

	pgClient, err := postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer pgClient.Close()

	// Redis backs the rate limiter and event bus. Both degrade when it is down.
	var cacheProvider providers.CacheProvider
	var eventBus providers.EventBus
	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, using in-process rate limiting and no event stream")
	} else {
		defer redisClient.Close()
		cacheProvider = cache.NewRedisAdapter(redisClient)
		eventBus = events.NewRedisEventBus(redisClient)
		log.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("connected to Redis")
	}

	userRepo := database.NewUserAdapter(pgClient)
	recordRepo := database.NewMedicalRecordAdapter(pgClient)
	readingRepo := database.NewBPReadingAdapter(pgClient)
	linkRepo := database.NewDoctorLinkAdapter(pgClient)
	recommendationRepo := database.NewRecommendationAdapter(pgClient)
	chatRepo := database.NewChatMessageAdapter(pgClient)

	flags := services.NewFeatureFlags(cfg.Clinical.DemoMode)
	gateway := services.NewAIGateway(
		services.AIGatewayConfig{
			Configured: cfg.OpenAI.Configured(),
			RecModel:   cfg.OpenAI.RecModel,
			ChatModel:  cfg.OpenAI.ChatModel,
		},
		func() ([]providers.TextTransport, error) {
			return openai.NewTransports(&cfg.OpenAI, &http.Client{Timeout: cfg.OpenAI.HTTPTimeout})
		},
		flags,
	)
	if cfg.OpenAI.Configured() {
		go func() {
			probeCtx, probeCancel := context.WithTimeout(ctx, cfg.OpenAI.HTTPTimeout)
			defer probeCancel()
			ready := gateway.EnsureReady(probeCtx)
			status := gateway.Status()
			if ready {
				log.Info().Str("transport", status.Transport).Msg("AI gateway ready")
				return
			}
			log.Warn().Str("last_error", status.LastError).Msg("AI gateway not ready, heuristic mode")
		}()
	}

	publisher := services.NewWorkflowPublisher(eventBus)
	limiter := services.NewRateLimiter("ratelimit:recommendations:", cacheProvider, cfg.Clinical.GenerateRateLimit, cfg.Clinical.GenerateRateWindow)

	engine := services.NewRecommendationEngine(userRepo, recordRepo, readingRepo, gateway, flags, services.RecommendationEngineConfig{
		Model:             cfg.OpenAI.RecModel,
		HistoryDays:       cfg.Clinical.HistoryWindowDays,
		HeuristicFallback: cfg.Clinical.HeuristicFallback,
		Location:          loc,
	})
	recommendationService := services.NewRecommendationService(recommendationRepo, linkRepo, engine, limiter, publisher, metrics)
	linkService := services.NewDoctorLinkService(linkRepo, userRepo, cfg.Clinical.MaxActiveDoctorLink, publisher, metrics)
	scheduler := services.NewIntakeScheduler(readingRepo, linkRepo, loc, cfg.Clinical.DailyReadingLimit, cfg.Clinical.HistoryWindowDays, publisher, metrics)
	chatService := services.NewChatService(chatRepo, userRepo, recordRepo, readingRepo, gateway, flags, cfg.OpenAI.ChatModel, loc)

	timeout := cfg.Server.RequestTimeout
	h := routes.Handlers{
		Readings:        handlers.NewBPReadingHandler(scheduler, timeout),
		Recommendations: handlers.NewRecommendationHandler(recommendationService, timeout),
		DoctorLinks:     handlers.NewDoctorLinkHandler(linkService, timeout),
		Chatbot:         handlers.NewChatbotHandler(chatService, timeout),
		AI:              handlers.NewAIHandler(gateway, flags, timeout),
	}
	if eventBus != nil {
		h.Events = handlers.NewEventStreamHandler(eventBus)
	}

	handler := routes.NewRouter(h, metrics, cfg.Server.AllowedOrigins).SetupRoutes()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Generation can take as long as the request timeout; the event stream is long-lived.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Bool("demo_mode", flags.DemoMode()).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Error().Err(err).Msg("error closing event bus")
		}
	}

	log.Info().Msg("server stopped")
}
