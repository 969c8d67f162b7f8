package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/WencesJ/Speer-Tweeter/internal/credentials"
	"github.com/WencesJ/Speer-Tweeter/internal/database"
	"github.com/WencesJ/Speer-Tweeter/internal/events"
	"github.com/WencesJ/Speer-Tweeter/internal/handlers"
	"github.com/WencesJ/Speer-Tweeter/internal/middleware"
	"github.com/WencesJ/Speer-Tweeter/internal/services"
	"github.com/WencesJ/Speer-Tweeter/pkg/cache"
	"github.com/WencesJ/Speer-Tweeter/pkg/config"
	"github.com/WencesJ/Speer-Tweeter/pkg/query"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Server)

	log.Info().
		Str("env", cfg.Server.Environment).
		Str("port", cfg.Server.Port).
		Msg("Starting tweeter service")

	// Initialize MongoDB
	mongoDB, err := database.NewMongoDB(&cfg.Mongo)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mongoDB.EnsureIndexes(indexCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to create indexes")
	}
	cancelIndexes()

	// Initialize Redis
	redisDB, err := database.NewRedisDB(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	// User lookups go through the cache when it is enabled. The session
	// gate hits them on every request.
	var (
		userLookup  services.UserLookup = mongoDB
		invalidator services.UserInvalidator
	)
	if cfg.Cache.Enabled {
		userCache := cache.NewUserCache(cache.NewCache(redisDB.Client()), mongoDB, cfg.Cache.UserTTL)
		userLookup = userCache
		invalidator = userCache
		log.Info().Dur("ttl", cfg.Cache.UserTTL).Msg("User cache enabled")
	}

	// Lifecycle events
	bus := events.NewBus(cfg.Events.BufferSize)
	busCtx, stopBus := context.WithCancel(context.Background())
	defer stopBus()
	go bus.Run(busCtx, events.NewLogObserver(), events.MetricsObserver{})

	// Initialize services
	limits := query.WithLimits(cfg.Query.DefaultLimit, cfg.Query.MaxLimit)

	credentialStore := services.NewCredentialStore(mongoDB, credentials.NewHasher(cfg.Session.BcryptCost), invalidator, bus)
	sessionService := services.NewSessionService(redisDB, cfg.Session.MaxAge, cfg.Session.ExpiryLead, bus)
	tokenService := services.NewTokenService(cfg.Session.Secret)
	authenticator := services.NewSessionAuthenticator(credentialStore, sessionService, tokenService, userLookup)

	userService := services.NewUserService(mongoDB, mongoDB, invalidator, sessionService, bus, limits)
	tweetService := services.NewTweetService(mongoDB, bus, limits)
	chatService := services.NewChatService(mongoDB, userLookup, bus, limits)
	messageService := services.NewMessageService(mongoDB, bus, limits)

	// Initialize handlers
	api := &handlers.API{
		Users: handlers.NewUserHandler(authenticator, credentialStore, userService, tweetService, handlers.CookieConfig{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.SecureCookie,
		}),
		Tweets:   handlers.NewTweetHandler(tweetService),
		Chats:    handlers.NewChatHandler(chatService),
		Messages: handlers.NewMessageHandler(messageService),
	}
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"mongo": mongoDB,
		"redis": redisDB,
	})

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger())
	r.Use(middleware.Recoverer())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// Health check endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", middleware.MetricsHandler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		api.Mount(r, middleware.RequireSession(authenticator, cfg.Session.CookieName))
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Server started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Pending self-destruct timers die with the process; the Redis TTL
	// removes their records.
	sessionService.Shutdown()

	bus.Close()
	select {
	case <-bus.Done():
	case <-ctx.Done():
		log.Warn().Msg("Event bus did not drain before the deadline")
	}

	if err := redisDB.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close Redis")
	}
	if err := mongoDB.Close(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to close MongoDB")
	}

	log.Info().Msg("Server stopped gracefully")
}

// setupLogger configures the global zerolog logger: human-readable console
// output by default, JSON lines when LOG_FORMAT=json.
func setupLogger(cfg config.ServerConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
