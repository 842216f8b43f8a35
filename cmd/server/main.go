package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fluentvoice/server/adapters/llm"
	"github.com/fluentvoice/server/adapters/memory"
	mongoadapter "github.com/fluentvoice/server/adapters/mongo"
	redisadapter "github.com/fluentvoice/server/adapters/redis"
	"github.com/fluentvoice/server/adapters/stt"
	"github.com/fluentvoice/server/domain/repositories"
	"github.com/fluentvoice/server/internal/api"
	"github.com/fluentvoice/server/internal/audio"
	"github.com/fluentvoice/server/internal/auth"
	"github.com/fluentvoice/server/internal/cache"
	"github.com/fluentvoice/server/internal/config"
	"github.com/fluentvoice/server/internal/websocket"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load(logger)

	ctx := context.Background()

	// Ephemeral store: Redis when configured, in-memory otherwise.
	var ephemeral repositories.EphemeralStore
	if cfg.Redis.Addr != "" {
		store, err := redisadapter.NewStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		ephemeral = store
	} else {
		logger.Warn("REDIS_ADDR not set, using in-memory ephemeral store")
		ephemeral = memory.NewStore()
	}

	// Persistence: MongoDB when configured, in-memory otherwise.
	var conversations repositories.ConversationRepository
	if cfg.Mongo.URI != "" {
		client, err := mongoadapter.NewClient(cfg.Mongo.URI, cfg.Mongo.Database, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Close(shutdownCtx)
		}()
		conversations = mongoadapter.NewConversationRepository(client.Database)
	} else {
		logger.Warn("MONGODB_URI not set, conversation history will not survive restarts")
		conversations = memory.NewConversationRepository()
	}

	// Duplex AI channel: Gemini Live when a key is present, mock otherwise.
	var live repositories.LiveStreamer
	if cfg.Gemini.APIKey != "" {
		streamer, err := llm.NewGeminiLiveStreamer(ctx, cfg.Gemini.APIKey, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Gemini Live client", zap.Error(err))
		}
		live = streamer
	} else {
		logger.Warn("GOOGLE_GEMINI_API_KEY not set, using mock live streamer")
		live = llm.NewMockLiveStreamer()
	}

	audioStore := audio.NewStore(ephemeral, cfg.Stream.AudioTTL, logger)
	responseCache := cache.NewResponseCache(ephemeral, cache.TTLs{
		Transcript: cfg.Stream.TranscriptTTL,
		Response:   cfg.Stream.ResponseTTL,
		Audio:      cfg.Stream.AudioTTL,
		Session:    cfg.Stream.SessionTTL,
	}, logger)

	hub := websocket.NewHub(
		audioStore,
		responseCache,
		live,
		stt.NewGoogleSpeechToText(logger),
		conversations,
		cfg.Stream,
		cfg.Gemini,
		logger,
	)
	go hub.Run()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, hub, auth.NewTokenIssuer(cfg.Auth.JWTSecret), logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("port", cfg.Server.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
