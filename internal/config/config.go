package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds the full server configuration, read from the environment
// with development defaults. A .env file is honored when present.
type Config struct {
	Server ServerConfig
	Gemini GeminiConfig
	Redis  RedisConfig
	Mongo  MongoConfig
	Auth   AuthConfig
	Stream StreamConfig
}

// ServerConfig contains the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Port string
}

// GeminiConfig configures the Live API channel.
type GeminiConfig struct {
	APIKey            string
	Model             string
	SystemInstruction string
}

// RedisConfig configures the ephemeral store. An empty Addr selects the
// in-memory fallback.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MongoConfig configures the persistence collaborator. An empty URI selects
// the in-memory fallback.
type MongoConfig struct {
	URI      string
	Database string
}

// AuthConfig holds the JWT signing secret.
type AuthConfig struct {
	JWTSecret string
}

// StreamConfig holds session-lifecycle tuning.
type StreamConfig struct {
	DebounceWindow time.Duration
	SessionTTL     time.Duration
	TranscriptTTL  time.Duration
	ResponseTTL    time.Duration
	AudioTTL       time.Duration
	SampleRate     int
	Language       string
}

// Load reads configuration from the environment.
func Load(logger *zap.Logger) *Config {
	if err := godotenv.Load(); err == nil {
		logger.Info("Loaded environment from .env file")
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GOOGLE_GEMINI_API_KEY"),
			Model:  getEnv("GEMINI_LIVE_MODEL", "gemini-2.0-flash-live-001"),
			SystemInstruction: getEnv("SYSTEM_INSTRUCTION",
				"You are a friendly English conversation partner. Keep replies short, natural, and encouraging."),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Mongo: MongoConfig{
			URI:      os.Getenv("MONGODB_URI"),
			Database: getEnv("MONGODB_DATABASE", "fluentvoice"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
		},
		Stream: StreamConfig{
			DebounceWindow: getEnvDuration("TRANSCRIPT_DEBOUNCE_MS", 1000*time.Millisecond),
			SessionTTL:     getEnvDuration("SESSION_TTL_S", 3600*time.Second),
			TranscriptTTL:  getEnvDuration("TRANSCRIPT_TTL_S", 600*time.Second),
			ResponseTTL:    getEnvDuration("RESPONSE_TTL_S", 600*time.Second),
			AudioTTL:       getEnvDuration("AUDIO_TTL_S", 600*time.Second),
			SampleRate:     getEnvInt("AUDIO_SAMPLE_RATE", 16000),
			Language:       getEnv("AUDIO_LANGUAGE", "en-US"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration reads an integer env var in the unit implied by the key
// suffix (_MS milliseconds, otherwise seconds).
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	if len(key) > 3 && key[len(key)-3:] == "_MS" {
		return time.Duration(n) * time.Millisecond
	}
	return time.Duration(n) * time.Second
}
