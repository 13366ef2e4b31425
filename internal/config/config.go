// Package config loads configuration from environment variables and sets
// up logging.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider identifies an embedding backend.
type Provider string

const (
	ProviderOllama  Provider = "ollama"
	ProviderOpenAI  Provider = "openai"
	ProviderBedrock Provider = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string

	// Embeddings
	EmbedProvider  Provider
	EmbedModel     string
	EmbedDimension int
	OllamaHost     string
	OpenAIAPIKey   string
	AWSRegion      string

	// Pipeline tuning
	EmbedWorkers     int
	EmbedBatchSize   int
	IndexBatchSize   int
	WatchdogInterval time.Duration
	MaxFailureRatio  float64

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	cfg := Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "knowbase"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "main"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),

		EmbedProvider:  Provider(getEnv("KNOWBASE_EMBED_PROVIDER", string(ProviderOllama))),
		EmbedModel:     getEnv("KNOWBASE_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("KNOWBASE_EMBED_DIMENSION", 384),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),

		EmbedWorkers:     getEnvInt("KNOWBASE_EMBED_WORKERS", 4),
		EmbedBatchSize:   getEnvInt("KNOWBASE_EMBED_BATCH_SIZE", 16),
		IndexBatchSize:   getEnvInt("KNOWBASE_INDEX_BATCH_SIZE", 100),
		WatchdogInterval: getEnvDuration("KNOWBASE_WATCHDOG_INTERVAL", 2*time.Minute),
		MaxFailureRatio:  getEnvFloat("KNOWBASE_MAX_FAILURE_RATIO", 0.5),

		LogFile:  getEnv("KNOWBASE_LOG_FILE", "/tmp/knowbase.log"),
		LogLevel: parseLogLevel(getEnv("KNOWBASE_LOG_LEVEL", "INFO")),
	}

	switch cfg.EmbedProvider {
	case ProviderOllama, ProviderOpenAI, ProviderBedrock:
	default:
		return cfg, fmt.Errorf("unknown embedding provider %q", cfg.EmbedProvider)
	}
	if cfg.EmbedDimension <= 0 {
		return cfg, fmt.Errorf("embedding dimension must be positive, got %d", cfg.EmbedDimension)
	}
	if cfg.MaxFailureRatio <= 0 || cfg.MaxFailureRatio > 1 {
		return cfg, fmt.Errorf("failure ratio must be in (0,1], got %v", cfg.MaxFailureRatio)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
