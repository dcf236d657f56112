package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	LLM      LLMConfig
	GigaChat GigaChatConfig
	RAG      RAGConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type AuthConfig struct {
	SecretKey  string
	Expiration time.Duration
}

// LLMConfig points at an OpenAI-compatible endpoint used for both chat
// completions (with tool calling) and embeddings.
type LLMConfig struct {
	BaseURL            string
	APIKey             string
	ChatModel          string
	EmbeddingModel     string
	EmbeddingDimension int
	Timeout            time.Duration
}

// GigaChatConfig configures the secondary model used to repair malformed
// tool-call arguments.
type GigaChatConfig struct {
	APIKey             string
	Scope              string
	Model              string
	InsecureSkipVerify bool
}

type RAGConfig struct {
	TopK              int
	DistanceThreshold float64
	EmbedBatchSize    int
}

func Load() (*Config, error) {
	// Try to load .env file from current directory or project root
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}
	// A missing .env file is fine; plain environment variables still apply
	// (useful for Docker/K8s).

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	jwtExp, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))
	llmTimeout, _ := strconv.Atoi(getEnv("LLM_TIMEOUT", "120"))
	embeddingDim, _ := strconv.Atoi(getEnv("LLM_EMBEDDING_DIMENSION", "4096"))
	ragTopK, _ := strconv.Atoi(getEnv("RAG_TOP_K", "10"))
	ragThreshold, _ := strconv.ParseFloat(getEnv("RAG_DISTANCE_THRESHOLD", "0.7"), 64)
	ragBatchSize, _ := strconv.Atoi(getEnv("RAG_EMBED_BATCH_SIZE", "64"))
	insecureSkipVerify := getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "true") == "true"

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "saleschat"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			SecretKey:  getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Expiration: time.Duration(jwtExp) * time.Hour,
		},
		LLM: LLMConfig{
			BaseURL:            getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:             getEnv("LLM_API_KEY", ""),
			ChatModel:          getEnv("LLM_CHAT_MODEL", "gpt-4o"),
			EmbeddingModel:     getEnv("LLM_EMBEDDING_MODEL", "text-embedding-3-large"),
			EmbeddingDimension: embeddingDim,
			Timeout:            time.Duration(llmTimeout) * time.Second,
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			Model:              getEnv("GIGACHAT_MODEL", "GigaChat"),
			InsecureSkipVerify: insecureSkipVerify,
		},
		RAG: RAGConfig{
			TopK:              ragTopK,
			DistanceThreshold: ragThreshold,
			EmbedBatchSize:    ragBatchSize,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
