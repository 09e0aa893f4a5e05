package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Vector store backends.
const (
	BackendLocal  = "local"
	BackendQdrant = "qdrant"
)

// Provider kinds for embeddings and generation.
const (
	ProviderLlamaCpp = "llamacpp"
	ProviderOpenAI   = "openai"
)

// Config holds all configuration for the application.
type Config struct {
	KBPath          string
	VectorStorePath string
	CategoriesFile  string
	Keywords        KeywordTable

	ChunkSize      int
	ChunkOverlap   int
	RetrievalK     int
	RerankTopK     int
	EmbedBatchSize int

	VectorBackend    string
	QdrantURL        string
	QdrantCollection string
	QdrantVectorSize int

	Provider           string
	LLMBaseURL         string
	LLMModelName       string
	LLMAPIKey          string
	EmbeddingBaseURL   string
	EmbeddingModelName string
	EmbeddingSize      int
	LLMAutoload        bool

	ProviderTimeout    time.Duration
	ProviderMaxRetries int

	WatchKB       bool
	WatchDebounce time.Duration

	APIPort   string
	LogLevel  slog.Level
	LogFormat string
	LogFile   string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates the result.
// If a .env file exists in the current directory or a parent directory, it is loaded first;
// variables already set in the environment take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		KBPath:             getEnv("KB_PATH", "./knowledge-base"),
		VectorStorePath:    getEnv("VECTOR_STORE_PATH", "./vector_store"),
		CategoriesFile:     getEnv("CATEGORIES_FILE", ""),
		VectorBackend:      strings.ToLower(getEnv("VECTOR_BACKEND", BackendLocal)),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "kb_chunks"),
		Provider:           strings.ToLower(getEnv("LLM_PROVIDER", ProviderLlamaCpp)),
		LLMModelName:       getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		LLMAPIKey:          getEnv("LLM_API_KEY", "dummy-key"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogFile:            getEnv("LOG_FILE", ""),
	}

	// The OpenAI client falls back to the public API when no base URL is set.
	defaultLLMBaseURL := "http://localhost:8080"
	if cfg.Provider == ProviderOpenAI {
		defaultLLMBaseURL = ""
	}
	cfg.LLMBaseURL = getEnv("LLM_BASE_URL", defaultLLMBaseURL)

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"CHUNK_SIZE", 1500, &cfg.ChunkSize},
		{"CHUNK_OVERLAP", 300, &cfg.ChunkOverlap},
		{"RETRIEVAL_K", 10, &cfg.RetrievalK},
		{"RERANK_TOP_K", 3, &cfg.RerankTopK},
		{"EMBED_BATCH_SIZE", 32, &cfg.EmbedBatchSize},
		{"QDRANT_VECTOR_SIZE", 0, &cfg.QdrantVectorSize},
		{"EMBEDDING_VECTOR_SIZE", 0, &cfg.EmbeddingSize},
		{"PROVIDER_MAX_RETRIES", 3, &cfg.ProviderMaxRetries},
	}
	for _, v := range ints {
		n, err := getEnvInt(v.key, v.def)
		if err != nil {
			return nil, err
		}
		*v.dest = n
	}

	if cfg.ProviderTimeout, err = getEnvDuration("PROVIDER_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.WatchDebounce, err = getEnvDuration("WATCH_DEBOUNCE", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.WatchKB, err = getEnvBool("WATCH_KB", false); err != nil {
		return nil, err
	}
	if cfg.LLMAutoload, err = getEnvBool("LLM_AUTOLOAD", false); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = parseLogLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.CategoriesFile != "" {
		cfg.Keywords, err = LoadKeywordTable(cfg.CategoriesFile)
	} else {
		cfg.Keywords, err = DefaultKeywordTable()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load category keywords: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.KBPath == "" {
		return fmt.Errorf("KB_PATH is required")
	}
	if c.VectorStorePath == "" {
		return fmt.Errorf("VECTOR_STORE_PATH is required")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be greater than 0")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be between 0 and CHUNK_SIZE-1")
	}
	if c.RetrievalK <= 0 {
		return fmt.Errorf("RETRIEVAL_K must be greater than 0")
	}
	if c.RerankTopK <= 0 {
		return fmt.Errorf("RERANK_TOP_K must be greater than 0")
	}
	if c.RerankTopK > c.RetrievalK {
		return fmt.Errorf("RERANK_TOP_K (%d) must not exceed RETRIEVAL_K (%d)", c.RerankTopK, c.RetrievalK)
	}
	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("EMBED_BATCH_SIZE must be greater than 0")
	}
	if c.ProviderMaxRetries < 0 {
		return fmt.Errorf("PROVIDER_MAX_RETRIES must not be negative")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be greater than 0")
	}

	switch c.VectorBackend {
	case BackendLocal:
	case BackendQdrant:
		// Must match the output size of the embeddings model; the collection is created with it.
		if c.QdrantVectorSize <= 0 {
			return fmt.Errorf("QDRANT_VECTOR_SIZE is required when VECTOR_BACKEND=qdrant")
		}
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend)
	}

	switch c.Provider {
	case ProviderLlamaCpp, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.Provider)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	return d, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error: %w", err)
	}
	return level, nil
}
