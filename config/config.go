package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fabfab/estate-agent/apperr"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	ChunkByWords     = "words"
	ChunkBySentences = "sentences"

	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendNeo4j    = "neo4j"
)

type Config struct {
	PostgresDSN string
	Neo4jURI    string
	Neo4jUser   string
	Neo4jPass   string

	DataDir       string
	HTTPAddr      string
	CataloguePath string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	Embeddings EmbeddingConfig
	LLM        LLMConfig
	Chunking   ChunkingConfig
	Retrieval  RetrievalConfig
	Timeouts   TimeoutConfig
	RateLimit  RateLimitConfig
	Redis      RedisConfig
	Sessions   SessionConfig
	Graph      GraphConfig
}

type EmbeddingConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type LLMConfig struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	// UseClassifier enables the completion-backed relevance and intent
	// classifiers. The keyword rules are used either way as the fallback.
	UseClassifier bool
}

type ChunkingConfig struct {
	Strategy      string
	Size          int
	Overlap       int
	MinTextLength int
	MaxChunkChars int
}

type RetrievalConfig struct {
	Backend             string
	TopK                int
	CandidateMultiplier int
	CandidateFloor      int
}

type TimeoutConfig struct {
	Embedding  time.Duration
	Search     time.Duration
	Completion time.Duration
	Graph      time.Duration
	Session    time.Duration
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type SessionConfig struct {
	Backend string
}

type GraphConfig struct {
	Backend string
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		PostgresDSN:   getEnv("POSTGRES_DSN", "postgres://localhost:5432/estate-agent?sslmode=disable"),
		Neo4jURI:      getEnv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:     getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:     getEnv("NEO4J_PASSWORD", "password"),
		DataDir:       getEnv("DATA_DIR", "data"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		CataloguePath: getEnv("CATALOGUE_PATH", ""),
		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		Embeddings: EmbeddingConfig{
			Provider:  strings.ToLower(getEnv("EMBEDDING_PROVIDER", ProviderOllama)),
			Model:     getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			Dimension: getEnvInt("EMBEDDING_DIMENSION", 768),
		},
		LLM: LLMConfig{
			Provider:      strings.ToLower(getEnv("LLM_PROVIDER", ProviderOllama)),
			Model:         getEnv("LLM_MODEL", "llama3.1:8b"),
			Temperature:   getEnvFloat("LLM_TEMPERATURE", 0.3),
			MaxTokens:     getEnvInt("LLM_MAX_TOKENS", 1000),
			UseClassifier: getEnvBool("LLM_CLASSIFIER", false),
		},
		Chunking: ChunkingConfig{
			Strategy:      strings.ToLower(getEnv("CHUNK_STRATEGY", ChunkByWords)),
			Size:          getEnvInt("CHUNK_SIZE", 500),
			Overlap:       getEnvInt("CHUNK_OVERLAP", 100),
			MinTextLength: getEnvInt("MIN_TEXT_LENGTH", 100),
			MaxChunkChars: getEnvInt("MAX_CHUNK_CHARS", 8000),
		},
		Retrieval: RetrievalConfig{
			Backend:             strings.ToLower(getEnv("VECTOR_BACKEND", BackendPostgres)),
			TopK:                getEnvInt("RETRIEVAL_TOP_K", 5),
			CandidateMultiplier: getEnvInt("RETRIEVAL_CANDIDATE_MULTIPLIER", 2),
			CandidateFloor:      getEnvInt("RETRIEVAL_CANDIDATE_FLOOR", 10),
		},
		Timeouts: TimeoutConfig{
			Embedding:  getEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second),
			Search:     getEnvDuration("SEARCH_TIMEOUT", 10*time.Second),
			Completion: getEnvDuration("COMPLETION_TIMEOUT", 60*time.Second),
			Graph:      getEnvDuration("GRAPH_TIMEOUT", 10*time.Second),
			Session:    getEnvDuration("SESSION_TIMEOUT", 2*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("LLM_REQUESTS_PER_SECOND", 5),
			Burst:             getEnvInt("LLM_BURST", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("SESSION_TTL", 24*time.Hour),
		},
		Sessions: SessionConfig{
			Backend: strings.ToLower(getEnv("SESSION_BACKEND", BackendMemory)),
		},
		Graph: GraphConfig{
			Backend: strings.ToLower(getEnv("GRAPH_BACKEND", BackendNeo4j)),
		},
	}
}

// Validate reports the first setting that would prevent startup.
func (c Config) Validate() error {
	switch c.Embeddings.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return apperr.Configuration("EMBEDDING_PROVIDER", fmt.Sprintf("unknown provider %q", c.Embeddings.Provider))
	}
	switch c.LLM.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return apperr.Configuration("LLM_PROVIDER", fmt.Sprintf("unknown provider %q", c.LLM.Provider))
	}
	if (c.Embeddings.Provider == ProviderOpenAI || c.LLM.Provider == ProviderOpenAI) && c.OpenAIAPIKey == "" {
		return apperr.Configuration("OPENAI_API_KEY", "required when the openai provider is selected")
	}
	if c.Embeddings.Dimension <= 0 {
		return apperr.Configuration("EMBEDDING_DIMENSION", "must be positive")
	}
	if err := ValidateChunking(c.Chunking.Size, c.Chunking.Overlap); err != nil {
		return err
	}
	switch c.Chunking.Strategy {
	case ChunkByWords, ChunkBySentences:
	default:
		return apperr.Configuration("CHUNK_STRATEGY", fmt.Sprintf("unknown strategy %q", c.Chunking.Strategy))
	}
	switch c.Retrieval.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return apperr.Configuration("VECTOR_BACKEND", fmt.Sprintf("unknown backend %q", c.Retrieval.Backend))
	}
	switch c.Sessions.Backend {
	case BackendMemory, BackendRedis:
	default:
		return apperr.Configuration("SESSION_BACKEND", fmt.Sprintf("unknown backend %q", c.Sessions.Backend))
	}
	switch c.Graph.Backend {
	case BackendNeo4j, BackendMemory:
	default:
		return apperr.Configuration("GRAPH_BACKEND", fmt.Sprintf("unknown backend %q", c.Graph.Backend))
	}
	if c.Retrieval.TopK <= 0 {
		return apperr.Configuration("RETRIEVAL_TOP_K", "must be positive")
	}
	return nil
}

// ValidateChunking rejects window parameters that would not advance.
func ValidateChunking(size, overlap int) error {
	if size < 1 {
		return apperr.Configuration("CHUNK_SIZE", "must be at least 1")
	}
	if overlap < 0 {
		return apperr.Configuration("CHUNK_OVERLAP", "must not be negative")
	}
	if overlap >= size {
		return apperr.Configuration("CHUNK_OVERLAP", fmt.Sprintf("must be smaller than chunk size %d", size))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
