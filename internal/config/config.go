package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

const (
	BackendWeaviate = "weaviate"
	BackendQdrant   = "qdrant"
	BackendMemory   = "memory"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	RerankCohere = "cohere"
	RerankJina   = "jina"
	RerankNone   = "none"
)

type Config struct {
	// Vector index
	VectorBackend       string `envconfig:"VECTOR_BACKEND" default:"weaviate"`
	WeaviateHost        string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme      string `envconfig:"WEAVIATE_SCHEME" default:"http"`
	WeaviateClass       string `envconfig:"WEAVIATE_CLASS" default:"RaceChunk"`
	QdrantAddr          string `envconfig:"QDRANT_ADDR" default:"localhost:6334"`
	QdrantCollection    string `envconfig:"QDRANT_COLLECTION" default:"race_chunks"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"768"`

	// Models
	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER" default:"gemini"`
	EmbeddingModel    string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey      string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL     string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	LLMModel          string `envconfig:"LLM_MODEL" default:"gemini-1.5-flash"`
	RerankProvider    string `envconfig:"RERANK_PROVIDER" default:"cohere"`
	RerankAPIKey      string `envconfig:"RERANK_API_KEY"`
	RerankModel       string `envconfig:"RERANK_MODEL" default:"rerank-english-v3.0"`

	// Retrieval
	RetrieveTopK   int    `envconfig:"RETRIEVE_TOP_K" default:"20"`
	RerankTopN     int    `envconfig:"RERANK_TOP_N" default:"5"`
	QueryCacheSize int    `envconfig:"QUERY_CACHE_SIZE" default:"256"`
	QueryLogPath   string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`

	// Ingestion
	ChunkSize           int     `envconfig:"CHUNK_SIZE" default:"400"`
	ChunkOverlap        int     `envconfig:"CHUNK_OVERLAP" default:"0"`
	ChunkMaxRecordSize  int     `envconfig:"CHUNK_MAX_RECORD_SIZE" default:"0"`
	UploadBatchSize     int     `envconfig:"UPLOAD_BATCH_SIZE" default:"100"`
	UploadConcurrency   int     `envconfig:"UPLOAD_CONCURRENCY" default:"30"`
	UploadMode          string  `envconfig:"UPLOAD_MODE" default:"concurrent"`
	UploadRatePerSecond float64 `envconfig:"UPLOAD_RATE_PER_SECOND" default:"0"`
	IngestSchedule      string  `envconfig:"INGEST_SCHEDULE"`

	// Raw documents
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3Prefix    string `envconfig:"S3_PREFIX" default:"race-data"`
	S3Region    string `envconfig:"S3_REGION" default:"us-west-1"`
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	AWSAccessID string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecret   string `envconfig:"AWS_SECRET_ACCESS_KEY"`

	// Queue
	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	EnableAPI    bool `envconfig:"ENABLE_API" default:"true"`
	EnableWorker bool `envconfig:"ENABLE_INGEST_WORKER" default:"true"`

	// Athlete stats
	StravaBaseURL string `envconfig:"STRAVA_BASE_URL" default:"https://www.strava.com/api/v3"`

	// Server
	ServerPort int    `envconfig:"SERVER_PORT" default:"8081"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars set in the shell win over .env.
	_ = godotenv.Load(".env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if !slices.Contains([]string{BackendWeaviate, BackendQdrant, BackendMemory}, c.VectorBackend) {
		return fmt.Errorf("%w: VECTOR_BACKEND %q", ErrInvalid, c.VectorBackend)
	}
	if c.VectorBackend == BackendWeaviate && c.WeaviateHost == "" {
		return fmt.Errorf("%w: WEAVIATE_HOST", ErrMissingRequired)
	}
	if c.VectorBackend == BackendQdrant && c.QdrantAddr == "" {
		return fmt.Errorf("%w: QDRANT_ADDR", ErrMissingRequired)
	}
	if !slices.Contains([]string{ProviderGemini, ProviderOpenAI}, c.EmbeddingProvider) {
		return fmt.Errorf("%w: EMBEDDING_PROVIDER %q", ErrInvalid, c.EmbeddingProvider)
	}
	if !slices.Contains([]string{RerankCohere, RerankJina, RerankNone}, c.RerankProvider) {
		return fmt.Errorf("%w: RERANK_PROVIDER %q", ErrInvalid, c.RerankProvider)
	}
	if c.UploadMode != "concurrent" && c.UploadMode != "sequential" {
		return fmt.Errorf("%w: UPLOAD_MODE %q", ErrInvalid, c.UploadMode)
	}
	if c.UploadBatchSize <= 0 {
		return fmt.Errorf("%w: UPLOAD_BATCH_SIZE must be positive", ErrInvalid)
	}
	if c.UploadConcurrency <= 0 {
		return fmt.Errorf("%w: UPLOAD_CONCURRENCY must be positive", ErrInvalid)
	}
	if c.RetrieveTopK <= 0 || c.RerankTopN <= 0 {
		return fmt.Errorf("%w: RETRIEVE_TOP_K and RERANK_TOP_N must be positive", ErrInvalid)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalid)
	}
	return nil
}

// RequireEmbeddingKey checks the key for the configured embedding provider.
// Only commands that embed call it.
func (c *Config) RequireEmbeddingKey() error {
	switch c.EmbeddingProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingRequired)
		}
	}
	return nil
}
