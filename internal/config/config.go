package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"docsage-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey     string        `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel   string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDim     int           `envconfig:"EMBEDDING_DIM" default:"384"`
	EmbeddingTimeout time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"10s"`
	LLMModel         string        `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMTimeout       time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`

	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"500"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"50"`

	RelevanceTemperature float64 `envconfig:"RELEVANCE_TEMPERATURE" default:"10"`
	MinRelevance         float64 `envconfig:"MIN_RELEVANCE" default:"0.85"`
	AnswerMinRelevance   float64 `envconfig:"ANSWER_MIN_RELEVANCE" default:"0.89"`
	MinContextChars      int     `envconfig:"MIN_CONTEXT_CHARS" default:"200"`

	IndexPath        string        `envconfig:"INDEX_PATH" default:"data/index.bin"`
	SnapshotInterval time.Duration `envconfig:"SNAPSHOT_INTERVAL" default:"60s"`

	// API keys as "key1:owner1,key2:owner2"
	APIKeys string `envconfig:"API_KEYS"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DOCSAGE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// ParseAPIKeys splits the API_KEYS value into a key to owner map.
// Malformed entries are skipped.
func (c *Config) ParseAPIKeys() map[string]string {
	keys := make(map[string]string)
	if c.APIKeys == "" {
		return keys
	}
	for _, pair := range strings.Split(c.APIKeys, ",") {
		key, owner, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			continue
		}
		key, owner = strings.TrimSpace(key), strings.TrimSpace(owner)
		if key == "" || owner == "" {
			continue
		}
		keys[key] = owner
	}
	return keys
}
