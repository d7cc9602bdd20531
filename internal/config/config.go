// Package config loads taskrank's configuration from a JSON file in the XDG
// config directory, a local .env file, and TASKRANK_* environment variables,
// in that precedence order (env wins).
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	OpenAI  OpenAIConfig
	Vector  VectorConfig
	Ranking RankingConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port        int
	AuthToken   string
	CORSOrigins string
}

type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	EmbedModel string
	ChatModel  string
}

type VectorConfig struct {
	Provider   string // "sqlite", "milvus", or "memory"
	MilvusURL  string
	Token      string
	Collection string
	Dim        int
	Metric     string
}

type RankingConfig struct {
	Strategy       string
	CandidateLimit int
	EnrichReasons  bool
	EnrichTimeout  string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        4000,
			CORSOrigins: "*",
		},
		OpenAI: OpenAIConfig{
			BaseURL:    "https://api.openai.com/v1",
			EmbedModel: "text-embedding-ada-002",
			ChatModel:  "gpt-4-turbo-preview",
		},
		Vector: VectorConfig{
			Provider:   "sqlite",
			Collection: "task_vectors",
			Dim:        1536,
			Metric:     "COSINE",
		},
		Ranking: RankingConfig{
			Strategy:       "structural",
			CandidateLimit: 10,
			EnrichTimeout:  "10s",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend, a .env file in the
// working directory if present, and TASKRANK_* environment variables.
// Secrets (API keys, tokens) are never read from the file backend.
func Load() (Config, error) {
	godotenv.Load()
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if cfg.OpenAI.APIKey == "" && cfg.OpenAI.BaseURL == defaults().OpenAI.BaseURL {
		return Config{}, fmt.Errorf("missing required config: OpenAI API key. " +
			"Set it via environment variable TASKRANK_OPENAI_API_KEY " +
			"(or point openai.base_url at a server that needs no key)")
	}
	if cfg.Vector.Provider == "milvus" && cfg.Vector.MilvusURL == "" {
		return Config{}, fmt.Errorf("missing required config: Milvus URL. " +
			"Set vector.milvus_url or environment variable TASKRANK_VECTOR_MILVUS_URL")
	}

	return cfg, nil
}

// EnrichTimeoutDuration parses the configured enrichment timeout, falling
// back to the default on a malformed value.
func (c RankingConfig) EnrichTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.EnrichTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}
