package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "TASKRANK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.auth_token", typ: kString, env: "TASKRANK_SERVER_AUTH_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.AuthToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AuthToken },
	},
	{
		key: "server.cors_origins", typ: kString, env: "TASKRANK_SERVER_CORS_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.CORSOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.CORSOrigins },
	},
	{
		key: "openai.base_url", typ: kString, env: "TASKRANK_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.api_key", typ: kString, env: "TASKRANK_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "openai.embed_model", typ: kString, env: "TASKRANK_OPENAI_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.EmbedModel },
	},
	{
		key: "openai.chat_model", typ: kString, env: "TASKRANK_OPENAI_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.ChatModel },
	},
	{
		key: "vector.provider", typ: kString, env: "TASKRANK_VECTOR_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Vector.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Vector.Provider },
	},
	{
		key: "vector.milvus_url", typ: kString, env: "TASKRANK_VECTOR_MILVUS_URL",
		apply:   func(cfg *Config, v any) { cfg.Vector.MilvusURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Vector.MilvusURL },
	},
	{
		key: "vector.token", typ: kString, env: "TASKRANK_VECTOR_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Vector.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Vector.Token },
	},
	{
		key: "vector.collection", typ: kString, env: "TASKRANK_VECTOR_COLLECTION",
		apply:   func(cfg *Config, v any) { cfg.Vector.Collection = v.(string) },
		extract: func(cfg Config) any { return cfg.Vector.Collection },
	},
	{
		key: "vector.dim", typ: kInt, env: "TASKRANK_VECTOR_DIM",
		apply:   func(cfg *Config, v any) { cfg.Vector.Dim = v.(int) },
		extract: func(cfg Config) any { return cfg.Vector.Dim },
	},
	{
		key: "vector.metric", typ: kString, env: "TASKRANK_VECTOR_METRIC",
		apply:   func(cfg *Config, v any) { cfg.Vector.Metric = v.(string) },
		extract: func(cfg Config) any { return cfg.Vector.Metric },
	},
	{
		key: "ranking.strategy", typ: kString, env: "TASKRANK_RANKING_STRATEGY",
		apply:   func(cfg *Config, v any) { cfg.Ranking.Strategy = v.(string) },
		extract: func(cfg Config) any { return cfg.Ranking.Strategy },
	},
	{
		key: "ranking.candidate_limit", typ: kInt, env: "TASKRANK_RANKING_CANDIDATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Ranking.CandidateLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Ranking.CandidateLimit },
	},
	{
		key: "ranking.enrich_reasons", typ: kBool, env: "TASKRANK_RANKING_ENRICH_REASONS",
		apply:   func(cfg *Config, v any) { cfg.Ranking.EnrichReasons = v.(bool) },
		extract: func(cfg Config) any { return cfg.Ranking.EnrichReasons },
	},
	{
		key: "ranking.enrich_timeout", typ: kString, env: "TASKRANK_RANKING_ENRICH_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Ranking.EnrichTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Ranking.EnrichTimeout },
	},
	{
		key: "storage.data_dir", typ: kString, env: "TASKRANK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "TASKRANK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
