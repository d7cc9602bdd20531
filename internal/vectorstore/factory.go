package vectorstore

import (
	"database/sql"
	"fmt"
	"time"
)

// FactoryConfig selects and configures a Store backend.
type FactoryConfig struct {
	Provider  string // "milvus", "sqlite", or "memory"
	MilvusURL string
	Token     string
	Timeout   time.Duration
	DB        *sql.DB // required for the sqlite provider
}

// New creates a Store for the configured provider.
func New(cfg FactoryConfig) (Store, error) {
	switch cfg.Provider {
	case "milvus":
		return NewMilvus(MilvusConfig{BaseURL: cfg.MilvusURL, Token: cfg.Token, Timeout: cfg.Timeout})
	case "sqlite":
		if cfg.DB == nil {
			return nil, fmt.Errorf("sqlite provider requires an open database")
		}
		return NewSQLite(cfg.DB), nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown vector store provider: %q", cfg.Provider)
	}
}
