package memory

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by NewStore.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
	BackendMemory   = "memory"
)

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend     string
	FilePath    string
	SQLitePath  string
	DatabaseURL string
	BadgerDir   string
}

// NewStore builds the configured backend. An empty backend means the JSON
// file store, unless a DATABASE_URL is configured, in which case postgres
// is used.
func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendFile
		if strings.TrimSpace(cfg.DatabaseURL) != "" {
			backend = BackendPostgres
		}
	}

	switch backend {
	case BackendFile:
		return NewFileStore(cfg.FilePath)
	case BackendSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case BackendPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("memory backend postgres requires DATABASE_URL")
		}
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	case BackendBadger:
		return NewBadgerStore(cfg.BadgerDir)
	case BackendMemory:
		return NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported memory backend %q (expected file|sqlite|postgres|badger|memory)", cfg.Backend)
	}
}
