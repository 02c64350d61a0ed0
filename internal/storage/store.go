package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"txguard/internal/config"
	"txguard/internal/model"
)

// Store persists the evaluation audit trail.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error
	SaveEvaluation(ctx context.Context, rec model.AuditRecord) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]model.AuditRecord, error)
}

// NewStore opens the configured store. It returns nil when storage is disabled.
func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

const defaultRecentLimit = 100

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) Ping(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	return b.db.PingContext(ctx)
}

func (b *baseStore) exec(ctx context.Context, stmts []string) error {
	if b.db == nil {
		return nil
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func recentLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	return limit
}

func encodeFlags(flags []string) string {
	if flags == nil {
		flags = []string{}
	}
	data, _ := json.Marshal(flags)
	return string(data)
}

func decodeFlags(raw string) []string {
	flags := []string{}
	if raw == "" {
		return flags
	}
	if err := json.Unmarshal([]byte(raw), &flags); err != nil {
		return []string{}
	}
	return flags
}
