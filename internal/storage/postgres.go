package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"txguard/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/txguard?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS evaluations (
			id BIGSERIAL PRIMARY KEY,
			evaluation_id TEXT NOT NULL UNIQUE,
			transaction_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			tx_ts TIMESTAMPTZ,
			country TEXT NOT NULL DEFAULT '',
			verdict TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			flags_json JSONB NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			evaluated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_user ON evaluations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_verdict ON evaluations(verdict)`,
	})
}

func (s *postgresStore) SaveEvaluation(ctx context.Context, rec model.AuditRecord) error {
	if s.db == nil {
		return nil
	}
	var txTS sql.NullTime
	if !rec.Timestamp.IsZero() {
		txTS = sql.NullTime{Time: rec.Timestamp.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evaluations (evaluation_id, transaction_id, user_id, tx_ts, country, verdict, score, flags_json, reason, source, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.EvaluationID,
		rec.TransactionID,
		rec.UserID,
		txTS,
		rec.Country,
		string(rec.Verdict),
		rec.Score,
		encodeFlags(rec.Flags),
		rec.Reason,
		rec.Source,
		rec.EvaluatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

func (s *postgresStore) Recent(ctx context.Context, limit int) ([]model.AuditRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT evaluation_id, transaction_id, user_id, tx_ts, country, verdict, score, flags_json::text, reason, source, evaluated_at
		FROM evaluations ORDER BY id DESC LIMIT $1`, recentLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	out := make([]model.AuditRecord, 0)
	for rows.Next() {
		var (
			rec            model.AuditRecord
			verdict, flags string
			txTS           sql.NullTime
			evaluatedAt    time.Time
		)
		if err := rows.Scan(&rec.EvaluationID, &rec.TransactionID, &rec.UserID, &txTS, &rec.Country,
			&verdict, &rec.Score, &flags, &rec.Reason, &rec.Source, &evaluatedAt); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		rec.Verdict = model.Verdict(verdict)
		rec.Flags = decodeFlags(flags)
		if txTS.Valid {
			rec.Timestamp = txTS.Time.UTC()
		}
		rec.EvaluatedAt = evaluatedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
