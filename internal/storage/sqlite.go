package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"txguard/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:txguard.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS evaluations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			evaluation_id TEXT NOT NULL UNIQUE,
			transaction_id TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			tx_ts TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			verdict TEXT NOT NULL,
			score REAL NOT NULL,
			flags_json TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			evaluated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_user ON evaluations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_verdict ON evaluations(verdict)`,
	})
}

func (s *sqliteStore) SaveEvaluation(ctx context.Context, rec model.AuditRecord) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO evaluations (evaluation_id, transaction_id, user_id, tx_ts, country, verdict, score, flags_json, reason, source, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EvaluationID,
		rec.TransactionID,
		rec.UserID,
		formatTime(rec.Timestamp),
		rec.Country,
		string(rec.Verdict),
		rec.Score,
		encodeFlags(rec.Flags),
		rec.Reason,
		rec.Source,
		formatTime(rec.EvaluatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]model.AuditRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT evaluation_id, transaction_id, user_id, tx_ts, country, verdict, score, flags_json, reason, source, evaluated_at
		FROM evaluations ORDER BY id DESC LIMIT ?`, recentLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	out := make([]model.AuditRecord, 0)
	for rows.Next() {
		var (
			rec               model.AuditRecord
			verdict, flags    string
			txTS, evaluatedAt string
		)
		if err := rows.Scan(&rec.EvaluationID, &rec.TransactionID, &rec.UserID, &txTS, &rec.Country,
			&verdict, &rec.Score, &flags, &rec.Reason, &rec.Source, &evaluatedAt); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		rec.Verdict = model.Verdict(verdict)
		rec.Flags = decodeFlags(flags)
		rec.Timestamp = parseTime(txTS)
		rec.EvaluatedAt = parseTime(evaluatedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// sqlite has no native timestamp type; times are stored as RFC 3339 text.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
