// Package sqlite stores the usage ledger in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/storage"
)

type Store struct {
	db *sql.DB
}

var _ storage.UsageStore = (*Store)(nil)

// New opens (or creates) the ledger at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS usage (
			request_id TEXT PRIMARY KEY,
			ingress TEXT NOT NULL,
			model TEXT NOT NULL,
			egress TEXT NOT NULL,
			streaming INTEGER NOT NULL DEFAULT 0,
			stop_reason TEXT,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			status INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_model ON usage(model)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_created ON usage(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Record(ctx context.Context, rec *storage.UsageRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage (request_id, ingress, model, egress, streaming, stop_reason,
			input_tokens, output_tokens, status, duration_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Ingress, rec.Model, rec.Egress, rec.Streaming, rec.StopReason,
		rec.InputTokens, rec.OutputTokens, rec.Status, rec.Duration.Nanoseconds(), created.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// Totals sums the ledger per model, ordered by model name. Statuses of 400
// and above count as errors.
func (s *Store) Totals(ctx context.Context) ([]storage.ModelTotals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model,
			COUNT(*),
			SUM(CASE WHEN status >= 400 THEN 1 ELSE 0 END),
			SUM(input_tokens),
			SUM(output_tokens)
		FROM usage
		GROUP BY model
		ORDER BY model`)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	var out []storage.ModelTotals
	for rows.Next() {
		var t storage.ModelTotals
		if err := rows.Scan(&t.Model, &t.Requests, &t.Errors, &t.InputTokens, &t.OutputTokens); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
