package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/iatidocs/internal/config"
	"github.com/markdave123-py/iatidocs/internal/core"
	"github.com/markdave123-py/iatidocs/internal/models"
)

var _ core.OutcomeSink = (*OutcomeStore)(nil)

// OutcomeStore persists outcomes to Postgres, one row per URL.
type OutcomeStore struct {
	db *sql.DB
}

func NewOutcomeStore(ctx context.Context, cfg *config.Config) (*OutcomeStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	poolSize := cfg.Workers + 2
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &OutcomeStore{db: db}, nil
}

const upsertOutcome = `
	INSERT INTO document_outcomes
		(url, run_id, title, document_date, format, categories, languages, sources,
		 fingerprint, status, failure_reason, http_status, extracted_text, extracted_meta,
		 cached, duration_ms, completed_at)
	VALUES
		($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8::jsonb,
		 $9, $10, $11, $12, $13, $14::jsonb,
		 $15, $16, $17)
	ON CONFLICT (url) DO UPDATE SET
		run_id = EXCLUDED.run_id,
		title = EXCLUDED.title,
		document_date = EXCLUDED.document_date,
		format = EXCLUDED.format,
		categories = EXCLUDED.categories,
		languages = EXCLUDED.languages,
		sources = EXCLUDED.sources,
		fingerprint = EXCLUDED.fingerprint,
		status = EXCLUDED.status,
		failure_reason = EXCLUDED.failure_reason,
		http_status = EXCLUDED.http_status,
		extracted_text = EXCLUDED.extracted_text,
		extracted_meta = EXCLUDED.extracted_meta,
		cached = EXCLUDED.cached,
		duration_ms = EXCLUDED.duration_ms,
		completed_at = EXCLUDED.completed_at
`

func (s *OutcomeStore) Write(ctx context.Context, o *models.Outcome) error {
	row, err := toRow(o)
	if err != nil {
		return fmt.Errorf("encode outcome %s: %w", o.URL, err)
	}
	_, err = s.db.ExecContext(ctx, upsertOutcome,
		row.URL, row.RunID, row.Title, row.DocumentDate, row.Format,
		row.Categories, row.Languages, row.Sources,
		row.Fingerprint, row.Status, row.FailureReason, row.HTTPStatus,
		row.ExtractedText, row.ExtractedMeta,
		row.Cached, row.DurationMS, row.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert outcome %s: %w", o.URL, err)
	}
	return nil
}

func (s *OutcomeStore) Close(context.Context) error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
