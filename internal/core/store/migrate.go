package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS papers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		feed_type TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		abstract TEXT,
		published_date TEXT,
		authors TEXT,
		source TEXT,
		paper_id TEXT,
		cited_by_count INTEGER DEFAULT 0,
		publication_type TEXT,
		code_repository TEXT,
		is_relevant INTEGER NOT NULL DEFAULT 0,
		topics TEXT,
		relevance_score INTEGER DEFAULT 0,
		relevance_reason TEXT,
		paper_type TEXT,
		modalities TEXT,
		summary TEXT,
		star INTEGER DEFAULT 0,
		stored_at INTEGER NOT NULL,
		UNIQUE(feed_type, url)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_papers_feed_stored ON papers(feed_type, stored_at);`,
	`CREATE TABLE IF NOT EXISTS quota_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		model TEXT NOT NULL,
		used_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_quota_usage_used_at ON quota_usage(used_at);`,
	`CREATE TABLE IF NOT EXISTS rate_limits (
		endpoint TEXT PRIMARY KEY,
		request_count INTEGER NOT NULL DEFAULT 0,
		window_start INTEGER NOT NULL,
		backoff_until INTEGER,
		last_429_at INTEGER
	);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	// stores created before starring lack the column
	if err := s.ensureColumn(ctx, "papers", "star", "INTEGER DEFAULT 0"); err != nil {
		return err
	}

	return nil
}

func (s *Store) ensureColumn(ctx context.Context, table, column, columnDef string) error {
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect %s schema: %w", table, err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("inspect %s columns: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s columns: %w", table, err)
	}

	if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, columnDef)); err != nil {
		return fmt.Errorf("add %s.%s column: %w", table, column, err)
	}

	return nil
}
