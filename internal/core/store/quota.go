package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RecordQuotaUsage journals one metered request so later runs can restore
// the day's count.
func (s *Store) RecordQuotaUsage(ctx context.Context, model string, at time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	model = strings.TrimSpace(model)
	if model == "" {
		return errors.New("model is required")
	}

	if _, err := s.DB.ExecContext(ctx,
		`INSERT INTO quota_usage (model, used_at) VALUES (?, ?)`,
		model, at.UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("record quota usage: %w", err)
	}
	return nil
}

// QuotaUsageSince returns journaled request times at or after since, oldest first.
func (s *Store) QuotaUsageSince(ctx context.Context, since time.Time) ([]time.Time, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT used_at FROM quota_usage WHERE used_at >= ? ORDER BY used_at`,
		since.UTC().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("load quota usage: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	out := []time.Time{}
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, fmt.Errorf("scan quota usage: %w", err)
		}
		out = append(out, time.UnixMilli(ms).UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load quota usage: %w", err)
	}
	return out, nil
}

// DeleteQuotaUsage removes one journaled request for model at the given time.
// It reports whether a row was removed.
func (s *Store) DeleteQuotaUsage(ctx context.Context, model string, at time.Time) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx,
		`DELETE FROM quota_usage WHERE id = (
			SELECT id FROM quota_usage WHERE model = ? AND used_at = ? ORDER BY id DESC LIMIT 1
		)`,
		strings.TrimSpace(model), at.UTC().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("delete quota usage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete quota usage: %w", err)
	}
	return affected > 0, nil
}

// PruneQuotaUsage deletes journal rows older than before.
func (s *Store) PruneQuotaUsage(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx,
		`DELETE FROM quota_usage WHERE used_at < ?`, before.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune quota usage: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune quota usage: %w", err)
	}
	return affected, nil
}
