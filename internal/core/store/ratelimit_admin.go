package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paperscope/paperscope/internal/core"
)

// RateLimitEntry pairs an endpoint ("openrouter", or "openrouter:<model>")
// with its backoff record.
type RateLimitEntry struct {
	Endpoint string              `json:"endpoint"`
	State    core.RateLimitState `json:"state"`
}

// BackingOff reports whether the provider asked us to wait past now.
func (e RateLimitEntry) BackingOff(now time.Time) bool {
	return e.State.BackoffUntil != nil && e.State.BackoffUntil.After(now)
}

// RateLimitQuery selects endpoints for the rate-limit admin commands.
// Provider matches the provider endpoint itself and every per-model endpoint
// under it.
type RateLimitQuery struct {
	All      bool
	Endpoint string
	Provider string
}

func (q RateLimitQuery) Validate() error {
	if q.All || strings.TrimSpace(q.Endpoint) != "" || strings.TrimSpace(q.Provider) != "" {
		return nil
	}
	return errors.New("must specify --all, --endpoint, or --provider")
}

func (q RateLimitQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	switch {
	case q.All:
		return "", nil, nil
	case strings.TrimSpace(q.Endpoint) != "":
		return "WHERE endpoint = ?", []any{strings.TrimSpace(q.Endpoint)}, nil
	default:
		provider := strings.TrimSuffix(strings.TrimSpace(q.Provider), ":")
		return "WHERE endpoint = ? OR endpoint LIKE ?", []any{provider, provider + ":%"}, nil
	}
}

// ListRateLimits returns matching backoff records ordered by endpoint.
func (s *Store) ListRateLimits(ctx context.Context, q RateLimitQuery) ([]RateLimitEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT endpoint, request_count, window_start, backoff_until, last_429_at
		FROM rate_limits
		%s
		ORDER BY endpoint
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []RateLimitEntry{}
	for rows.Next() {
		var endpoint string
		state, err := scanRateLimit(rows, &endpoint)
		if err != nil {
			return nil, fmt.Errorf("scan rate limits: %w", err)
		}
		entries = append(entries, RateLimitEntry{Endpoint: endpoint, State: *state})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	return entries, nil
}

// ResetRateLimits clears matching backoff records.
func (s *Store) ResetRateLimits(ctx context.Context, q RateLimitQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`DELETE FROM rate_limits %s`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}
	return affected, nil
}
