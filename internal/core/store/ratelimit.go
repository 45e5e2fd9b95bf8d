package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paperscope/paperscope/internal/core"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRateLimit reads request_count, window_start, backoff_until, last_429_at,
// prefixed by endpoint when one is given.
func scanRateLimit(row rowScanner, endpoint *string) (*core.RateLimitState, error) {
	var (
		requestCount int
		windowStart  int64
		backoffUntil sql.NullInt64
		last429At    sql.NullInt64
	)
	dest := []any{&requestCount, &windowStart, &backoffUntil, &last429At}
	if endpoint != nil {
		dest = append([]any{endpoint}, dest...)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	state := &core.RateLimitState{
		RequestCount: requestCount,
		WindowStart:  time.Unix(windowStart, 0).UTC(),
	}
	if backoffUntil.Valid {
		value := time.Unix(backoffUntil.Int64, 0).UTC()
		state.BackoffUntil = &value
	}
	if last429At.Valid {
		value := time.Unix(last429At.Int64, 0).UTC()
		state.Last429At = &value
	}
	return state, nil
}

// GetRateLimit returns stored backoff state for an endpoint, or nil when none exists.
func (s *Store) GetRateLimit(ctx context.Context, endpoint string) (*core.RateLimitState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT request_count, window_start, backoff_until, last_429_at
		FROM rate_limits
		WHERE endpoint = ?
	`, endpoint)

	state, err := scanRateLimit(row, nil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}
	return state, nil
}

// UpdateRateLimit persists rate limit state for an endpoint.
func (s *Store) UpdateRateLimit(ctx context.Context, endpoint string, state *core.RateLimitState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.New("endpoint is required")
	}
	if state == nil {
		return errors.New("rate limit state is required")
	}

	var backoffUntil sql.NullInt64
	if state.BackoffUntil != nil {
		backoffUntil = sql.NullInt64{Int64: state.BackoffUntil.UTC().Unix(), Valid: true}
	}

	var last429At sql.NullInt64
	if state.Last429At != nil {
		last429At = sql.NullInt64{Int64: state.Last429At.UTC().Unix(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO rate_limits (endpoint, request_count, window_start, backoff_until, last_429_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			request_count = excluded.request_count,
			window_start = excluded.window_start,
			backoff_until = excluded.backoff_until,
			last_429_at = excluded.last_429_at
	`, endpoint, state.RequestCount, state.WindowStart.UTC().Unix(), backoffUntil, last429At)
	if err != nil {
		return fmt.Errorf("store rate limit: %w", err)
	}

	return nil
}

// RecordThrottle persists a 429 for endpoint. Counts restart once a full day
// has passed since the window opened.
func (s *Store) RecordThrottle(ctx context.Context, endpoint string, retryAfter time.Duration, now time.Time) (*core.RateLimitState, error) {
	state, err := s.GetRateLimit(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	now = now.UTC()
	if state == nil || now.Sub(state.WindowStart) >= 24*time.Hour {
		state = &core.RateLimitState{WindowStart: now}
	}
	state.RequestCount++
	state.Last429At = &now
	if retryAfter > 0 {
		until := now.Add(retryAfter)
		state.BackoffUntil = &until
	}

	if err := s.UpdateRateLimit(ctx, endpoint, state); err != nil {
		return nil, err
	}
	return state, nil
}

// ActiveBackoff returns how long endpoint remains in a provider-requested backoff.
func (s *Store) ActiveBackoff(ctx context.Context, endpoint string, now time.Time) (time.Duration, error) {
	state, err := s.GetRateLimit(ctx, endpoint)
	if err != nil || state == nil || state.BackoffUntil == nil {
		return 0, err
	}
	remaining := state.BackoffUntil.Sub(now)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}
