package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/paperscope/paperscope/internal/core"
)

const (
	// DefaultDailyLimit is the provider's free-tier allowance for metered models.
	DefaultDailyLimit = 50
	// PaidDailyLimit applies once the account has purchased credits.
	PaidDailyLimit = 1000
	// DefaultMaxQuotaWait bounds how long CheckAndRecord will sleep for the UTC rollover.
	DefaultMaxQuotaWait = time.Hour

	meteredSuffix = ":free"
)

// ErrQuotaExhausted is matched by errors.Is for any QuotaExhaustedError.
var ErrQuotaExhausted = errors.New("daily quota exhausted")

// QuotaExhaustedError reports a daily quota that cannot be waited out.
type QuotaExhaustedError struct {
	Model   string
	Count   int
	Limit   int
	ResetAt time.Time
	Wait    time.Duration
}

func (e *QuotaExhaustedError) Error() string {
	return fmt.Sprintf("daily quota exhausted for %s: %d/%d requests, resets at %s (in %s)",
		e.Model, e.Count, e.Limit, e.ResetAt.Format(time.RFC3339), e.Wait.Round(time.Second))
}

// Is lets errors.Is match ErrQuotaExhausted.
func (e *QuotaExhaustedError) Is(target error) bool {
	return target == ErrQuotaExhausted
}

// IsMetered reports whether a model identifier counts against the daily quota.
func IsMetered(model string) bool {
	return strings.HasSuffix(strings.TrimSpace(model), meteredSuffix)
}

// DailyQuota enforces a per-UTC-day request ceiling on metered models.
type DailyQuota struct {
	Limit     int
	PaidLimit int
	// MaxWait is the longest the tracker will sleep for the next UTC midnight.
	MaxWait time.Duration
	Clock   func() time.Time
	Sleep   func(ctx context.Context, d time.Duration) error
	OnWait  func(wait time.Duration)
	// OnRecord observes every recorded request, e.g. to journal it to disk.
	OnRecord func(model string, at time.Time)
	// OnRelease observes a slot handed back by Release.
	OnRelease func(model string, at time.Time)

	mu         sync.Mutex
	paid       bool
	timestamps []time.Time
}

// NewDailyQuota builds a tracker with the given free-tier limit.
func NewDailyQuota(limit int) *DailyQuota {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &DailyQuota{Limit: limit, PaidLimit: PaidDailyLimit, MaxWait: DefaultMaxQuotaWait}
}

// SetPaidTier switches between the free and paid daily limits.
func (q *DailyQuota) SetPaidTier(paid bool) {
	if q == nil {
		return
	}
	q.mu.Lock()
	q.paid = paid
	q.mu.Unlock()
}

// SetLimit overrides the free-tier limit. Non-positive values restore the default.
func (q *DailyQuota) SetLimit(limit int) {
	if q == nil {
		return
	}
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	q.mu.Lock()
	q.Limit = limit
	q.mu.Unlock()
}

// CheckAndRecord records one request for a metered model.
//
// When the limit is reached it sleeps until the next UTC midnight if that is
// within MaxWait, otherwise it returns a *QuotaExhaustedError without recording.
// Unmetered models pass through untouched.
func (q *DailyQuota) CheckAndRecord(ctx context.Context, model string) error {
	_, err := q.Reserve(ctx, model)
	return err
}

// Reserve is CheckAndRecord returning the recorded time, so the slot can be
// handed back with Release. The time is zero when nothing was recorded.
func (q *DailyQuota) Reserve(ctx context.Context, model string) (time.Time, error) {
	if q == nil || !IsMetered(model) {
		return time.Time{}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		wait, recordedAt, err := q.tryRecord(model)
		if err != nil {
			return time.Time{}, err
		}
		if wait <= 0 {
			if q.OnRecord != nil {
				q.OnRecord(model, recordedAt)
			}
			return recordedAt, nil
		}
		if q.OnWait != nil {
			q.OnWait(wait)
		}
		if err := q.sleep(ctx, wait); err != nil {
			return time.Time{}, err
		}
	}
}

// Release returns a slot taken by Reserve for a request that was never sent.
func (q *DailyQuota) Release(model string, at time.Time) {
	if q == nil || at.IsZero() {
		return
	}
	q.mu.Lock()
	released := false
	for i := len(q.timestamps) - 1; i >= 0; i-- {
		if q.timestamps[i].Equal(at) {
			q.timestamps = append(q.timestamps[:i], q.timestamps[i+1:]...)
			released = true
			break
		}
	}
	q.mu.Unlock()

	if released && q.OnRelease != nil {
		q.OnRelease(model, at)
	}
}

func (q *DailyQuota) tryRecord(model string) (time.Duration, time.Time, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.evictLocked(now)

	limit := q.limitLocked()
	if len(q.timestamps) < limit {
		q.timestamps = append(q.timestamps, now)
		return 0, now, nil
	}

	reset := nextUTCMidnight(now)
	wait := reset.Sub(now)
	if wait > q.maxWait() {
		return 0, time.Time{}, &QuotaExhaustedError{
			Model:   model,
			Count:   len(q.timestamps),
			Limit:   limit,
			ResetAt: reset,
			Wait:    wait,
		}
	}
	return wait, time.Time{}, nil
}

// Restore seeds the tracker with previously journaled request times.
// Entries from other UTC days are dropped on the next eviction.
func (q *DailyQuota) Restore(timestamps []time.Time) {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.timestamps = append(q.timestamps, timestamps...)
	sort.Slice(q.timestamps, func(i, j int) bool { return q.timestamps[i].Before(q.timestamps[j]) })
	q.evictLocked(q.now())
}

// Status reports today's usage.
func (q *DailyQuota) Status() core.DailyQuotaStatus {
	if q == nil {
		return core.DailyQuotaStatus{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.evictLocked(now)
	limit := q.limitLocked()
	remaining := limit - len(q.timestamps)
	if remaining < 0 {
		remaining = 0
	}
	return core.DailyQuotaStatus{
		Date:      now.UTC().Format("2006-01-02"),
		Count:     len(q.timestamps),
		Limit:     limit,
		Remaining: remaining,
		PaidTier:  q.paid,
		ResetsAt:  nextUTCMidnight(now),
	}
}

func (q *DailyQuota) evictLocked(now time.Time) {
	today := now.UTC().Format("2006-01-02")
	kept := q.timestamps[:0]
	for _, ts := range q.timestamps {
		if ts.UTC().Format("2006-01-02") == today {
			kept = append(kept, ts)
		}
	}
	q.timestamps = kept
}

func (q *DailyQuota) limitLocked() int {
	if q.paid {
		if q.PaidLimit > 0 {
			return q.PaidLimit
		}
		return PaidDailyLimit
	}
	if q.Limit <= 0 {
		return DefaultDailyLimit
	}
	return q.Limit
}

func (q *DailyQuota) maxWait() time.Duration {
	if q.MaxWait <= 0 {
		return DefaultMaxQuotaWait
	}
	return q.MaxWait
}

func (q *DailyQuota) now() time.Time {
	if q.Clock != nil {
		return q.Clock()
	}
	return time.Now().UTC()
}

func (q *DailyQuota) sleep(ctx context.Context, d time.Duration) error {
	if q.Sleep != nil {
		return q.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func nextUTCMidnight(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day()+1, 0, 0, 0, 0, time.UTC)
}
