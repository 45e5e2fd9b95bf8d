package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestQuota(clock *fakeClock, limit int) *DailyQuota {
	q := NewDailyQuota(limit)
	q.Clock = clock.Now
	q.Sleep = clock.Sleep
	return q
}

func TestIsMetered(t *testing.T) {
	require.True(t, IsMetered("moonshotai/kimi-dev-72b:free"))
	require.False(t, IsMetered("openai/gpt-4.1-mini"))
	require.False(t, IsMetered(""))
}

func TestDailyQuotaIgnoresUnmeteredModels(t *testing.T) {
	clock := newFakeClock()
	quota := newTestQuota(clock, 1)

	for i := 0; i < 5; i++ {
		require.NoError(t, quota.CheckAndRecord(context.Background(), "openai/gpt-4.1-nano"))
	}
	require.Equal(t, 0, quota.Status().Count)
}

func TestDailyQuotaFailsFastWhenMidnightIsFar(t *testing.T) {
	clock := newFakeClock()
	clock.Advance(10 * time.Hour)
	quota := newTestQuota(clock, 3)
	model := "moonshotai/kimi-dev-72b:free"

	for i := 0; i < 3; i++ {
		require.NoError(t, quota.CheckAndRecord(context.Background(), model))
	}

	err := quota.CheckAndRecord(context.Background(), model)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrQuotaExhausted))

	var exhausted *QuotaExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Count)
	require.Equal(t, 3, exhausted.Limit)
	require.Equal(t, 14*time.Hour, exhausted.Wait)

	status := quota.Status()
	require.Equal(t, 3, status.Count)
	require.Equal(t, 0, status.Remaining)
	require.Empty(t, clock.Slept())
}

func TestDailyQuotaWaitsForNearbyMidnight(t *testing.T) {
	clock := newFakeClock()
	clock.Advance(23*time.Hour + 30*time.Minute)
	quota := newTestQuota(clock, 2)
	model := "vendor/model:free"

	require.NoError(t, quota.CheckAndRecord(context.Background(), model))
	require.NoError(t, quota.CheckAndRecord(context.Background(), model))
	require.NoError(t, quota.CheckAndRecord(context.Background(), model))

	require.Equal(t, []time.Duration{30 * time.Minute}, clock.Slept())
	status := quota.Status()
	require.Equal(t, "2025-01-02", status.Date)
	require.Equal(t, 1, status.Count)
}

func TestDailyQuotaRollsOverAtUTCMidnight(t *testing.T) {
	clock := newFakeClock()
	quota := newTestQuota(clock, 1)
	model := "vendor/model:free"

	require.NoError(t, quota.CheckAndRecord(context.Background(), model))
	clock.Advance(24 * time.Hour)

	require.NoError(t, quota.CheckAndRecord(context.Background(), model))
	require.Empty(t, clock.Slept())
	require.Equal(t, 1, quota.Status().Count)
}

func TestDailyQuotaPaidTier(t *testing.T) {
	clock := newFakeClock()
	quota := newTestQuota(clock, 1)
	quota.SetPaidTier(true)

	status := quota.Status()
	require.True(t, status.PaidTier)
	require.Equal(t, PaidDailyLimit, status.Limit)
	require.Equal(t, PaidDailyLimit, status.Remaining)

	for i := 0; i < 5; i++ {
		require.NoError(t, quota.CheckAndRecord(context.Background(), "vendor/model:free"))
	}
	require.Equal(t, PaidDailyLimit-5, quota.Status().Remaining)

	quota.SetPaidTier(false)
	require.Equal(t, 1, quota.Status().Limit)
}

func TestDailyQuotaSetLimit(t *testing.T) {
	clock := newFakeClock()
	quota := newTestQuota(clock, 1)

	quota.SetLimit(7)
	require.Equal(t, 7, quota.Status().Limit)

	quota.SetLimit(0)
	require.Equal(t, DefaultDailyLimit, quota.Status().Limit)
}

func TestDailyQuotaReserveAndRelease(t *testing.T) {
	clock := newFakeClock()
	quota := newTestQuota(clock, 2)
	var released []time.Time
	quota.OnRelease = func(model string, at time.Time) { released = append(released, at) }

	at, err := quota.Reserve(context.Background(), "vendor/model:free")
	require.NoError(t, err)
	require.Equal(t, clock.Now(), at)
	require.Equal(t, 1, quota.Status().Count)

	quota.Release("vendor/model:free", at)
	require.Equal(t, 0, quota.Status().Count)
	require.Equal(t, []time.Time{at}, released)

	// A second release of the same slot, or a zero time, is a no-op.
	quota.Release("vendor/model:free", at)
	quota.Release("vendor/model:free", time.Time{})
	require.Len(t, released, 1)

	unmetered, err := quota.Reserve(context.Background(), "openai/gpt-4.1-nano")
	require.NoError(t, err)
	require.True(t, unmetered.IsZero())
}

func TestDailyQuotaStatusResetTime(t *testing.T) {
	clock := newFakeClock()
	clock.Advance(5 * time.Hour)
	quota := newTestQuota(clock, DefaultDailyLimit)

	status := quota.Status()
	require.Equal(t, DefaultDailyLimit, status.Limit)
	require.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), status.ResetsAt)
}

func TestDailyQuotaRestoreAndJournal(t *testing.T) {
	clock := newFakeClock()
	clock.Advance(10 * time.Hour)
	quota := newTestQuota(clock, 3)
	model := "moonshotai/kimi-dev-72b:free"

	var journaled []time.Time
	quota.OnRecord = func(m string, at time.Time) {
		require.Equal(t, model, m)
		journaled = append(journaled, at)
	}

	yesterday := clock.Now().Add(-24 * time.Hour)
	quota.Restore([]time.Time{clock.Now().Add(-time.Hour), yesterday, clock.Now().Add(-2 * time.Hour)})
	require.Equal(t, 2, quota.Status().Count)

	require.NoError(t, quota.CheckAndRecord(context.Background(), model))
	require.Len(t, journaled, 1)
	require.True(t, errors.Is(quota.CheckAndRecord(context.Background(), model), ErrQuotaExhausted))
	require.Len(t, journaled, 1)
}
