package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.slept = append(f.slept, d)
	f.mu.Unlock()
	return nil
}

func (f *fakeClock) Slept() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.slept...)
}

func newTestWindow(clock *fakeClock, limit int, window time.Duration) *SlidingWindow {
	w := NewSlidingWindow(limit, window)
	w.Clock = clock.Now
	w.Sleep = clock.Sleep
	return w
}

func TestSlidingWindowUnderLimitDoesNotBlock(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestWindow(clock, 5, time.Minute)

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
	}

	require.Empty(t, clock.Slept())
	status := limiter.Status()
	require.Equal(t, 5, status.RequestsInWindow)
	require.Equal(t, 5, status.MaxRequests)
	require.Equal(t, 60.0, status.WindowSeconds)
}

func TestSlidingWindowBlocksPastLimit(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestWindow(clock, 3, time.Minute)
	start := clock.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Acquire(context.Background()))
		clock.Advance(2 * time.Second)
	}
	elapsed := clock.Now().Sub(start)

	require.NoError(t, limiter.Acquire(context.Background()))

	slept := clock.Slept()
	require.Len(t, slept, 1)
	assert.GreaterOrEqual(t, slept[0], time.Minute-elapsed)
	assert.Equal(t, time.Minute-elapsed+6*time.Second, slept[0])
	assert.LessOrEqual(t, limiter.Status().RequestsInWindow, 3)
}

func TestSlidingWindowEvictsExpiredEntries(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestWindow(clock, 2, 10*time.Second)

	require.NoError(t, limiter.Acquire(context.Background()))
	require.NoError(t, limiter.Acquire(context.Background()))
	clock.Advance(11 * time.Second)

	require.Equal(t, 0, limiter.Status().RequestsInWindow)
	require.NoError(t, limiter.Acquire(context.Background()))
	require.Empty(t, clock.Slept())
}

func TestSlidingWindowStatusTimeUntilReset(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestWindow(clock, 10, time.Minute)

	require.Equal(t, 0.0, limiter.Status().TimeUntilReset)

	require.NoError(t, limiter.Acquire(context.Background()))
	clock.Advance(15 * time.Second)

	require.InDelta(t, 45.0, limiter.Status().TimeUntilReset, 0.001)
}

func TestSlidingWindowCancelledWaitDoesNotRecord(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestWindow(clock, 1, time.Minute)
	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := limiter.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, limiter.Status().RequestsInWindow)
}

func TestSlidingWindowRecord429Pauses(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestWindow(clock, 10, time.Minute)

	limiter.Record429(30 * time.Second)
	require.NoError(t, limiter.Acquire(context.Background()))

	require.Equal(t, []time.Duration{30 * time.Second}, clock.Slept())
}

func TestSlidingWindowConcurrentAcquire(t *testing.T) {
	limiter := NewSlidingWindow(50, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, limiter.Acquire(context.Background()))
		}()
	}
	wg.Wait()

	require.Equal(t, 50, limiter.Status().RequestsInWindow)
}

func TestSlidingWindowNilSafe(t *testing.T) {
	var limiter *SlidingWindow
	require.NoError(t, limiter.Acquire(context.Background()))
	require.Equal(t, 0, limiter.Status().MaxRequests)
	limiter.Record429(time.Second)
	limiter.Reset()
}

func TestSlidingWindowDefaults(t *testing.T) {
	limiter := NewSlidingWindow(0, 0)
	require.Equal(t, DefaultWindowLimit, limiter.Limit)
	require.Equal(t, DefaultWindow, limiter.Window)
	require.Equal(t, 6*time.Second, limiter.margin())

	limiter.Margin = -1
	require.Equal(t, time.Duration(0), limiter.margin())
}
