package engine

import (
	"context"
	"sync"
	"time"

	"github.com/paperscope/paperscope/internal/core"
)

const (
	// DefaultWindowLimit matches the provider's free-tier allowance of 20 requests per minute.
	DefaultWindowLimit = 20
	// DefaultWindow is the trailing interval the limit applies to.
	DefaultWindow = time.Minute
	// DefaultMarginRatio is the fraction of the window added to every computed wait.
	DefaultMarginRatio = 0.1
)

// SlidingWindow bounds requests within any trailing window.
//
// Acquire holds the mutex across eviction, the occupancy check and the append,
// and releases it while sleeping. After waking it re-evaluates from scratch.
type SlidingWindow struct {
	Limit  int
	Window time.Duration
	// Margin is added to every computed wait. Zero means DefaultMarginRatio of Window.
	Margin time.Duration
	Clock  func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	// OnWait is invoked before each blocking sleep.
	OnWait func(wait time.Duration)

	mu           sync.Mutex
	timestamps   []time.Time
	backoffUntil time.Time
}

// NewSlidingWindow builds a limiter, falling back to defaults for non-positive values.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	if limit <= 0 {
		limit = DefaultWindowLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &SlidingWindow{Limit: limit, Window: window}
}

// Acquire blocks until one more request fits in the window, then records it.
// A cancelled context aborts the wait without recording.
func (w *SlidingWindow) Acquire(ctx context.Context) error {
	if w == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		wait := w.tryAcquire()
		if wait <= 0 {
			return nil
		}
		if w.OnWait != nil {
			w.OnWait(wait)
		}
		if err := w.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// tryAcquire records a timestamp and returns zero, or returns how long to wait.
func (w *SlidingWindow) tryAcquire() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if now.Before(w.backoffUntil) {
		return w.backoffUntil.Sub(now)
	}

	w.evictLocked(now)
	limit := w.limit()
	if len(w.timestamps) >= limit {
		oldest := w.timestamps[0]
		wait := w.window() - now.Sub(oldest) + w.margin()
		if wait <= 0 {
			wait = time.Millisecond
		}
		return wait
	}

	w.timestamps = append(w.timestamps, now)
	return 0
}

// Record429 pauses all acquisitions until retryAfter has elapsed.
// It is called when the provider reports throttling the local window did not predict.
func (w *SlidingWindow) Record429(retryAfter time.Duration) {
	if w == nil {
		return
	}
	if retryAfter <= 0 {
		retryAfter = w.window()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	until := w.now().Add(retryAfter)
	if until.After(w.backoffUntil) {
		w.backoffUntil = until
	}
}

// Status reports current occupancy without recording anything.
func (w *SlidingWindow) Status() core.RateWindowStatus {
	if w == nil {
		return core.RateWindowStatus{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.evictLocked(now)

	status := core.RateWindowStatus{
		RequestsInWindow: len(w.timestamps),
		MaxRequests:      w.limit(),
		Window:           w.window(),
		WindowSeconds:    w.window().Seconds(),
	}
	if len(w.timestamps) > 0 {
		remaining := w.window() - now.Sub(w.timestamps[0])
		if remaining > 0 {
			status.TimeUntilReset = remaining.Seconds()
		}
	}
	return status
}

// Reset clears recorded timestamps and any provider backoff.
func (w *SlidingWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.timestamps = nil
	w.backoffUntil = time.Time{}
	w.mu.Unlock()
}

func (w *SlidingWindow) evictLocked(now time.Time) {
	window := w.window()
	idx := 0
	for idx < len(w.timestamps) && now.Sub(w.timestamps[idx]) > window {
		idx++
	}
	if idx > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[idx:]...)
	}
}

func (w *SlidingWindow) limit() int {
	if w.Limit <= 0 {
		return DefaultWindowLimit
	}
	return w.Limit
}

func (w *SlidingWindow) window() time.Duration {
	if w.Window <= 0 {
		return DefaultWindow
	}
	return w.Window
}

func (w *SlidingWindow) margin() time.Duration {
	if w.Margin > 0 {
		return w.Margin
	}
	if w.Margin < 0 {
		return 0
	}
	return time.Duration(float64(w.window()) * DefaultMarginRatio)
}

func (w *SlidingWindow) now() time.Time {
	if w != nil && w.Clock != nil {
		return w.Clock()
	}
	return time.Now().UTC()
}

func (w *SlidingWindow) sleep(ctx context.Context, d time.Duration) error {
	if w.Sleep != nil {
		return w.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
