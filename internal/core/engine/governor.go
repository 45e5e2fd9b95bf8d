package engine

import (
	"context"
	"time"

	"github.com/paperscope/paperscope/internal/core"
)

// Governor gates every outbound LLM request through the daily quota and then
// the sliding window. A nil Governor admits everything.
type Governor struct {
	Window *SlidingWindow
	Quota  *DailyQuota
}

// NewGovernor wires a window and quota together.
func NewGovernor(window *SlidingWindow, quota *DailyQuota) *Governor {
	return &Governor{Window: window, Quota: quota}
}

// Admit blocks until a request for model may be sent.
// Quota is checked first so an exhausted day fails before a window slot is taken.
// A failed window wait hands the quota slot back.
func (g *Governor) Admit(ctx context.Context, model string) error {
	if g == nil {
		return nil
	}
	at, err := g.Quota.Reserve(ctx, model)
	if err != nil {
		return err
	}
	if err := g.Window.Acquire(ctx); err != nil {
		g.Quota.Release(model, at)
		return err
	}
	return nil
}

// Throttled feeds a provider 429 back into the window.
func (g *Governor) Throttled(retryAfter time.Duration) {
	if g == nil {
		return
	}
	g.Window.Record429(retryAfter)
}

// Status reports window and quota occupancy.
func (g *Governor) Status() core.GovernanceStatus {
	if g == nil {
		return core.GovernanceStatus{}
	}
	return core.GovernanceStatus{
		Window: g.Window.Status(),
		Daily:  g.Quota.Status(),
	}
}
