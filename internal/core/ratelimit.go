package core

import "time"

// RateWindowStatus reports sliding-window occupancy.
type RateWindowStatus struct {
	RequestsInWindow int           `json:"requests_in_window"`
	MaxRequests      int           `json:"max_requests"`
	Window           time.Duration `json:"-"`
	WindowSeconds    float64       `json:"window_seconds"`
	TimeUntilReset   float64       `json:"time_until_reset"`
}

// DailyQuotaStatus reports calendar-day quota usage for metered models.
type DailyQuotaStatus struct {
	Date      string    `json:"date"`
	Count     int       `json:"count"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	PaidTier  bool      `json:"paid_tier"`
	ResetsAt  time.Time `json:"resets_at"`
}

// CacheStats reports response cache effectiveness.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// GovernanceStatus bundles the governance layer diagnostics.
type GovernanceStatus struct {
	Window RateWindowStatus `json:"window"`
	Daily  DailyQuotaStatus `json:"daily"`
	Cache  CacheStats       `json:"cache"`
}

// RateLimitState is the persisted provider backoff record for one endpoint
// (provider and model). RequestCount counts 429 responses since WindowStart.
type RateLimitState struct {
	RequestCount int        `json:"request_count"`
	WindowStart  time.Time  `json:"window_start"`
	BackoffUntil *time.Time `json:"backoff_until,omitempty"`
	Last429At    *time.Time `json:"last_429_at,omitempty"`
}

// RateLimitEndpoint builds the storage key for a provider/model pair.
func RateLimitEndpoint(provider, model string) string {
	return provider + ":" + model
}
