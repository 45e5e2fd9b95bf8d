package metrics

import (
	"strconv"
	"time"

	"github.com/paperscope/paperscope/internal/observability"
)

// LLM and governance metric names.
const (
	LLMRequestsTotal   = "llm_requests_total"
	LLMRequestDuration = "llm_request_duration_ms"
	LLMRequestTokens   = "llm_request_tokens"
	CacheLookupsTotal  = "response_cache_lookups_total"
	GovernanceWaits    = "governance_waits_total"
	GovernanceWaitTime = "governance_wait_duration_ms"
	ProviderThrottled  = "provider_throttled_total"
	PapersClassified   = "papers_classified_total"
)

// RecordLLMRequest records one completed (or failed) prompt round trip.
func RecordLLMRequest(prompt, model, status string, tokens int, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := map[string]string{"prompt": prompt, "model": model, "status": status}
	_ = observability.TelemetrySystem.Counter(LLMRequestsTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(LLMRequestDuration, duration, map[string]string{"prompt": prompt})
	if tokens > 0 {
		_ = observability.TelemetrySystem.Gauge(LLMRequestTokens, float64(tokens), map[string]string{"model": model})
	}
}

// RecordCacheLookup records a response cache hit or miss.
func RecordCacheLookup(function string, hit bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(CacheLookupsTotal, 1, map[string]string{
		"function": function,
		"hit":      strconv.FormatBool(hit),
	})
}

// RecordGovernanceWait records a blocking wait imposed by the window ("window") or quota ("quota").
func RecordGovernanceWait(kind string, wait time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(GovernanceWaits, 1, map[string]string{"kind": kind})
	_ = observability.TelemetrySystem.Histogram(GovernanceWaitTime, wait, map[string]string{"kind": kind})
}

// RecordThrottled counts provider 429 responses.
func RecordThrottled() {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ProviderThrottled, 1, nil)
}

// RecordClassification records a terminal classifier decision ("accepted", "rejected_quick", ...).
func RecordClassification(feed, outcome string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(PapersClassified, 1, map[string]string{
		"feed":    feed,
		"outcome": outcome,
	})
}
