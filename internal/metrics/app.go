package metrics

import (
	"strconv"
	"time"

	"github.com/paperscope/paperscope/internal/observability"
)

// Application metric names.
const (
	RunsTotal           = "pipeline_runs_total"
	RunDuration         = "pipeline_run_duration_ms"
	PapersFetched       = "papers_fetched_total"
	PapersStored        = "papers_stored_total"
	HealthCheckTotal    = "health_check_total"
	HealthCheckDuration = "health_check_duration_ms"
	ServerStartTime     = "server_start_time_seconds"
	ServerUptime        = "server_uptime_seconds"
)

// RecordRun records one pipeline run. stopped marks runs ended early by a
// rate-limit or quota error.
func RecordRun(feed string, stopped bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(RunsTotal, 1, map[string]string{
		"feed":    feed,
		"stopped": strconv.FormatBool(stopped),
	})
	_ = observability.TelemetrySystem.Histogram(RunDuration, duration, map[string]string{"feed": feed})
}

// RecordFetched counts papers a source returned.
func RecordFetched(source string, count int) {
	if observability.TelemetrySystem == nil || count <= 0 {
		return
	}
	_ = observability.TelemetrySystem.Counter(PapersFetched, float64(count), map[string]string{"source": source})
}

// RecordStored counts accepted papers written to the store.
func RecordStored(feed, driver string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(PapersStored, 1, map[string]string{
		"feed":   feed,
		"driver": driver,
	})
}

// RecordHealthCheck records one health check execution.
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, map[string]string{
		"check":  checkName,
		"status": status,
	})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{"check": checkName})
}

// SetServerStartTime records the server start time as a Unix timestamp.
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
	}
}

// SetServerUptime records the server uptime in seconds.
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerUptime, float64(seconds), nil)
	}
}
