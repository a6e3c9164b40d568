package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncQueryCount increments the database query counter.
	IncQueryCount(service, operation string, success bool)

	// ObserveQueryDuration records database query duration.
	ObserveQueryDuration(service, operation string, duration time.Duration)

	// IncNormalizeCache counts normalizer cache lookups.
	IncNormalizeCache(hit bool)

	// IncValidationFailures counts rejected geometry payloads.
	IncValidationFailures(service, field string)

	// IncFilterRewrites counts rewritten filter keys. applied is false when
	// the rewrite produced no constraint.
	IncFilterRewrites(service, field string, applied bool)

	// SetServicesRegistered sets the number of registered services.
	SetServicesRegistered(count int)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncQueryCount implements MetricsCollector.
func (n *NoOpMetrics) IncQueryCount(_, _ string, _ bool) {}

// ObserveQueryDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveQueryDuration(_, _ string, _ time.Duration) {}

// IncNormalizeCache implements MetricsCollector.
func (n *NoOpMetrics) IncNormalizeCache(_ bool) {}

// IncValidationFailures implements MetricsCollector.
func (n *NoOpMetrics) IncValidationFailures(_, _ string) {}

// IncFilterRewrites implements MetricsCollector.
func (n *NoOpMetrics) IncFilterRewrites(_, _ string, _ bool) {}

// SetServicesRegistered implements MetricsCollector.
func (n *NoOpMetrics) SetServicesRegistered(_ int) {}
