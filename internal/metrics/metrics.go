// Package metrics wraps the spec.md §3 Metrics counters with
// prometheus/client_golang collectors, exposed read-only via
// healthSnapshot() (spec.md §4.9) and the health/metrics HTTP adapter.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the process-wide counter set. Safe for concurrent use; every
// Inc* is monotonic except cacheEntries/cacheHitRate (spec.md §5).
//
// Each counter is kept twice: once as a prometheus.Counter for the /metrics
// exposition adapter, and once as an atomic int64 shadow so healthSnapshot()
// (spec.md §4.9) can read the value back directly — prometheus.Counter
// itself exposes no public read path outside its own registry/exposition
// format.
type Metrics struct {
	totalFailuresDetected  prometheus.Counter
	diagnosisCallsExecuted prometheus.Counter
	reconnectionAttempts   prometheus.Counter
	cacheEntries           prometheus.Gauge
	cacheHitRate           prometheus.Gauge

	totalFailuresDetectedN  int64
	diagnosisCallsExecutedN int64
	reconnectionAttemptsN   int64

	mu              sync.Mutex
	lastHealthCheck time.Time
}

// New constructs a Metrics and registers its collectors with reg. Pass
// prometheus.NewRegistry() in tests to avoid the global default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		totalFailuresDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "podsleuthd", Name: "total_failures_detected",
			Help: "Total pod/container failures classified.",
		}),
		diagnosisCallsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "podsleuthd", Name: "diagnosis_calls_executed",
			Help: "Total non-cached diagnosis collections executed.",
		}),
		reconnectionAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "podsleuthd", Name: "reconnection_attempts",
			Help: "Total watch-stream reconnect attempts across all namespaces.",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "podsleuthd", Name: "cache_entries",
			Help: "Current diagnosis cache entry count.",
		}),
		cacheHitRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "podsleuthd", Name: "cache_hit_rate",
			Help: "Coarse diagnosis cache hit rate.",
		}),
	}
	reg.MustRegister(m.totalFailuresDetected, m.diagnosisCallsExecuted, m.reconnectionAttempts, m.cacheEntries, m.cacheHitRate)
	return m
}

func (m *Metrics) IncTotalFailuresDetected() {
	m.totalFailuresDetected.Inc()
	atomic.AddInt64(&m.totalFailuresDetectedN, 1)
}

func (m *Metrics) IncDiagnosisCallsExecuted() {
	m.diagnosisCallsExecuted.Inc()
	atomic.AddInt64(&m.diagnosisCallsExecutedN, 1)
}

func (m *Metrics) IncReconnectionAttempts() {
	m.reconnectionAttempts.Inc()
	atomic.AddInt64(&m.reconnectionAttemptsN, 1)
}

// TotalFailuresDetected, DiagnosisCallsExecuted, and ReconnectionAttempts
// read back the counters above for healthSnapshot() (spec.md §3, §4.9).
func (m *Metrics) TotalFailuresDetected() int64 {
	return atomic.LoadInt64(&m.totalFailuresDetectedN)
}
func (m *Metrics) DiagnosisCallsExecuted() int64 {
	return atomic.LoadInt64(&m.diagnosisCallsExecutedN)
}
func (m *Metrics) ReconnectionAttempts() int64 {
	return atomic.LoadInt64(&m.reconnectionAttemptsN)
}

// SetCacheStats updates the two non-monotonic gauges (spec.md §5).
func (m *Metrics) SetCacheStats(entries int, hitRate float64) {
	m.cacheEntries.Set(float64(entries))
	m.cacheHitRate.Set(hitRate)
}

// RecordHealthCheck timestamps the most recent health snapshot computation.
func (m *Metrics) RecordHealthCheck(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastHealthCheck = t
}

// LastHealthCheck returns the timestamp set by the most recent
// RecordHealthCheck call.
func (m *Metrics) LastHealthCheck() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHealthCheck
}
