package model

// CacheStats is the read-only cache summary in a HealthSnapshot.
type CacheStats struct {
	Entries int
	HitRate float64
}

// HealthSnapshot is the read-only copy healthSnapshot() returns (spec.md
// §4.9): counters plus {activeNamespaces, connectionState, cacheStats}.
type HealthSnapshot struct {
	TotalFailuresDetected  int64
	DiagnosisCallsExecuted int64
	ReconnectionAttempts   int64

	ActiveNamespaces []string
	ConnectionState  ConnectionState
	CacheStats       CacheStats
}
