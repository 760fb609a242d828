// Package config declares the frozen configuration shape the core depends on
// (spec.md §6). Loading and validating it from the environment is an
// external concern (cmd/podsleuthd); this package only owns the struct shape
// and its defaults so every component can depend on a single immutable
// value, never a live settings store.
package config

import (
	"time"

	"github.com/opsdev/podsleuthd/internal/model"
)

// RetryPolicy is shared shape for alerting.retry.* (spec.md §6).
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// ReconnectPolicy mirrors resilience.reconnect.* (spec.md §6).
type ReconnectPolicy struct {
	Enabled                bool
	InitialBackoff         time.Duration
	MaxBackoff             time.Duration
	Multiplier             float64
	MaxConsecutiveFailures int
}

// Config is the frozen, immutable-after-start configuration object (spec.md
// §6's table, §5 "configuration: immutable after start; no hot-reload").
type Config struct {
	Namespaces        []string // optional; nil means "discover all"
	ExcludeNamespaces []string

	MinRestartThreshold int32
	MaxPendingDuration  time.Duration

	DiagnosisEnabled bool
	DiagnosisTimeout time.Duration

	CacheTTL        time.Duration
	CacheMaxEntries int

	AlertingSeverityFilters []model.Severity
	AlertingRetry           RetryPolicy

	Reconnect ReconnectPolicy
}

// DefaultExcludeNamespaces is spec.md §4.9's stated default.
var DefaultExcludeNamespaces = []string{"kube-system", "kube-public", "kube-node-lease"}

// Default returns a Config populated with every default spec.md §4, §6
// state explicitly, suitable as a starting point before environment
// overrides are applied.
func Default() Config {
	return Config{
		ExcludeNamespaces:   append([]string(nil), DefaultExcludeNamespaces...),
		MinRestartThreshold: 3,
		MaxPendingDuration:  10 * time.Minute,
		DiagnosisEnabled:    true,
		DiagnosisTimeout:    30 * time.Second,
		CacheTTL:            5 * time.Minute,
		CacheMaxEntries:     1000,
		AlertingSeverityFilters: []model.Severity{
			model.SeverityHigh, model.SeverityCritical,
		},
		AlertingRetry: RetryPolicy{
			MaxAttempts: 3,
			Backoff:     time.Second,
			MaxBackoff:  10 * time.Second,
		},
		Reconnect: ReconnectPolicy{
			Enabled:                true,
			InitialBackoff:         time.Second,
			MaxBackoff:             30 * time.Second,
			Multiplier:             2,
			MaxConsecutiveFailures: 5,
		},
	}
}

// AlertsSeverity reports whether sev is in AlertingSeverityFilters.
func (c Config) AlertsSeverity(sev model.Severity) bool {
	for _, s := range c.AlertingSeverityFilters {
		if s == sev {
			return true
		}
	}
	return false
}
