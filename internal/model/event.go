package model

import "time"

// FailurePattern enumerates the classifier's six recognized patterns
// (spec.md §3). Order here has no significance; rule precedence lives in the
// classifier itself.
type FailurePattern string

const (
	PatternPodPhaseFailed        FailurePattern = "pod-phase-failed"
	PatternLongPending           FailurePattern = "long-pending"
	PatternHighRestartCount      FailurePattern = "high-restart-count"
	PatternContainerWaitingError FailurePattern = "container-waiting-error"
	PatternContainerTerminated   FailurePattern = "container-terminated-error"
	PatternResourceConstraint    FailurePattern = "resource-constraint"
)

// Severity is totally ordered: informational < low < medium < high < critical.
type Severity int

const (
	SeverityInformational Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInformational:
		return "informational"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseSeverity is the inverse of Severity.String, used when severity filters
// are loaded from configuration (spec.md §6 alerting.severityFilters).
func ParseSeverity(s string) (Severity, bool) {
	switch s {
	case "informational":
		return SeverityInformational, true
	case "low":
		return SeverityLow, true
	case "medium":
		return SeverityMedium, true
	case "high":
		return SeverityHigh, true
	case "critical":
		return SeverityCritical, true
	default:
		return 0, false
	}
}

// SnapshotContainerState is one entry of FailureEvent.Snapshot.ContainerStates.
type SnapshotContainerState struct {
	Name         string
	Kind         ContainerKind
	State        ContainerStateKind
	Reason       string
	RestartCount int32
	ExitCode     *int32
}

// Snapshot is the point-in-time capture of the pod that triggered a
// FailureEvent (spec.md §3).
type Snapshot struct {
	Phase             PodPhase
	CreationTimestamp time.Time
	Labels            map[string]string
	OwnerReferences   []OwnerReference
	ContainerStates   []SnapshotContainerState
}

// Diagnosis is the mutable result slot attached to a FailureEvent by the
// diagnosis dispatch stage (spec.md §3, §4.9). It is the one field of
// FailureEvent that is set after construction.
type Diagnosis struct {
	Executed   bool
	Cached     bool
	DurationMs int64
	Result     string
}

// FailureEvent is immutable once constructed except for its Diagnosis and
// CorrelationID slots.
type FailureEvent struct {
	PodName    string
	Namespace  string
	DetectedAt time.Time

	// CorrelationID ties together the watcher log lines, the alert, and the
	// backend forward request for a single failure (assigned by the watcher,
	// not the classifier, so Classify stays a pure function of its inputs).
	CorrelationID string

	Pattern  FailurePattern
	Severity Severity
	Reason   string
	Message  string

	Snapshot Snapshot

	Diagnosis Diagnosis
}

// Key returns the "<namespace>/<pod>" cache key for this event (spec.md §3,
// §4.7).
func (e *FailureEvent) Key() string {
	return e.Namespace + "/" + e.PodName
}
