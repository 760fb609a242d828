package model

// EventRecord is the subset of a Kubernetes Event the collector retains
// (spec.md §4.3 listEvents).
type EventRecord struct {
	UID             string
	Type            string
	Reason          string
	Message         string
	InvolvedObject  OwnerReference
	Timestamp       int64 // unix nanos; lastTimestamp ?? eventTime, see spec.md §4.5
}

// ComponentStatus is the collected (status, events, logs) for one pod in a
// stack (spec.md §3 StackBundle.stack.components).
type ComponentStatus struct {
	Name   string
	Status string
	Events []EventRecord
	Logs   []string
}

// PrimaryPodBundle is the collected data for the pod that triggered the
// diagnosis.
type PrimaryPodBundle struct {
	Name            string
	Namespace       string
	Events          []EventRecord
	Logs            []string
	ContainerStates []SnapshotContainerState
}

// StackInfo is the optional multi-pod portion of a StackBundle.
type StackInfo struct {
	ReleaseName string
	Confidence  float64
	Components  []ComponentStatus
}

// RuleHint is the optional local triage hint the rule matcher produces over
// the primary pod's collected data (spec.md §2 flow: "Rule matcher runs
// inside collector for optional local hint"; §4.2).
type RuleHint struct {
	RuleID       string
	Summary      string
	Confidence   float64
	SuggestedFix string
	Tags         []string
}

// StackBundle is the diagnostic collector's output (spec.md §3, §4.5). Stack
// is nil when resolver confidence was below threshold or the caller asked for
// a single-pod bundle. Hint is nil when no rule fired.
type StackBundle struct {
	PrimaryPod PrimaryPodBundle
	Stack      *StackInfo
	Hint       *RuleHint
}
