// Package model defines the tagged accessor layer the core operates on.
//
// The Kubernetes client SDK's typed objects never leak past the KubeClient
// adapter boundary (see internal/kubeclient). Everything downstream of it
// works only with the shapes declared here.
package model

import "time"

// PodPhase mirrors corev1.PodPhase without importing the Kubernetes API types.
type PodPhase string

const (
	PodPending   PodPhase = "Pending"
	PodRunning   PodPhase = "Running"
	PodSucceeded PodPhase = "Succeeded"
	PodFailed    PodPhase = "Failed"
	PodUnknown   PodPhase = "Unknown"
)

// ContainerKind distinguishes init containers from main containers.
type ContainerKind string

const (
	ContainerKindInit ContainerKind = "init"
	ContainerKindMain ContainerKind = "main"
)

// ContainerStateKind is the tag of a ContainerState union.
type ContainerStateKind string

const (
	ContainerStateRunning    ContainerStateKind = "running"
	ContainerStateWaiting    ContainerStateKind = "waiting"
	ContainerStateTerminated ContainerStateKind = "terminated"
	ContainerStateUnknown    ContainerStateKind = "unknown"
)

// ContainerState is a tagged union over the three states a container status
// can report, plus an Unknown fallback for anything the adapter could not
// decode confidently.
type ContainerState struct {
	Kind     ContainerStateKind
	Reason   string
	Message  string
	ExitCode int32 // only meaningful when Kind == ContainerStateTerminated
}

// ContainerStatus is one entry of Pod.ContainerStatuses / InitContainerStatuses.
type ContainerStatus struct {
	Name         string
	Kind         ContainerKind
	RestartCount int32
	State        ContainerState
}

// OwnerReference is the subset of metav1.OwnerReference the core needs.
type OwnerReference struct {
	Kind string
	Name string
	UID  string
}

// Pod is the opaque input described in spec.md §3: consumed only through
// these fields, never through a Kubernetes SDK type.
type Pod struct {
	Name              string
	Namespace         string
	Phase             PodPhase
	StatusReason      string
	StatusMessage     string
	CreationTimestamp time.Time
	Labels            map[string]string
	Annotations       map[string]string
	OwnerReferences   []OwnerReference
	Images            []ContainerImage

	// ContainerStatuses/InitContainerStatuses are walked in this order by the
	// classifier (spec.md §4.6 tie-break): main containers first, then init.
	ContainerStatuses     []ContainerStatus
	InitContainerStatuses []ContainerStatus
}

// ContainerImage names a container and the image it runs, used only by the
// stack resolver's optional remote-inference request (spec.md §4.4).
type ContainerImage struct {
	Name  string
	Image string
}

// AllContainerStatuses returns ContainerStatuses followed by
// InitContainerStatuses, the exact iteration order spec.md §4.6 mandates for
// the classifier's tie-break.
func (p *Pod) AllContainerStatuses() []ContainerStatus {
	out := make([]ContainerStatus, 0, len(p.ContainerStatuses)+len(p.InitContainerStatuses))
	out = append(out, p.ContainerStatuses...)
	out = append(out, p.InitContainerStatuses...)
	return out
}

// ContainerCount returns the number of init+main containers observed, used to
// validate the snapshot-length invariant (spec.md §3).
func (p *Pod) ContainerCount() int {
	return len(p.ContainerStatuses) + len(p.InitContainerStatuses)
}
