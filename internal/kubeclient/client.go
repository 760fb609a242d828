// Package kubeclient declares the thin facade over the Kubernetes API the
// rest of the core depends on (spec.md §4.3). The concrete, client-go-backed
// implementation lives in internal/adapters/kubeclient; nothing outside that
// adapter package imports k8s.io/client-go or k8s.io/api directly.
package kubeclient

import (
	"context"

	"github.com/opsdev/podsleuthd/internal/model"
)

// ErrorKind is the small closed set of error kinds the core distinguishes
// (spec.md §4.3, §7). Errors crossing this boundary always carry a kind via
// AsError/KindOf, never a bare, undecorated error.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindNotFound
	ErrorKindForbidden
	ErrorKindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNotFound:
		return "NotFound"
	case ErrorKindForbidden:
		return "Forbidden"
	case ErrorKindTransient:
		return "Transient"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with its ErrorKind.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err, defaulting to ErrorKindTransient for
// errors that did not originate from this package (conservative: treat the
// unknown as retryable rather than silently dropping the namespace).
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindUnknown
	}
	type unwrapper interface{ Unwrap() error }
	for e := err; e != nil; {
		if kerr, ok := e.(*Error); ok {
			return kerr.Kind
		}
		u, ok := e.(unwrapper)
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return ErrorKindTransient
}

// Event is a Kubernetes event as exposed by listEvents (spec.md §4.3).
type Event struct {
	UID             string
	Type            string
	Reason          string
	Message         string
	InvolvedObject  model.OwnerReference
	LastTimestampNs int64 // lastTimestamp ?? eventTime, both as unix nanos; 0 if neither set
}

// WatchEventType is one of ADDED, MODIFIED, DELETED (spec.md §4.3).
type WatchEventType string

const (
	WatchAdded    WatchEventType = "ADDED"
	WatchModified WatchEventType = "MODIFIED"
	WatchDeleted  WatchEventType = "DELETED"
)

// CancelFunc prompt-terminates a watch; after it returns, no further onEvent
// callback is delivered for that watch (spec.md §4.3 guarantee).
type CancelFunc func()

// Client is the KubeClient adapter contract.
type Client interface {
	ReadPod(ctx context.Context, namespace, name string) (*model.Pod, error)
	ListPods(ctx context.Context, namespace string) ([]model.Pod, error)
	ListEvents(ctx context.Context, namespace, fieldSelector string) ([]Event, error)
	StreamLogs(ctx context.Context, namespace, pod, container string, tailLines int64) ([]string, error)
	ListNamespaces(ctx context.Context) ([]string, error)

	// WatchNamespacedPods starts a long-lived watch. onEvent is called
	// serially for each decoded event; onTerminate is called exactly once
	// when the stream ends, with a nil error if termination was caused by
	// the returned CancelFunc. Calling the returned CancelFunc guarantees no
	// further onEvent delivery once it returns.
	WatchNamespacedPods(ctx context.Context, namespace string, onEvent func(WatchEventType, *model.Pod), onTerminate func(error)) (CancelFunc, error)
}
