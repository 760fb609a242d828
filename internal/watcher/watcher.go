// Package watcher implements the namespace watcher (spec.md §4.8): one
// logical worker per namespace, maintaining a watch stream, dispatching
// decoded events to the classifier, and reconnecting with exponential
// backoff on stream termination.
//
// The teacher has no watcher/reconnect concept of its own (controller-runtime
// hides reconnection inside its informer machinery); the reconnect-loop shape
// here is grounded on the pack's raw watch-loop examples
// (other_examples/.../kubestream.go's PodWatcher.WatchWithRetry: a retry
// counter, exponential delay capped at a max, reset on success), generalized
// to use cenkalti/backoff/v4's policy object instead of hand-rolled doubling.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/opsdev/podsleuthd/internal/classifier"
	"github.com/opsdev/podsleuthd/internal/kubeclient"
	"github.com/opsdev/podsleuthd/internal/model"
)

// State is one of the namespace watcher's explicit states (spec.md §4.8).
type State int

const (
	StateStarting State = iota
	StateRunning
	StateBackoff
	StateGivenUp
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateBackoff:
		return "Backoff"
	case StateGivenUp:
		return "GivenUp"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// ReconnectPolicy is the spec.md §4.8/§6 resilience.reconnect.* config.
type ReconnectPolicy struct {
	Enabled                bool
	InitialBackoff         time.Duration
	MaxBackoff             time.Duration
	Multiplier             float64
	MaxConsecutiveFailures int
}

// DefaultReconnectPolicy matches spec.md §4.8's stated defaults.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:                true,
		InitialBackoff:         time.Second,
		MaxBackoff:             30 * time.Second,
		Multiplier:             2,
		MaxConsecutiveFailures: 5,
	}
}

// DiagnoseDecision tells the watcher whether a FailureEvent should be
// dispatched for diagnosis (severity >= medium AND diagnosis enabled, spec.md
// §4.8); it is injected so the watcher never reads global configuration
// itself.
type DiagnoseDecision func(ev *model.FailureEvent) bool

// Dispatcher hands an enriched FailureEvent to the diagnosis pipeline
// (spec.md §4.9's shared dispatch logic lives behind this, owned by the
// supervisor). pod is the full pod object the event was classified from: the
// diagnosis stage's stack resolution needs annotations/labels that do not
// survive into FailureEvent.Snapshot (spec.md §3 only lists labels there).
type Dispatcher interface {
	Dispatch(ctx context.Context, pod *model.Pod, ev *model.FailureEvent)

	// Report hands an already-decided, non-diagnosed FailureEvent straight to
	// the alert/backend sinks (spec.md §4.8's decide()=false outcome): it
	// never touches the cache or the diagnosis worker pool.
	Report(ctx context.Context, ev *model.FailureEvent)
}

// Metrics is the narrow subset of spec.md §3's counters the watcher touches
// directly.
type Metrics interface {
	IncTotalFailuresDetected()
	IncReconnectionAttempts()
}

// Watcher runs the per-namespace state machine.
type Watcher struct {
	namespace string
	client    kubeclient.Client
	policy    ReconnectPolicy
	classify  classifier.Config
	decide    DiagnoseDecision
	dispatch  Dispatcher
	metrics   Metrics
	log       logr.Logger

	mu                  sync.Mutex
	state               State
	startedAt           time.Time
	lastEventAt         *time.Time
	consecutiveFailures int
	healthy             bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Watcher for namespace. Nothing runs until Run is called.
func New(namespace string, client kubeclient.Client, policy ReconnectPolicy, classify classifier.Config, decide DiagnoseDecision, dispatch Dispatcher, metrics Metrics, log logr.Logger) *Watcher {
	return &Watcher{
		namespace: namespace,
		client:    client,
		policy:    policy,
		classify:  classify,
		decide:    decide,
		dispatch:  dispatch,
		metrics:   metrics,
		log:       log.WithValues("namespace", namespace),
		state:     StateStarting,
		done:      make(chan struct{}),
	}
}

// Run drives the state machine until ctx is cancelled or the watcher gives
// up. It blocks until quiescent; callers typically run it in its own
// goroutine.
func (w *Watcher) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.startedAt = time.Now()
	w.mu.Unlock()
	defer close(w.done)

	bo := w.newBackoff()
	attempt := 0

	for {
		if ctx.Err() != nil {
			w.setState(StateCancelled)
			return
		}

		w.setState(StateRunning)
		terminated := make(chan error, 1)
		cancelWatch, err := w.client.WatchNamespacedPods(ctx, w.namespace, w.onEvent, func(err error) {
			terminated <- err
		})
		if err != nil {
			w.log.Error(err, "failed to start watch")
			if !w.scheduleBackoff(ctx, bo, &attempt) {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			cancelWatch()
			<-terminated
			w.setState(StateCancelled)
			return
		case err := <-terminated:
			if ctx.Err() != nil {
				w.setState(StateCancelled)
				return
			}
			if err == nil {
				// cancel was requested through some other path; terminate cleanly.
				w.setState(StateCancelled)
				return
			}
			w.log.Error(err, "watch stream terminated, reconnecting")
			w.metrics.IncReconnectionAttempts()
			if !w.scheduleBackoff(ctx, bo, &attempt) {
				return
			}
		}
	}
}

// scheduleBackoff waits out the next backoff interval, returning false if the
// watcher should give up or ctx was cancelled meanwhile.
func (w *Watcher) scheduleBackoff(ctx context.Context, bo backoff.BackOff, attempt *int) bool {
	w.mu.Lock()
	w.consecutiveFailures++
	failures := w.consecutiveFailures
	w.healthy = false
	w.mu.Unlock()

	if failures >= w.policy.MaxConsecutiveFailures {
		w.setState(StateGivenUp)
		w.log.Error(nil, "giving up after too many consecutive failures", "consecutiveFailures", failures)
		return false
	}

	w.setState(StateBackoff)
	delay := bo.NextBackOff()
	*attempt++

	select {
	case <-ctx.Done():
		w.setState(StateCancelled)
		return false
	case <-time.After(delay):
		return true
	}
}

func (w *Watcher) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.policy.InitialBackoff
	b.MaxInterval = w.policy.MaxBackoff
	b.Multiplier = w.policy.Multiplier
	b.MaxElapsedTime = 0 // the watcher, not the backoff object, owns the failure ceiling
	return b
}

// onEvent is the watch callback (spec.md §4.8). Events are processed
// serially, in arrival order, so the classifier and diagnosis see a
// consistent per-pod view (spec.md §5).
func (w *Watcher) onEvent(evType kubeclient.WatchEventType, pod *model.Pod) {
	now := time.Now()
	w.mu.Lock()
	w.consecutiveFailures = 0
	w.healthy = true
	w.lastEventAt = &now
	w.mu.Unlock()

	if evType == kubeclient.WatchDeleted {
		return
	}

	ev := classifier.Classify(pod, w.namespace, w.classify, now)
	if ev == nil {
		return
	}
	ev.CorrelationID = uuid.NewString()

	w.metrics.IncTotalFailuresDetected()

	if w.decide(ev) {
		w.dispatch.Dispatch(context.Background(), pod, ev)
	} else {
		ev.Diagnosis.Executed = false
		ev.Diagnosis.Result = "diagnosis skipped: below severity threshold or disabled"
		w.dispatch.Report(context.Background(), ev)
	}
}

func (w *Watcher) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// State returns a point-in-time snapshot of the watcher's state (spec.md §3
// WatcherState).
func (w *Watcher) Snapshot() model.WatcherSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return model.WatcherSnapshot{
		Namespace:           w.namespace,
		StartedAt:           w.startedAt,
		LastEventAt:         w.lastEventAt,
		ConsecutiveFailures: w.consecutiveFailures,
		Healthy:             w.healthy,
		State:               w.state.String(),
	}
}

// Cancel requests the watcher stop. It does not block; wait on Done for
// quiescence.
func (w *Watcher) Cancel() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done returns a channel closed once Run has fully returned (spec.md §4.8
// Cancelled guarantees quiescence).
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}
