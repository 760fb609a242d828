package supervisor_test

import (
	"context"
	"sync"

	"github.com/opsdev/podsleuthd/internal/kubeclient"
	"github.com/opsdev/podsleuthd/internal/model"
)

// watchSession records the callbacks WatchNamespacedPods was given so a test
// can drive events/termination directly, mirroring internal/watcher's own
// fakeWatchClient.
type watchSession struct {
	namespace   string
	onEvent     func(kubeclient.WatchEventType, *model.Pod)
	onTerminate func(error)
}

// fakeClient is a minimal, in-memory kubeclient.Client covering both the
// watch path (namespace watchers) and the collection path (diagnosis), so
// the same fake drives supervisor-level tests end to end.
type fakeClient struct {
	mu sync.Mutex

	namespaces []string
	pods       []model.Pod

	sessions []*watchSession

	collectDelay chan struct{} // if non-nil, ListEvents blocks until closed/received

	listPodsCalls   int
	listEventsCalls int
}

func newFakeClient() *fakeClient {
	return &fakeClient{namespaces: []string{"prod"}}
}

func (f *fakeClient) ReadPod(ctx context.Context, namespace, name string) (*model.Pod, error) {
	return nil, nil
}

func (f *fakeClient) ListPods(ctx context.Context, namespace string) ([]model.Pod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listPodsCalls++
	return append([]model.Pod(nil), f.pods...), nil
}

func (f *fakeClient) ListEvents(ctx context.Context, namespace, fieldSelector string) ([]kubeclient.Event, error) {
	f.mu.Lock()
	f.listEventsCalls++
	f.mu.Unlock()
	if f.collectDelay != nil {
		select {
		case <-f.collectDelay:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, nil
}

func (f *fakeClient) StreamLogs(ctx context.Context, namespace, pod, container string, tailLines int64) ([]string, error) {
	return nil, nil
}

func (f *fakeClient) ListNamespaces(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.namespaces...), nil
}

func (f *fakeClient) WatchNamespacedPods(ctx context.Context, namespace string, onEvent func(kubeclient.WatchEventType, *model.Pod), onTerminate func(error)) (kubeclient.CancelFunc, error) {
	f.mu.Lock()
	sess := &watchSession{namespace: namespace, onEvent: onEvent, onTerminate: onTerminate}
	f.sessions = append(f.sessions, sess)
	f.mu.Unlock()
	return func() { onTerminate(nil) }, nil
}

// sessionFor returns the most recently created session for namespace (a
// watcher creates a new session on every reconnect attempt).
func (f *fakeClient) sessionFor(namespace string) *watchSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sessions) - 1; i >= 0; i-- {
		if f.sessions[i].namespace == namespace {
			return f.sessions[i]
		}
	}
	return nil
}

func (f *fakeClient) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// collectionCalls reports how many times the collection path (ListPods or
// ListEvents) has been invoked, so a test can assert the collector was never
// reached at all.
func (f *fakeClient) collectionCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listPodsCalls + f.listEventsCalls
}
