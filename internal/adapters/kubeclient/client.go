// Package kubeclient is the concrete KubeClient implementation over
// k8s.io/client-go (spec.md §4.3). It is the only package in the repository
// that imports the Kubernetes client SDK's typed objects; everything it
// returns has already been copied into internal/model shapes.
//
// watchNamespacedPods is grounded on the retrieval pack's raw watch-loop
// examples (a bare clientset.CoreV1().Pods(ns).Watch + watch.Interface
// ResultChan loop) rather than controller-runtime's cached/informer-based
// Manager, because the namespace watcher (internal/watcher) needs to own
// reconnection and backoff itself (spec.md §4.8).
package kubeclient

import (
	"bufio"
	"context"
	"fmt"
	"io"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/opsdev/podsleuthd/internal/kubeclient"
	"github.com/opsdev/podsleuthd/internal/model"
)

// Client adapts a client-go Clientset to the kubeclient.Client contract.
type Client struct {
	clientset kubernetes.Interface
}

// New wraps an existing clientset. Construction (kubeconfig/in-cluster
// resolution) is the process bootstrap's job (spec.md §1), not the core's.
func New(clientset kubernetes.Interface) *Client {
	return &Client{clientset: clientset}
}

var _ kubeclient.Client = (*Client)(nil)

func (c *Client) ReadPod(ctx context.Context, namespace, name string) (*model.Pod, error) {
	pod, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, wrapError("ReadPod", err)
	}
	converted := convertPod(pod)
	return &converted, nil
}

func (c *Client) ListPods(ctx context.Context, namespace string) ([]model.Pod, error) {
	var out []model.Pod
	cont := ""
	for {
		list, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{Continue: cont})
		if err != nil {
			return nil, wrapError("ListPods", err)
		}
		for i := range list.Items {
			out = append(out, convertPod(&list.Items[i]))
		}
		cont = list.Continue
		if cont == "" {
			break
		}
	}
	return out, nil
}

func (c *Client) ListEvents(ctx context.Context, namespace, fieldSelector string) ([]kubeclient.Event, error) {
	list, err := c.clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{FieldSelector: fieldSelector})
	if err != nil {
		return nil, wrapError("ListEvents", err)
	}
	out := make([]kubeclient.Event, 0, len(list.Items))
	for _, ev := range list.Items {
		out = append(out, convertEvent(&ev))
	}
	return out, nil
}

func (c *Client) StreamLogs(ctx context.Context, namespace, pod, container string, tailLines int64) ([]string, error) {
	req := c.clientset.CoreV1().Pods(namespace).GetLogs(pod, &corev1.PodLogOptions{
		Container: container,
		TailLines: &tailLines,
	})
	stream, err := req.Stream(ctx)
	if err != nil {
		return nil, wrapError("StreamLogs", err)
	}
	defer stream.Close()

	var lines []string
	scanner := bufio.NewScanner(stream)
	// Pod logs can contain very long single lines; grow the scanner buffer
	// rather than truncating silently.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("kubeclient: StreamLogs: read stream: %w", err)
	}
	return lines, nil
}

func (c *Client) ListNamespaces(ctx context.Context) ([]string, error) {
	list, err := c.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, wrapError("ListNamespaces", err)
	}
	out := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		out = append(out, ns.Name)
	}
	return out, nil
}

func (c *Client) WatchNamespacedPods(
	ctx context.Context,
	namespace string,
	onEvent func(kubeclient.WatchEventType, *model.Pod),
	onTerminate func(error),
) (kubeclient.CancelFunc, error) {
	w, err := c.clientset.CoreV1().Pods(namespace).Watch(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, wrapError("WatchNamespacedPods", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	cancelled := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer w.Stop()

		var termErr error
	loop:
		for {
			select {
			case <-cancelled:
				termErr = nil
				break loop
			case <-watchCtx.Done():
				termErr = watchCtx.Err()
				break loop
			case ev, ok := <-w.ResultChan():
				if !ok {
					termErr = fmt.Errorf("kubeclient: watch channel closed for namespace %s", namespace)
					break loop
				}
				if handleWatchEvent(ev, onEvent) {
					continue
				}
				termErr = fmt.Errorf("kubeclient: watch error for namespace %s: %v", namespace, ev.Object)
				break loop
			}
		}
		onTerminate(termErr)
	}()

	cancelFn := func() {
		select {
		case <-cancelled:
		default:
			close(cancelled)
		}
		cancel()
		<-done
	}
	return cancelFn, nil
}

// handleWatchEvent dispatches one watch.Event to onEvent, returning false if
// the event itself signals a terminal watch error.
func handleWatchEvent(ev watch.Event, onEvent func(kubeclient.WatchEventType, *model.Pod)) bool {
	if ev.Type == watch.Error {
		return false
	}
	pod, ok := ev.Object.(*corev1.Pod)
	if !ok {
		return true
	}
	var kind kubeclient.WatchEventType
	switch ev.Type {
	case watch.Added:
		kind = kubeclient.WatchAdded
	case watch.Modified:
		kind = kubeclient.WatchModified
	case watch.Deleted:
		kind = kubeclient.WatchDeleted
	default:
		return true
	}
	converted := convertPod(pod)
	onEvent(kind, &converted)
	return true
}

func wrapError(op string, err error) error {
	kind := kubeclient.ErrorKindTransient
	switch {
	case apierrors.IsNotFound(err):
		kind = kubeclient.ErrorKindNotFound
	case apierrors.IsForbidden(err), apierrors.IsUnauthorized(err):
		kind = kubeclient.ErrorKindForbidden
	}
	return &kubeclient.Error{Kind: kind, Op: "kubeclient." + op, Err: err}
}
