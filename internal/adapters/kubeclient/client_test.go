package kubeclient_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	adapter "github.com/opsdev/podsleuthd/internal/adapters/kubeclient"
	"github.com/opsdev/podsleuthd/internal/kubeclient"
	"github.com/opsdev/podsleuthd/internal/model"
)

var _ = Describe("Client", func() {
	var (
		fakeClientset *fake.Clientset
		client        *adapter.Client
		ctx           context.Context
	)

	BeforeEach(func() {
		fakeClientset = fake.NewClientset()
		client = adapter.New(fakeClientset)
		ctx = context.Background()
	})

	It("reads a pod and converts container states", func() {
		pod := &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "web-1", Namespace: "prod"},
			Status: corev1.PodStatus{
				Phase: corev1.PodRunning,
				ContainerStatuses: []corev1.ContainerStatus{
					{
						Name:         "app",
						RestartCount: 3,
						State: corev1.ContainerState{
							Waiting: &corev1.ContainerStateWaiting{Reason: "CrashLoopBackOff"},
						},
					},
				},
			},
		}
		_, err := fakeClientset.CoreV1().Pods("prod").Create(ctx, pod, metav1.CreateOptions{})
		Expect(err).NotTo(HaveOccurred())

		got, err := client.ReadPod(ctx, "prod", "web-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ContainerStatuses).To(HaveLen(1))
		Expect(got.ContainerStatuses[0].State.Reason).To(Equal("CrashLoopBackOff"))
		Expect(got.ContainerStatuses[0].RestartCount).To(Equal(int32(3)))
	})

	It("surfaces NotFound as kubeclient.ErrorKindNotFound", func() {
		_, err := client.ReadPod(ctx, "prod", "missing")
		Expect(err).To(HaveOccurred())
		Expect(kubeclient.KindOf(err)).To(Equal(kubeclient.ErrorKindNotFound))
	})

	It("delivers watch events and guarantees no delivery after cancel", func() {
		var mu sync.Mutex
		var received []kubeclient.WatchEventType
		terminated := make(chan error, 1)

		cancel, err := client.WatchNamespacedPods(ctx, "prod",
			func(t kubeclient.WatchEventType, p *model.Pod) {
				mu.Lock()
				received = append(received, t)
				mu.Unlock()
			},
			func(err error) { terminated <- err },
		)
		Expect(err).NotTo(HaveOccurred())

		_, err = fakeClientset.CoreV1().Pods("prod").Create(ctx, &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "watched-1", Namespace: "prod"},
		}, metav1.CreateOptions{})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() []kubeclient.WatchEventType {
			mu.Lock()
			defer mu.Unlock()
			return append([]kubeclient.WatchEventType(nil), received...)
		}, time.Second).Should(ContainElement(kubeclient.WatchAdded))

		cancel()

		mu.Lock()
		countAfterCancel := len(received)
		mu.Unlock()

		_, _ = fakeClientset.CoreV1().Pods("prod").Create(ctx, &corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "watched-2", Namespace: "prod"},
		}, metav1.CreateOptions{})

		Consistently(func() int {
			mu.Lock()
			defer mu.Unlock()
			return len(received)
		}, 200*time.Millisecond).Should(Equal(countAfterCancel))

		select {
		case err := <-terminated:
			Expect(err).To(BeNil())
		case <-time.After(time.Second):
			Fail("onTerminate was not called")
		}
	})
})
