package classifier_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opsdev/podsleuthd/internal/classifier"
	"github.com/opsdev/podsleuthd/internal/model"
)

var _ = Describe("Classify", func() {
	var (
		cfg classifier.Config
		now time.Time
	)

	BeforeEach(func() {
		cfg = classifier.DefaultConfig()
		now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	})

	It("returns nil for a healthy running pod", func() {
		pod := &model.Pod{
			Name: "web-1", Phase: model.PodRunning,
			ContainerStatuses: []model.ContainerStatus{
				{Name: "app", State: model.ContainerState{Kind: model.ContainerStateRunning}},
			},
		}
		Expect(classifier.Classify(pod, "prod", cfg, now)).To(BeNil())
	})

	It("fires pod-phase-failed with critical severity whenever phase is Failed", func() {
		pod := &model.Pod{Name: "web-1", Phase: model.PodFailed, StatusReason: "Evicted"}
		ev := classifier.Classify(pod, "prod", cfg, now)
		Expect(ev).NotTo(BeNil())
		Expect(ev.Pattern).To(Equal(model.PatternPodPhaseFailed))
		Expect(ev.Severity).To(Equal(model.SeverityCritical))
		Expect(ev.Reason).To(ContainSubstring("Evicted"))
	})

	It("does not fire long-pending exactly at the boundary age", func() {
		pod := &model.Pod{Name: "cache-0", Phase: model.PodPending, CreationTimestamp: now.Add(-cfg.MaxPendingDuration)}
		Expect(classifier.Classify(pod, "prod", cfg, now)).To(BeNil())
	})

	It("fires long-pending one unit past the boundary age", func() {
		pod := &model.Pod{Name: "cache-0", Phase: model.PodPending, CreationTimestamp: now.Add(-cfg.MaxPendingDuration - time.Second)}
		ev := classifier.Classify(pod, "prod", cfg, now)
		Expect(ev).NotTo(BeNil())
		Expect(ev.Pattern).To(Equal(model.PatternLongPending))
		Expect(ev.Severity).To(Equal(model.SeverityHigh))
	})

	It("maps CrashLoopBackOff to critical ahead of a below-threshold restart count", func() {
		pod := &model.Pod{
			Name: "web-abc", Phase: model.PodRunning,
			ContainerStatuses: []model.ContainerStatus{
				{Name: "app", RestartCount: 2, State: model.ContainerState{Kind: model.ContainerStateWaiting, Reason: "CrashLoopBackOff"}},
			},
		}
		ev := classifier.Classify(pod, "prod", cfg, now)
		Expect(ev).NotTo(BeNil())
		Expect(ev.Pattern).To(Equal(model.PatternContainerWaitingError))
		Expect(ev.Severity).To(Equal(model.SeverityCritical))
	})

	It("maps ImagePullBackOff and ErrImagePull to high", func() {
		for _, reason := range []string{"ImagePullBackOff", "ErrImagePull"} {
			pod := &model.Pod{
				Name: "web-abc", Phase: model.PodRunning,
				ContainerStatuses: []model.ContainerStatus{
					{Name: "app", State: model.ContainerState{Kind: model.ContainerStateWaiting, Reason: reason}},
				},
			}
			ev := classifier.Classify(pod, "prod", cfg, now)
			Expect(ev.Severity).To(Equal(model.SeverityHigh))
		}
	})

	DescribeTable("high-restart-count severities at the boundary restart counts",
		func(restartCount int32, expected model.Severity) {
			pod := &model.Pod{
				Name: "api-1", Phase: model.PodRunning,
				ContainerStatuses: []model.ContainerStatus{
					{Name: "app", RestartCount: restartCount, State: model.ContainerState{Kind: model.ContainerStateRunning}},
				},
			}
			ev := classifier.Classify(pod, "prod", cfg, now)
			Expect(ev).NotTo(BeNil())
			Expect(ev.Pattern).To(Equal(model.PatternHighRestartCount))
			Expect(ev.Severity).To(Equal(expected))
		},
		Entry("3 -> medium", int32(3), model.SeverityMedium),
		Entry("5 -> high", int32(5), model.SeverityHigh),
		Entry("10 -> critical", int32(10), model.SeverityCritical),
	)

	It("does not fire high-restart-count just below threshold", func() {
		pod := &model.Pod{
			Name: "api-1", Phase: model.PodRunning,
			ContainerStatuses: []model.ContainerStatus{
				{Name: "app", RestartCount: cfg.MinRestartThreshold - 1, State: model.ContainerState{Kind: model.ContainerStateRunning}},
			},
		}
		Expect(classifier.Classify(pod, "prod", cfg, now)).To(BeNil())
	})

	It("fires container-terminated-error for a nonzero exit code", func() {
		pod := &model.Pod{
			Name: "job-1", Phase: model.PodRunning,
			ContainerStatuses: []model.ContainerStatus{
				{Name: "app", State: model.ContainerState{Kind: model.ContainerStateTerminated, ExitCode: 1, Reason: "Error"}},
			},
		}
		ev := classifier.Classify(pod, "prod", cfg, now)
		Expect(ev).NotTo(BeNil())
		Expect(ev.Pattern).To(Equal(model.PatternContainerTerminated))
		Expect(ev.Severity).To(Equal(model.SeverityHigh))
	})

	It("does not fire container-terminated-error for a clean exit", func() {
		pod := &model.Pod{
			Name: "job-1", Phase: model.PodRunning,
			ContainerStatuses: []model.ContainerStatus{
				{Name: "app", State: model.ContainerState{Kind: model.ContainerStateTerminated, ExitCode: 0}},
			},
		}
		Expect(classifier.Classify(pod, "prod", cfg, now)).To(BeNil())
	})

	It("walks main containers before init containers for the tie-break", func() {
		pod := &model.Pod{
			Name: "web-1", Phase: model.PodRunning,
			ContainerStatuses: []model.ContainerStatus{
				{Name: "app", State: model.ContainerState{Kind: model.ContainerStateWaiting, Reason: "CrashLoopBackOff"}},
			},
			InitContainerStatuses: []model.ContainerStatus{
				{Name: "init", State: model.ContainerState{Kind: model.ContainerStateWaiting, Reason: "ImagePullBackOff"}},
			},
		}
		ev := classifier.Classify(pod, "prod", cfg, now)
		Expect(ev.Reason).To(ContainSubstring("app"))
	})

	It("produces a snapshot with one entry per observed container", func() {
		pod := &model.Pod{
			Name: "web-1", Phase: model.PodFailed,
			ContainerStatuses:     []model.ContainerStatus{{Name: "app"}},
			InitContainerStatuses: []model.ContainerStatus{{Name: "init"}},
		}
		ev := classifier.Classify(pod, "prod", cfg, now)
		Expect(ev.Snapshot.ContainerStates).To(HaveLen(pod.ContainerCount()))
	})

	It("yields equal pattern/severity/reason but differing detectedAt across repeated calls", func() {
		pod := &model.Pod{Name: "web-1", Phase: model.PodFailed, StatusReason: "Evicted"}
		first := classifier.Classify(pod, "prod", cfg, now)
		second := classifier.Classify(pod, "prod", cfg, now.Add(time.Minute))
		Expect(first.Pattern).To(Equal(second.Pattern))
		Expect(first.Severity).To(Equal(second.Severity))
		Expect(first.Reason).To(Equal(second.Reason))
		Expect(first.DetectedAt).NotTo(Equal(second.DetectedAt))
	})
})
