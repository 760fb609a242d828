package supervisor_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opsdev/podsleuthd/internal/collector"
	"github.com/opsdev/podsleuthd/internal/config"
	"github.com/opsdev/podsleuthd/internal/kubeclient"
	"github.com/opsdev/podsleuthd/internal/metrics"
	"github.com/opsdev/podsleuthd/internal/model"
	"github.com/opsdev/podsleuthd/internal/supervisor"
)

func newTestSupervisor(fc *fakeClient, cfg config.Config, alerts *recordingAlertSink, backend *recordingBackendSink) *supervisor.Supervisor {
	coll := collector.New(fc, nil, nil, logr.Discard())
	met := metrics.New(prometheus.NewRegistry())

	var alertSink supervisor.AlertSink
	if alerts != nil {
		alertSink = alerts
	}
	var backendSink supervisor.BackendSink
	if backend != nil {
		backendSink = backend
	}

	return supervisor.New(fc, cfg, coll, met, alertSink, backendSink, nil, logr.Discard())
}

func baseTestConfig() config.Config {
	cfg := config.Default()
	cfg.CacheTTL = time.Minute
	cfg.CacheMaxEntries = 100
	cfg.DiagnosisEnabled = true
	cfg.DiagnosisTimeout = 5 * time.Second
	cfg.AlertingSeverityFilters = []model.Severity{model.SeverityMedium, model.SeverityHigh, model.SeverityCritical}
	return cfg
}

func failureEvent(namespace, pod string) *model.FailureEvent {
	return &model.FailureEvent{
		PodName:   pod,
		Namespace: namespace,
		Pattern:   model.PatternContainerTerminated,
		Severity:  model.SeverityHigh,
		Reason:    "test",
		Message:   "test",
	}
}

var _ = Describe("Supervisor", func() {
	var (
		fc      *fakeClient
		alerts  *recordingAlertSink
		backend *recordingBackendSink
		sup     *supervisor.Supervisor
		ctx     context.Context
		cancel  context.CancelFunc
	)

	BeforeEach(func() {
		fc = newFakeClient()
		alerts = &recordingAlertSink{}
		backend = &recordingBackendSink{}
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
	})

	Describe("Dispatch", func() {
		BeforeEach(func() {
			sup = newTestSupervisor(fc, baseTestConfig(), alerts, backend)
			Expect(sup.Start(ctx)).To(Succeed())
		})

		AfterEach(func() {
			sup.Stop()
		})

		It("serves a cache hit without running the collector again", func() {
			ev := failureEvent("prod", "web-1")
			sup.Dispatch(ctx, &model.Pod{Name: "web-1", Namespace: "prod"}, ev)

			Eventually(func() bool { return ev.Diagnosis.Executed }).Should(BeTrue())
			Expect(ev.Diagnosis.Cached).To(BeFalse())

			ev2 := failureEvent("prod", "web-1")
			sup.Dispatch(ctx, &model.Pod{Name: "web-1", Namespace: "prod"}, ev2)
			Expect(ev2.Diagnosis.Executed).To(BeTrue())
			Expect(ev2.Diagnosis.Cached).To(BeTrue())
		})

		It("fans out a non-cached diagnosis to both sinks", func() {
			ev := failureEvent("prod", "web-2")
			sup.Dispatch(ctx, &model.Pod{Name: "web-2", Namespace: "prod"}, ev)

			Eventually(alerts.count).Should(Equal(1))
			Eventually(backend.count).Should(Equal(1))
		})

		It("marks the event overloaded once the worker pool and queue are saturated", func() {
			fc.collectDelay = make(chan struct{}) // never closed: every collection blocks forever

			const burst = 200
			events := make([]*model.FailureEvent, burst)
			for i := 0; i < burst; i++ {
				ev := failureEvent("prod", fmt.Sprintf("pod-%d", i))
				events[i] = ev
				sup.Dispatch(ctx, &model.Pod{Name: ev.PodName, Namespace: "prod"}, ev)
			}

			overloaded := 0
			for _, ev := range events {
				if ev.Diagnosis.Result == "overloaded" {
					overloaded++
				}
			}
			Expect(overloaded).To(BeNumerically(">", 0))
		})
	})

	Describe("diagnosis timeout", func() {
		It("marks the event not-executed when collection exceeds the deadline", func() {
			cfg := baseTestConfig()
			cfg.DiagnosisTimeout = 20 * time.Millisecond
			sup = newTestSupervisor(fc, cfg, alerts, backend)
			Expect(sup.Start(ctx)).To(Succeed())
			defer sup.Stop()

			fc.collectDelay = make(chan struct{})
			ev := failureEvent("prod", "slow-1")
			sup.Dispatch(ctx, &model.Pod{Name: "slow-1", Namespace: "prod"}, ev)

			Eventually(func() bool { return ev.Diagnosis.Executed }).Should(BeFalse())
			Eventually(func() string { return ev.Diagnosis.Result }).Should(ContainSubstring("timed out"))
		})
	})

	Describe("the decide()=false path, driven end to end through a real watch event", func() {
		It("never touches the cache or the collector for a below-threshold severity", func() {
			cfg := baseTestConfig()
			cfg.MinRestartThreshold = 1 // so restartSeverity(1) (Low) still fires the classifier
			sup = newTestSupervisor(fc, cfg, alerts, backend)
			Expect(sup.Start(ctx)).To(Succeed())
			defer sup.Stop()

			Eventually(fc.sessionCount).Should(Equal(1))
			before := fc.collectionCalls()

			pod := &model.Pod{
				Name:      "low-sev-1",
				Namespace: "prod",
				Phase:     model.PodRunning,
				ContainerStatuses: []model.ContainerStatus{
					{Name: "app", RestartCount: 1, State: model.ContainerState{Kind: model.ContainerStateRunning}},
				},
			}
			fc.sessionFor("prod").onEvent(kubeclient.WatchAdded, pod)

			// fanOut still runs (the backend sink always receives a report,
			// skipped or not), which is the signal the event reached Report.
			Eventually(backend.count).Should(Equal(1))

			Consistently(fc.collectionCalls).Should(Equal(before))
		})

		It("never touches the cache or the collector when diagnosis is disabled", func() {
			cfg := baseTestConfig()
			cfg.DiagnosisEnabled = false
			sup = newTestSupervisor(fc, cfg, alerts, backend)
			Expect(sup.Start(ctx)).To(Succeed())
			defer sup.Stop()

			Eventually(fc.sessionCount).Should(Equal(1))
			before := fc.collectionCalls()

			pod := &model.Pod{
				Name:      "disabled-1",
				Namespace: "prod",
				Phase:     model.PodFailed,
			}
			fc.sessionFor("prod").onEvent(kubeclient.WatchAdded, pod)

			Eventually(backend.count).Should(Equal(1))
			Consistently(fc.collectionCalls).Should(Equal(before))
		})
	})

	Describe("Stop", func() {
		It("cancels an in-flight diagnosis promptly instead of waiting out the collector", func() {
			cfg := baseTestConfig()
			cfg.DiagnosisTimeout = time.Minute // would hang far longer than the test if Stop didn't cancel it
			sup = newTestSupervisor(fc, cfg, alerts, backend)
			Expect(sup.Start(ctx)).To(Succeed())

			fc.collectDelay = make(chan struct{})
			ev := failureEvent("prod", "stuck-1")
			sup.Dispatch(ctx, &model.Pod{Name: "stuck-1", Namespace: "prod"}, ev)

			done := make(chan struct{})
			go func() {
				sup.Stop()
				close(done)
			}()
			Eventually(done, 2*time.Second).Should(BeClosed())
		})
	})

	Describe("target namespace resolution", func() {
		It("restricts watchers to the configured list minus excluded namespaces", func() {
			cfg := baseTestConfig()
			cfg.Namespaces = []string{"a", "b", "c"}
			cfg.ExcludeNamespaces = []string{"b"}
			sup = newTestSupervisor(fc, cfg, alerts, backend)
			Expect(sup.Start(ctx)).To(Succeed())
			defer sup.Stop()

			Eventually(func() []string { return sup.HealthSnapshot().ActiveNamespaces }).Should(ConsistOf("a", "c"))
		})

		It("falls back to discovery when no explicit namespace list is configured", func() {
			fc.namespaces = []string{"x", "y"}
			cfg := baseTestConfig()
			sup = newTestSupervisor(fc, cfg, alerts, backend)
			Expect(sup.Start(ctx)).To(Succeed())
			defer sup.Stop()

			Eventually(func() []string { return sup.HealthSnapshot().ActiveNamespaces }).Should(ConsistOf("x", "y"))
		})
	})

	Describe("HealthSnapshot", func() {
		It("omits a namespace whose watcher has given up", func() {
			cfg := baseTestConfig()
			cfg.Namespaces = []string{"prod", "broken"}
			cfg.Reconnect.MaxConsecutiveFailures = 2
			cfg.Reconnect.InitialBackoff = time.Millisecond
			cfg.Reconnect.MaxBackoff = 5 * time.Millisecond
			sup = newTestSupervisor(fc, cfg, alerts, backend)
			Expect(sup.Start(ctx)).To(Succeed())
			defer sup.Stop()

			Eventually(fc.sessionCount).Should(Equal(2))

			for i := 0; i < cfg.Reconnect.MaxConsecutiveFailures; i++ {
				before := fc.sessionCount()
				fc.sessionFor("broken").onTerminate(fmt.Errorf("boom"))
				if i < cfg.Reconnect.MaxConsecutiveFailures-1 {
					// not the final failure: the watcher reconnects and opens
					// a fresh session before giving up.
					Eventually(fc.sessionCount).Should(BeNumerically(">", before))
				}
			}

			Eventually(func() []string { return sup.HealthSnapshot().ActiveNamespaces }).Should(ConsistOf("prod"))
		})
	})
})
