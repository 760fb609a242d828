// Package supervisor implements the supervisor (spec.md §4.9): it owns the
// set of per-namespace watchers, resolves the target namespace set,
// starts/stops watchers, runs the shared diagnosis-dispatch logic, and
// exposes a read-only health snapshot.
//
// Grounded on the teacher's PodSleuthReconciler (podsleuth_controller.go) as
// "the thing that owns cache + lifecycle + the force-refresh/cache-bypass
// path," generalized from "one CR, reconciled periodically" to "N namespace
// watchers, each long-lived" (spec.md §9's design note on cyclic references:
// the cache and sinks are injected into each watcher at construction here,
// exactly as this package injects them — no backpointer from the cache to
// the supervisor).
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/opsdev/podsleuthd/internal/cache"
	"github.com/opsdev/podsleuthd/internal/classifier"
	"github.com/opsdev/podsleuthd/internal/collector"
	"github.com/opsdev/podsleuthd/internal/config"
	"github.com/opsdev/podsleuthd/internal/kubeclient"
	"github.com/opsdev/podsleuthd/internal/model"
	"github.com/opsdev/podsleuthd/internal/watcher"
)

// AlertSink is the optional alert sink (spec.md §6): emit(failureEvent)
// fire-and-forget. Failures of the sink itself must never reach the
// watcher (spec.md §7).
type AlertSink interface {
	Emit(ctx context.Context, ev *model.FailureEvent)
}

// BackendSink forwards a fully-collected, sanitized bundle to the external
// analysis backend (spec.md §1, §6's secret-bearing HTTP dispatcher). The
// supervisor never sees the dispatcher's auth token; that lives entirely
// behind this interface.
type BackendSink interface {
	Forward(ctx context.Context, ev *model.FailureEvent, bundle model.StackBundle) error
}

// TokenProbe is the periodic "token refresh probe" hook (spec.md §6, called
// every 15 min by the supervisor).
type TokenProbe interface {
	ProbeToken(ctx context.Context) error
}

// Metrics is the counter surface the supervisor updates directly (the
// remainder of spec.md §3's Metrics are owned by watcher.Metrics /
// cache stats).
type Metrics interface {
	watcher.Metrics
	IncDiagnosisCallsExecuted()
	SetCacheStats(entries int, hitRate float64)
	RecordHealthCheck(t time.Time)
	TotalFailuresDetected() int64
	DiagnosisCallsExecuted() int64
	ReconnectionAttempts() int64
}

const (
	sweepInterval       = 60 * time.Second
	tokenProbeInterval  = 15 * time.Minute
	diagnosisWorkers    = 8
	diagnosisQueueDepth = 64
	shutdownDeadline    = 10 * time.Second
)

// Supervisor owns the watcher set and the diagnosis dispatch pipeline
// (spec.md §4.9).
type Supervisor struct {
	client      kubeclient.Client
	cfg         config.Config
	cache       *cache.Cache
	collector   *collector.Collector
	collectCfg  collector.Config
	classifyCfg classifier.Config
	metrics     Metrics
	alerts      AlertSink
	backend     BackendSink
	tokenProbe  TokenProbe
	log         logr.Logger

	mu        sync.Mutex
	watchers  map[string]*watcher.Watcher
	connState model.ConnectionState

	diagnoseQueue chan diagnoseJob
	workerWG      sync.WaitGroup
	sinkWG        sync.WaitGroup
	tickersDone   chan struct{}
	cancelAll     context.CancelFunc
	runCtx        context.Context
}

type diagnoseJob struct {
	pod *model.Pod
	ev  *model.FailureEvent
}

// New constructs a Supervisor. None of its external collaborators
// (alerts, backend, tokenProbe) are required; pass nil to disable each.
func New(
	client kubeclient.Client,
	cfg config.Config,
	coll *collector.Collector,
	metrics Metrics,
	alerts AlertSink,
	backend BackendSink,
	tokenProbe TokenProbe,
	log logr.Logger,
) *Supervisor {
	return &Supervisor{
		client:      client,
		cfg:         cfg,
		cache:       cache.New(cfg.CacheTTL, cfg.CacheMaxEntries),
		collector:   coll,
		collectCfg:  collectConfigFrom(cfg),
		classifyCfg: classifier.Config{MinRestartThreshold: cfg.MinRestartThreshold, MaxPendingDuration: cfg.MaxPendingDuration},
		metrics:     metrics,
		alerts:      alerts,
		backend:     backend,
		tokenProbe:  tokenProbe,
		log:         log,
		watchers:    make(map[string]*watcher.Watcher),
	}
}

func collectConfigFrom(cfg config.Config) collector.Config {
	c := collector.DefaultConfig()
	c.Deadline = cfg.DiagnosisTimeout
	return c
}

// Initialize validates connectivity (a single listNamespaces call) and runs
// preflight checks for optional external endpoints without failing hard on
// them (spec.md §4.9). Only a connectivity failure here is treated as a
// startup-path error (spec.md §7: fatal, before any watcher starts).
func (s *Supervisor) Initialize(ctx context.Context) error {
	if _, err := s.client.ListNamespaces(ctx); err != nil {
		s.recordConnection(false)
		return fmt.Errorf("supervisor: initialize: cannot reach API server: %w", err)
	}
	s.recordConnection(true)

	if s.tokenProbe != nil {
		if err := s.tokenProbe.ProbeToken(ctx); err != nil {
			s.log.Info("token refresh probe failed during preflight, continuing", "error", err.Error())
		}
	}
	return nil
}

// Start computes the target namespace set, spawns one watcher per target,
// and starts the periodic cache sweeper and token-refresh probe (spec.md
// §4.9).
func (s *Supervisor) Start(ctx context.Context) error {
	targets, err := s.targetNamespaces(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: start: resolving target namespaces: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.runCtx = runCtx
	s.cancelAll = cancel
	s.mu.Unlock()

	s.diagnoseQueue = make(chan diagnoseJob, diagnosisQueueDepth)
	s.tickersDone = make(chan struct{})
	s.startDiagnosisWorkers(runCtx)
	s.startPeriodicTasks(runCtx)

	for _, ns := range targets {
		s.spawnWatcher(runCtx, ns)
	}
	s.log.Info("supervisor started", "namespaces", targets)
	return nil
}

// targetNamespaces computes `configured \ excluded` or `listNamespaces() \
// excluded` (spec.md §4.9).
func (s *Supervisor) targetNamespaces(ctx context.Context) ([]string, error) {
	excluded := make(map[string]bool, len(s.cfg.ExcludeNamespaces))
	for _, ns := range s.cfg.ExcludeNamespaces {
		excluded[ns] = true
	}

	var candidates []string
	if len(s.cfg.Namespaces) > 0 {
		candidates = s.cfg.Namespaces
	} else {
		all, err := s.client.ListNamespaces(ctx)
		if err != nil {
			return nil, err
		}
		candidates = all
	}

	out := make([]string, 0, len(candidates))
	for _, ns := range candidates {
		if !excluded[ns] {
			out = append(out, ns)
		}
	}
	return out, nil
}

func (s *Supervisor) spawnWatcher(ctx context.Context, ns string) {
	w := watcher.New(ns, s.client, reconnectPolicyFrom(s.cfg.Reconnect), s.classifyCfg, s.decideDiagnose, diagnoseDispatcher{s}, s.metrics, s.log)

	s.mu.Lock()
	s.watchers[ns] = w
	s.mu.Unlock()

	go w.Run(ctx)
}

func reconnectPolicyFrom(r config.ReconnectPolicy) watcher.ReconnectPolicy {
	return watcher.ReconnectPolicy{
		Enabled:                r.Enabled,
		InitialBackoff:         r.InitialBackoff,
		MaxBackoff:             r.MaxBackoff,
		Multiplier:             r.Multiplier,
		MaxConsecutiveFailures: r.MaxConsecutiveFailures,
	}
}

// decideDiagnose implements spec.md §4.8's "severity >= medium AND diagnosis
// enabled" rule.
func (s *Supervisor) decideDiagnose(ev *model.FailureEvent) bool {
	return s.cfg.DiagnosisEnabled && ev.Severity >= model.SeverityMedium
}

// diagnoseDispatcher adapts Supervisor to watcher.Dispatcher without
// exposing the rest of the Supervisor surface to the watcher package.
type diagnoseDispatcher struct{ s *Supervisor }

func (d diagnoseDispatcher) Dispatch(ctx context.Context, pod *model.Pod, ev *model.FailureEvent) {
	d.s.Dispatch(ctx, pod, ev)
}

func (d diagnoseDispatcher) Report(ctx context.Context, ev *model.FailureEvent) {
	d.s.Report(ctx, ev)
}

// Dispatch is the shared diagnosis-dispatch logic (spec.md §4.9):
//  1. cache lookup,
//  2. on miss, bounded-worker-pool collection under a hard deadline,
//  3. non-blocking hand-off to the alert and backend sinks.
//
// It never blocks the caller's namespace watcher (spec.md §5 backpressure):
// if the bounded queue is saturated, the event is still handed to the sinks
// immediately with executed=false, result="overloaded". The incoming ctx is
// the watcher's own (fire-and-forget, typically context.Background()); the
// supervisor's own lifecycle context is used for everything downstream so
// Stop() promptly cancels in-flight collection and sink calls (spec.md §5,
// §8 scenario 6).
func (s *Supervisor) Dispatch(ctx context.Context, pod *model.Pod, ev *model.FailureEvent) {
	runCtx := s.runContext(ctx)

	key := ev.Key()
	if cached, ok := s.cache.Get(key); ok {
		ev.Diagnosis.Executed = true
		ev.Diagnosis.Cached = true
		ev.Diagnosis.Result = cached
		s.fanOut(runCtx, ev, model.StackBundle{})
		return
	}

	select {
	case s.diagnoseQueue <- diagnoseJob{pod: pod, ev: ev}:
	default:
		ev.Diagnosis.Executed = false
		ev.Diagnosis.Cached = false
		ev.Diagnosis.Result = "overloaded"
		s.fanOut(runCtx, ev, model.StackBundle{})
	}
}

// Report hands a FailureEvent the watcher already decided not to diagnose
// (spec.md §4.8: severity below threshold, or diagnosis disabled) straight to
// the alert/backend sinks. Unlike Dispatch, it never touches the cache and
// never enqueues onto the diagnosis worker pool — the watcher has already set
// ev.Diagnosis to reflect the skip.
func (s *Supervisor) Report(ctx context.Context, ev *model.FailureEvent) {
	s.fanOut(s.runContext(ctx), ev, model.StackBundle{})
}

// runContext returns the supervisor's own lifecycle context if Start has run,
// falling back to the caller-supplied ctx (tests that drive Dispatch without
// Start).
func (s *Supervisor) runContext(fallback context.Context) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return fallback
}

func (s *Supervisor) startDiagnosisWorkers(ctx context.Context) {
	for i := 0; i < diagnosisWorkers; i++ {
		s.workerWG.Add(1)
		go s.diagnosisWorker(ctx)
	}
}

func (s *Supervisor) diagnosisWorker(ctx context.Context) {
	defer s.workerWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.diagnoseQueue:
			if !ok {
				return
			}
			s.runDiagnosis(ctx, job.pod, job.ev)
		}
	}
}

// runDiagnosis executes collect() under the configured hard deadline, stores
// the result in the cache, and fans out to the sinks (spec.md §4.9 steps
// 2-4).
func (s *Supervisor) runDiagnosis(ctx context.Context, pod *model.Pod, ev *model.FailureEvent) {
	start := time.Now()
	deadline := s.cfg.DiagnosisTimeout
	if deadline <= 0 {
		deadline = collector.DefaultConfig().Deadline
	}
	collectCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	done := make(chan model.StackBundle, 1)
	go func() { done <- s.collector.Collect(collectCtx, pod, ev.Namespace, s.collectCfg) }()

	var bundle model.StackBundle
	select {
	case <-collectCtx.Done():
		ev.Diagnosis.Executed = false
		ev.Diagnosis.Result = fmt.Sprintf("diagnosis timed out after %s", deadline)
		ev.Diagnosis.DurationMs = time.Since(start).Milliseconds()
		s.fanOut(ctx, ev, model.StackBundle{})
		return
	case bundle = <-done:
	}

	s.metrics.IncDiagnosisCallsExecuted()
	result := summarize(bundle)
	s.cache.Put(ev.Key(), result)
	s.refreshCacheStats()

	ev.Diagnosis.Executed = true
	ev.Diagnosis.Cached = false
	ev.Diagnosis.Result = result
	ev.Diagnosis.DurationMs = time.Since(start).Milliseconds()

	s.fanOut(ctx, ev, bundle)
}

// summarize folds a StackBundle into the single-string, implementation-
// defined shape spec.md §4.9 step 2 leaves open.
func summarize(bundle model.StackBundle) string {
	componentCount := 0
	if bundle.Stack != nil {
		componentCount = len(bundle.Stack.Components)
	}
	summary := fmt.Sprintf("collected %d events, %d log lines for %s/%s",
		len(bundle.PrimaryPod.Events), len(bundle.PrimaryPod.Logs), bundle.PrimaryPod.Namespace, bundle.PrimaryPod.Name)
	if bundle.Stack != nil {
		summary += fmt.Sprintf("; stack %q (%d components)", bundle.Stack.ReleaseName, componentCount)
	}
	if bundle.Hint != nil {
		summary += fmt.Sprintf("; hint: %s (confidence=%.2f)", bundle.Hint.Summary, bundle.Hint.Confidence)
	}
	return summary
}

// fanOut hands the enriched FailureEvent to the alert and backend sinks in a
// non-blocking manner; sink failures must never propagate back to the
// watcher (spec.md §4.9 step 4, §7).
func (s *Supervisor) fanOut(ctx context.Context, ev *model.FailureEvent, bundle model.StackBundle) {
	if s.alerts != nil && s.cfg.AlertsSeverity(ev.Severity) {
		s.sinkWG.Add(1)
		go func() {
			defer s.sinkWG.Done()
			defer s.recoverSink("alert")
			s.alerts.Emit(ctx, ev)
		}()
	}
	if s.backend != nil {
		s.sinkWG.Add(1)
		go func() {
			defer s.sinkWG.Done()
			defer s.recoverSink("backend")
			if err := s.backend.Forward(ctx, ev, bundle); err != nil {
				s.log.Error(err, "backend forward failed", "pod", ev.PodName, "namespace", ev.Namespace)
			}
		}()
	}
}

func (s *Supervisor) recoverSink(name string) {
	if r := recover(); r != nil {
		s.log.Error(fmt.Errorf("%v", r), "external sink panicked, suppressed", "sink", name)
	}
}

func (s *Supervisor) startPeriodicTasks(ctx context.Context) {
	go func() {
		defer close(s.tickersDone)
		sweepTicker := time.NewTicker(sweepInterval)
		defer sweepTicker.Stop()
		var probeTicker *time.Ticker
		var probeC <-chan time.Time
		if s.tokenProbe != nil {
			probeTicker = time.NewTicker(tokenProbeInterval)
			probeC = probeTicker.C
			defer probeTicker.Stop()
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-sweepTicker.C:
				removed := s.cache.Sweep()
				if removed > 0 {
					s.log.Info("cache sweep removed expired entries", "removed", removed)
				}
				s.refreshCacheStats()
			case <-probeC:
				if err := s.tokenProbe.ProbeToken(ctx); err != nil {
					s.log.Info("token refresh probe failed", "error", err.Error())
				}
			}
		}
	}()
}

func (s *Supervisor) refreshCacheStats() {
	s.metrics.SetCacheStats(s.cache.Len(), s.cache.HitRate())
}

func (s *Supervisor) recordConnection(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connState.Healthy = ok
	if ok {
		s.connState.LastSuccessfulConnection = time.Now()
		s.connState.ConsecutiveFailures = 0
	} else {
		s.connState.ConsecutiveFailures++
	}
}

// Stop cancels all watchers and periodic tasks, awaits their quiescence
// bounded by a shutdown deadline, then clears the cache (spec.md §4.9, §5:
// "cancellation has no timeout-to-force; shutdown is best-effort clean").
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancelAll
	ws := make([]*watcher.Watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		ws = append(ws, w)
	}
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	deadline := time.After(shutdownDeadline)
	var wg sync.WaitGroup
	for _, w := range ws {
		wg.Add(1)
		go func(w *watcher.Watcher) {
			defer wg.Done()
			select {
			case <-w.Done():
			case <-deadline:
			}
		}(w)
	}
	wg.Wait()

	workersDone := make(chan struct{})
	go func() { s.workerWG.Wait(); close(workersDone) }()
	select {
	case <-workersDone:
	case <-time.After(shutdownDeadline):
		s.log.Info("diagnosis workers did not quiesce before shutdown deadline")
	}

	sinksDone := make(chan struct{})
	go func() { s.sinkWG.Wait(); close(sinksDone) }()
	select {
	case <-sinksDone:
	case <-time.After(shutdownDeadline):
		s.log.Info("sink goroutines did not quiesce before shutdown deadline")
	}

	if s.tickersDone != nil {
		<-s.tickersDone
	}

	s.mu.Lock()
	s.watchers = make(map[string]*watcher.Watcher)
	s.mu.Unlock()
	s.cache = cache.New(s.cfg.CacheTTL, s.cfg.CacheMaxEntries)
	s.log.Info("supervisor stopped")
}

// HealthSnapshot returns a read-only copy of the supervisor's counters and
// per-namespace/connection state (spec.md §4.9 healthSnapshot()).
func (s *Supervisor) HealthSnapshot() model.HealthSnapshot {
	s.metrics.RecordHealthCheck(time.Now())

	s.mu.Lock()
	active := make([]string, 0, len(s.watchers))
	for ns, w := range s.watchers {
		// A watcher that has given up stops being monitored; it is omitted
		// from activeNamespaces (spec.md §7) even though its entry lingers
		// in s.watchers until Stop() clears the map.
		if w.Snapshot().State != watcher.StateGivenUp.String() {
			active = append(active, ns)
		}
	}
	conn := s.connState
	s.mu.Unlock()

	return model.HealthSnapshot{
		TotalFailuresDetected:  s.metrics.TotalFailuresDetected(),
		DiagnosisCallsExecuted: s.metrics.DiagnosisCallsExecuted(),
		ReconnectionAttempts:   s.metrics.ReconnectionAttempts(),
		ActiveNamespaces:       active,
		ConnectionState:        conn,
		CacheStats: model.CacheStats{
			Entries: s.cache.Len(),
			HitRate: s.cache.HitRate(),
		},
	}
}
