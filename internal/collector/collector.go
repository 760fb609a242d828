// Package collector implements the diagnostic collector (spec.md §4.5):
// given a primary pod, it discovers sibling pods in the same release and
// gathers (status, events, logs) for all of them, bounded in parallelism and
// deadline.
//
// The teacher has no multi-pod fan-out of its own (every pod is investigated
// alone); its one concurrency idiom, a sync.RWMutex-guarded map
// (podsleuth_controller.go's analysisCache), doesn't fit an N-way fan-out, so
// the bounded-worker-semaphore shape here is the idiomatic Go default for
// that instead, and golang.org/x/time/rate throttles the resulting burst of
// outbound API calls against the API server, per spec.md §4.5's own
// recommendation.
package collector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/opsdev/podsleuthd/internal/kubeclient"
	"github.com/opsdev/podsleuthd/internal/model"
	"github.com/opsdev/podsleuthd/internal/rules"
	"github.com/opsdev/podsleuthd/internal/sanitizer"
	"github.com/opsdev/podsleuthd/internal/stack"
)

// Config controls the collector's bounded parallelism and policy knobs
// (spec.md §4.5).
type Config struct {
	SiblingConcurrency  int
	TailLines           int64
	EventRetries        int
	EventRetryDelay     time.Duration
	ConfidenceThreshold float64
	Deadline            time.Duration
}

// DefaultConfig matches spec.md §4.5's stated defaults.
func DefaultConfig() Config {
	return Config{
		SiblingConcurrency:  16,
		TailLines:           200,
		EventRetries:        2,
		EventRetryDelay:     500 * time.Millisecond,
		ConfidenceThreshold: 0.7,
		Deadline:            30 * time.Second,
	}
}

// Collector fetches a StackBundle for a primary pod.
type Collector struct {
	client  kubeclient.Client
	limiter *rate.Limiter
	rules   *rules.Table
	log     logr.Logger
}

// New constructs a Collector. limiter throttles outbound API calls; pass nil
// for no throttling (tests commonly do). ruleTable is optional (spec.md §2
// flow: "Rule matcher runs inside collector for optional local hint"); pass
// nil to skip local triage hints entirely.
func New(client kubeclient.Client, limiter *rate.Limiter, ruleTable *rules.Table, log logr.Logger) *Collector {
	return &Collector{client: client, limiter: limiter, rules: ruleTable, log: log}
}

// Collect implements collect(primaryPod, namespace) -> StackBundle (spec.md
// §4.5).
func (c *Collector) Collect(ctx context.Context, primary *model.Pod, namespace string, cfg Config) model.StackBundle {
	if cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Deadline)
		defer cancel()
	}

	info := stack.Resolve(primary)
	primaryBundle := c.collectOne(ctx, namespace, primary, cfg)
	hint := c.matchHint(primaryBundle)

	if info.Confidence < cfg.ConfidenceThreshold {
		return model.StackBundle{PrimaryPod: primaryBundle, Hint: hint}
	}

	siblings, err := c.siblingSet(ctx, namespace, primary, info.ReleaseName)
	if err != nil {
		c.log.Error(err, "failed to list sibling pods, falling back to single-pod bundle",
			"namespace", namespace, "release", info.ReleaseName)
		return model.StackBundle{PrimaryPod: primaryBundle, Hint: hint}
	}

	components := c.collectSiblings(ctx, namespace, primary, siblings, cfg)
	return model.StackBundle{
		PrimaryPod: primaryBundle,
		Stack: &model.StackInfo{
			ReleaseName: info.ReleaseName,
			Confidence:  info.Confidence,
			Components:  components,
		},
		Hint: hint,
	}
}

// matchHint runs the optional rule table (spec.md §4.2) against the primary
// pod's collected container states and logs, returning the first firing
// rule's diagnosis, or nil if no table is configured or nothing fires.
func (c *Collector) matchHint(bundle model.PrimaryPodBundle) *model.RuleHint {
	if c.rules == nil {
		return nil
	}
	d := c.rules.Evaluate(rules.Input{
		ContainerStates: bundle.ContainerStates,
		Events:          bundle.Events,
		Logs:            bundle.Logs,
	})
	if d == nil {
		return nil
	}
	return &model.RuleHint{
		Summary:      d.Summary,
		Confidence:   d.Confidence,
		SuggestedFix: d.SuggestedFix,
		Tags:         d.Tags,
	}
}

// siblingSet computes S = {p : p.name == release || p.name startsWith
// release + "-"} with the primary first, deduplicated (spec.md §4.5 step 2).
func (c *Collector) siblingSet(ctx context.Context, namespace string, primary *model.Pod, release string) ([]*model.Pod, error) {
	c.throttle(ctx)
	all, err := c.client.ListPods(ctx, namespace)
	if err != nil {
		return nil, err
	}

	out := []*model.Pod{primary}
	seen := map[string]bool{primary.Name: true}
	prefix := release + "-"
	for i := range all {
		p := &all[i]
		if p.Name != release && !strings.HasPrefix(p.Name, prefix) {
			continue
		}
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out, nil
}

func (c *Collector) collectSiblings(ctx context.Context, namespace string, primary *model.Pod, siblings []*model.Pod, cfg Config) []model.ComponentStatus {
	sem := make(chan struct{}, maxInt(1, cfg.SiblingConcurrency))
	results := make([]model.ComponentStatus, len(siblings))

	var wg sync.WaitGroup
	for i, p := range siblings {
		wg.Add(1)
		go func(i int, p *model.Pod) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if p.Name == primary.Name {
				bundle := c.collectOne(ctx, namespace, p, cfg)
				results[i] = model.ComponentStatus{
					Name:   p.Name,
					Status: summarizeStatus(p),
					Events: bundle.Events,
					Logs:   bundle.Logs,
				}
				return
			}
			results[i] = c.collectComponent(ctx, namespace, p, cfg)
		}(i, p)
	}
	wg.Wait()
	return results
}

func (c *Collector) collectComponent(ctx context.Context, namespace string, p *model.Pod, cfg Config) model.ComponentStatus {
	bundle := c.collectOne(ctx, namespace, p, cfg)
	return model.ComponentStatus{
		Name:   p.Name,
		Status: summarizeStatus(p),
		Events: bundle.Events,
		Logs:   bundle.Logs,
	}
}

// collectOne fetches events, logs, and a container-state snapshot for a
// single pod (spec.md §4.5 step 3). Per-pod failures never abort the bundle:
// the pod comes back with empty slices and a placeholder log line.
func (c *Collector) collectOne(ctx context.Context, namespace string, p *model.Pod, cfg Config) model.PrimaryPodBundle {
	var errs error

	events, err := c.fetchEvents(ctx, namespace, p, cfg)
	errs = multierr.Append(errs, err)

	logs, err := c.fetchLogs(ctx, namespace, p, cfg)
	errs = multierr.Append(errs, err)

	if errs != nil {
		logs = append(logs, fmt.Sprintf("podsleuthd: failed to collect complete data for %s/%s: %s", namespace, p.Name, errs.Error()))
		c.log.Error(errs, "partial collection failure", "namespace", namespace, "pod", p.Name)
	}

	return model.PrimaryPodBundle{
		Name:            p.Name,
		Namespace:       namespace,
		Events:          events,
		Logs:            sanitizer.Lines(logs),
		ContainerStates: containerStates(p),
	}
}

// fetchEvents fetches events for the pod and each of its owner references,
// dedupes, sorts, and caps at 20 (spec.md §4.5 step 4), retrying up to
// cfg.EventRetries times if the first attempt returns zero events.
func (c *Collector) fetchEvents(ctx context.Context, namespace string, p *model.Pod, cfg Config) ([]model.EventRecord, error) {
	fieldSelectors := []string{fmt.Sprintf("involvedObject.name=%s", p.Name)}
	for _, o := range p.OwnerReferences {
		fieldSelectors = append(fieldSelectors, fmt.Sprintf("involvedObject.name=%s", o.Name))
	}

	attempt := func() ([]model.EventRecord, error) {
		var all []kubeclient.Event
		var errs error
		for _, fs := range fieldSelectors {
			c.throttle(ctx)
			evs, err := c.client.ListEvents(ctx, namespace, fs)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			all = append(all, evs...)
		}
		return dedupeAndSortEvents(all), errs
	}

	events, err := attempt()
	for i := 0; len(events) == 0 && i < cfg.EventRetries; i++ {
		select {
		case <-ctx.Done():
			return events, ctx.Err()
		case <-time.After(cfg.EventRetryDelay):
		}
		events, err = attempt()
	}
	return events, err
}

func dedupeAndSortEvents(evs []kubeclient.Event) []model.EventRecord {
	seen := make(map[string]bool)
	out := make([]model.EventRecord, 0, len(evs))
	for _, e := range evs {
		key := e.UID
		if key == "" {
			key = e.InvolvedObject.Name + "|" + e.Reason + "|" + e.Message
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, model.EventRecord{
			UID:            e.UID,
			Type:           e.Type,
			Reason:         e.Reason,
			Message:        e.Message,
			InvolvedObject: e.InvolvedObject,
			Timestamp:      e.LastTimestampNs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if len(out) > 20 {
		out = out[:20]
	}
	return out
}

// fetchLogs streams tailLines from every init+main container (spec.md §4.5
// step 4), passing every line through the sanitizer before it is placed in
// the bundle (step 5, and the collectOne caller applies sanitizer.Lines as
// the final step so this only gathers raw lines).
func (c *Collector) fetchLogs(ctx context.Context, namespace string, p *model.Pod, cfg Config) ([]string, error) {
	var out []string
	var errs error
	for _, img := range p.Images {
		c.throttle(ctx)
		lines, err := c.client.StreamLogs(ctx, namespace, p.Name, img.Name, cfg.TailLines)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("container %s: %w", img.Name, err))
			continue
		}
		out = append(out, lines...)
	}
	return out, errs
}

func containerStates(p *model.Pod) []model.SnapshotContainerState {
	all := p.AllContainerStatuses()
	out := make([]model.SnapshotContainerState, 0, len(all))
	for _, cs := range all {
		entry := model.SnapshotContainerState{
			Name:         cs.Name,
			Kind:         cs.Kind,
			State:        cs.State.Kind,
			Reason:       cs.State.Reason,
			RestartCount: cs.RestartCount,
		}
		if cs.State.Kind == model.ContainerStateTerminated {
			exitCode := cs.State.ExitCode
			entry.ExitCode = &exitCode
		}
		out = append(out, entry)
	}
	return out
}

func summarizeStatus(p *model.Pod) string {
	var parts []string
	for _, cs := range p.AllContainerStatuses() {
		switch cs.State.Kind {
		case model.ContainerStateWaiting:
			parts = append(parts, fmt.Sprintf("%s:waiting(%s)", cs.Name, cs.State.Reason))
		case model.ContainerStateTerminated:
			parts = append(parts, fmt.Sprintf("%s:terminated(exit=%d)", cs.Name, cs.State.ExitCode))
		default:
			parts = append(parts, fmt.Sprintf("%s:%s", cs.Name, cs.State.Kind))
		}
	}
	if len(parts) == 0 {
		return string(p.Phase)
	}
	return strings.Join(parts, ", ")
}

func (c *Collector) throttle(ctx context.Context) {
	if c.limiter == nil {
		return
	}
	_ = c.limiter.Wait(ctx)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
