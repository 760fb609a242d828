// Package classifier implements the pure pod/container failure classifier
// (spec.md §4.6): a pod object in, an optional structured FailureEvent out.
//
// The checks and their order are grounded on the teacher's
// investigatePodFailure/investigateContainerStatus (podsleuth_controller.go):
// phase check first, then a container-status walk that inspects Waiting and
// Terminated states and restart counts, generalized from "build a free-form
// message" to "produce one of six typed patterns with a severity."
package classifier

import (
	"fmt"
	"time"

	"github.com/opsdev/podsleuthd/internal/model"
)

// Config is the subset of configuration the classifier needs (spec.md §6).
type Config struct {
	MinRestartThreshold int32
	MaxPendingDuration  time.Duration
}

// DefaultConfig matches spec.md §4.6's stated defaults.
func DefaultConfig() Config {
	return Config{MinRestartThreshold: 3, MaxPendingDuration: 10 * time.Minute}
}

var waitingErrorSeverity = map[string]model.Severity{
	"CrashLoopBackOff":           model.SeverityCritical,
	"ImagePullBackOff":           model.SeverityHigh,
	"ErrImagePull":               model.SeverityHigh,
	"CreateContainerConfigError": model.SeverityMedium,
	"InvalidImageName":           model.SeverityMedium,
}

// Classify implements classify(pod, namespace) -> FailureEvent? (spec.md
// §4.6). now is injected so callers control DetectedAt/"current time" without
// the classifier reaching for wall-clock time itself.
func Classify(pod *model.Pod, namespace string, cfg Config, now time.Time) *model.FailureEvent {
	if pod.Phase == model.PodFailed {
		reason := pod.StatusReason
		if reason == "" {
			reason = "Unknown"
		}
		message := pod.StatusMessage
		if message == "" {
			message = "no further detail reported by the API server"
		}
		return build(pod, namespace, now, model.PatternPodPhaseFailed, model.SeverityCritical,
			fmt.Sprintf("Pod phase is Failed: %s", reason), message)
	}

	if pod.Phase == model.PodPending {
		age := now.Sub(pod.CreationTimestamp)
		if age > cfg.MaxPendingDuration {
			return build(pod, namespace, now, model.PatternLongPending, model.SeverityHigh,
				fmt.Sprintf("Pod has been Pending for %s", age.Round(time.Second)),
				fmt.Sprintf("creationTimestamp=%s, threshold=%s", pod.CreationTimestamp.Format(time.RFC3339), cfg.MaxPendingDuration))
		}
	}

	for _, cs := range pod.AllContainerStatuses() {
		if cs.State.Kind == model.ContainerStateWaiting {
			if sev, ok := waitingErrorSeverity[cs.State.Reason]; ok {
				return build(pod, namespace, now, model.PatternContainerWaitingError, sev,
					fmt.Sprintf("Container %s is waiting: %s", cs.Name, cs.State.Reason),
					orPlaceholder(cs.State.Message))
			}
		}
	}

	for _, cs := range pod.AllContainerStatuses() {
		if cs.RestartCount >= cfg.MinRestartThreshold {
			return build(pod, namespace, now, model.PatternHighRestartCount, restartSeverity(cs.RestartCount),
				fmt.Sprintf("Container %s has restarted %d times", cs.Name, cs.RestartCount),
				fmt.Sprintf("restartCount=%d, threshold=%d", cs.RestartCount, cfg.MinRestartThreshold))
		}
	}

	for _, cs := range pod.AllContainerStatuses() {
		if cs.State.Kind == model.ContainerStateTerminated && cs.State.ExitCode != 0 {
			return build(pod, namespace, now, model.PatternContainerTerminated, model.SeverityHigh,
				fmt.Sprintf("Container %s terminated with exit code %d", cs.Name, cs.State.ExitCode),
				orPlaceholder(cs.State.Message))
		}
	}

	// resource-constraint is reserved for future expansion; spec.md §4.6
	// mandates nil here.
	return nil
}

func restartSeverity(restartCount int32) model.Severity {
	switch {
	case restartCount >= 10:
		return model.SeverityCritical
	case restartCount >= 5:
		return model.SeverityHigh
	case restartCount >= 3:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func orPlaceholder(s string) string {
	if s == "" {
		return "no further detail reported by the API server"
	}
	return s
}

func build(pod *model.Pod, namespace string, now time.Time, pattern model.FailurePattern, severity model.Severity, reason, message string) *model.FailureEvent {
	return &model.FailureEvent{
		PodName:    pod.Name,
		Namespace:  namespace,
		DetectedAt: now,
		Pattern:    pattern,
		Severity:   severity,
		Reason:     reason,
		Message:    message,
		Snapshot:   snapshot(pod),
	}
}

func snapshot(pod *model.Pod) model.Snapshot {
	all := pod.AllContainerStatuses()
	states := make([]model.SnapshotContainerState, 0, len(all))
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
		states = append(states, entry)
	}
	return model.Snapshot{
		Phase:             pod.Phase,
		CreationTimestamp: pod.CreationTimestamp,
		Labels:            pod.Labels,
		OwnerReferences:   pod.OwnerReferences,
		ContainerStates:   states,
	}
}
