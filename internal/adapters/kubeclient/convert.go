package kubeclient

import (
	corev1 "k8s.io/api/core/v1"

	"github.com/opsdev/podsleuthd/internal/kubeclient"
	"github.com/opsdev/podsleuthd/internal/model"
)

func convertPod(pod *corev1.Pod) model.Pod {
	out := model.Pod{
		Name:              pod.Name,
		Namespace:         pod.Namespace,
		Phase:             model.PodPhase(pod.Status.Phase),
		StatusReason:      pod.Status.Reason,
		StatusMessage:     pod.Status.Message,
		CreationTimestamp: pod.CreationTimestamp.Time,
		Labels:            pod.Labels,
		Annotations:       pod.Annotations,
	}
	if out.Phase == "" {
		out.Phase = model.PodUnknown
	}

	for _, owner := range pod.OwnerReferences {
		out.OwnerReferences = append(out.OwnerReferences, model.OwnerReference{
			Kind: owner.Kind,
			Name: owner.Name,
			UID:  string(owner.UID),
		})
	}
	for _, c := range pod.Spec.Containers {
		out.Images = append(out.Images, model.ContainerImage{Name: c.Name, Image: c.Image})
	}

	for _, cs := range pod.Status.ContainerStatuses {
		out.ContainerStatuses = append(out.ContainerStatuses, convertContainerStatus(cs, model.ContainerKindMain))
	}
	for _, cs := range pod.Status.InitContainerStatuses {
		out.InitContainerStatuses = append(out.InitContainerStatuses, convertContainerStatus(cs, model.ContainerKindInit))
	}
	return out
}

func convertContainerStatus(cs corev1.ContainerStatus, kind model.ContainerKind) model.ContainerStatus {
	out := model.ContainerStatus{
		Name:         cs.Name,
		Kind:         kind,
		RestartCount: cs.RestartCount,
	}
	switch {
	case cs.State.Running != nil:
		out.State = model.ContainerState{Kind: model.ContainerStateRunning}
	case cs.State.Waiting != nil:
		out.State = model.ContainerState{
			Kind:    model.ContainerStateWaiting,
			Reason:  cs.State.Waiting.Reason,
			Message: cs.State.Waiting.Message,
		}
	case cs.State.Terminated != nil:
		out.State = model.ContainerState{
			Kind:     model.ContainerStateTerminated,
			Reason:   cs.State.Terminated.Reason,
			Message:  cs.State.Terminated.Message,
			ExitCode: cs.State.Terminated.ExitCode,
		}
	default:
		out.State = model.ContainerState{Kind: model.ContainerStateUnknown}
	}
	return out
}

func convertEvent(ev *corev1.Event) kubeclient.Event {
	ts := ev.LastTimestamp.Time
	if ts.IsZero() {
		ts = ev.EventTime.Time
	}
	out := kubeclient.Event{
		UID:     string(ev.UID),
		Type:    ev.Type,
		Reason:  ev.Reason,
		Message: ev.Message,
		InvolvedObject: model.OwnerReference{
			Kind: ev.InvolvedObject.Kind,
			Name: ev.InvolvedObject.Name,
			UID:  string(ev.InvolvedObject.UID),
		},
	}
	if !ts.IsZero() {
		out.LastTimestampNs = ts.UnixNano()
	}
	return out
}
