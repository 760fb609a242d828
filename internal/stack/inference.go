package stack

import (
	"context"
	"time"

	"github.com/opsdev/podsleuthd/internal/model"
)

// InferenceRequest is the payload sent to the optional remote inference
// endpoint (spec.md §4.4).
type InferenceRequest struct {
	Labels      map[string]string
	Annotations map[string]string
	Containers  []model.ContainerImage
	OwnerRefs   []string
}

// InferenceResult is what the remote endpoint returns.
type InferenceResult struct {
	ReleaseName string
	Confidence  float64
}

// Inferrer issues the single remote release-inference call. A real
// implementation lives behind the backend HTTP dispatcher adapter
// (internal/adapters/backend); the stack package only depends on this
// narrow interface, grounded on the teacher's analyzeWithAI
// request/response shape (log_analysis.go), generalized from "root cause
// text" to "release name + confidence."
type Inferrer interface {
	Infer(ctx context.Context, req InferenceRequest) (InferenceResult, error)
}

// DefaultConfidenceThreshold is the spec.md §4.4 default below which a remote
// inference call may be attempted.
const DefaultConfidenceThreshold = 0.7

// DefaultInferenceDeadline is the spec.md §4.4 default hard deadline for the
// remote call.
const DefaultInferenceDeadline = 5 * time.Second

// ResolveWithInference runs the local decision table, then optionally
// consults inferrer if local confidence is below threshold. Remote failures
// are silent: the local result is returned unchanged (spec.md §4.4 "failure
// is silent and falls back to local").
func ResolveWithInference(ctx context.Context, pod *model.Pod, inferrer Inferrer, threshold float64, deadline time.Duration) model.ReleaseInfo {
	local := Resolve(pod)
	if inferrer == nil || local.Confidence >= threshold {
		return local
	}

	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	req := InferenceRequest{Labels: pod.Labels, Annotations: pod.Annotations, Containers: pod.Images}
	for _, o := range pod.OwnerReferences {
		req.OwnerRefs = append(req.OwnerRefs, o.Name)
	}

	result, err := inferrer.Infer(callCtx, req)
	if err != nil || result.Confidence <= local.Confidence {
		return local
	}
	return model.ReleaseInfo{
		ReleaseName: result.ReleaseName,
		Confidence:  result.Confidence,
		Method:      model.ReleaseMethodNone,
		Evidence:    model.ReleaseEvidence{NamingPattern: "remote-inference"},
	}
}
