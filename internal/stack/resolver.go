// Package stack implements the stack resolver (spec.md §4.4): a deterministic
// decision table over a pod's labels/annotations/name that identifies which
// Helm release, ArgoCD Application, or Flux HelmRelease it belongs to.
//
// The teacher has no equivalent concept (every pod is investigated in
// isolation); the table below is modeled in the teacher's own idiom for
// "ordered, priority-ranked pattern list, first match wins"
// (log_analysis.go's getDefaultPatterns/analyzeWithPatterns).
package stack

import (
	"strings"

	"github.com/opsdev/podsleuthd/internal/model"
)

const (
	annotationHelmRelease = "meta.helm.sh/release-name"

	labelManagedBy      = "app.kubernetes.io/managed-by"
	labelInstance       = "app.kubernetes.io/instance"
	labelHeritage       = "heritage"
	labelTillerRelease  = "release"
	labelHelmChart      = "helm.sh/chart"
	labelArgoInstance   = "argocd.argoproj.io/instance"
	labelFluxHelmName   = "helm.toolkit.fluxcd.io/name"
	labelApp            = "app"
	labelKubernetesName = "app.kubernetes.io/name"
)

// Resolve implements the spec.md §4.4 decision table, first match wins. It
// never consults the network; remote inference is a separate, optional step
// (see inference.go) layered on top by the caller.
func Resolve(pod *model.Pod) model.ReleaseInfo {
	if v, ok := pod.Annotations[annotationHelmRelease]; ok && v != "" {
		return model.ReleaseInfo{
			ReleaseName: v,
			Confidence:  0.98,
			Method:      model.ReleaseMethodAnnotation,
			Evidence:    model.ReleaseEvidence{Annotation: annotationHelmRelease},
		}
	}

	if pod.Labels[labelManagedBy] == "Helm" {
		if v, ok := pod.Labels[labelInstance]; ok && v != "" {
			return model.ReleaseInfo{
				ReleaseName: v,
				Confidence:  0.95,
				Method:      model.ReleaseMethodLabel,
				Evidence:    model.ReleaseEvidence{Label: labelInstance},
			}
		}
	}

	if pod.Labels[labelHeritage] == "Tiller" {
		if v, ok := pod.Labels[labelTillerRelease]; ok && v != "" {
			return model.ReleaseInfo{
				ReleaseName: v,
				Confidence:  0.85,
				Method:      model.ReleaseMethodLabel,
				Evidence:    model.ReleaseEvidence{Label: labelTillerRelease},
			}
		}
	}

	if _, ok := pod.Labels[labelHelmChart]; ok {
		if v, ok := pod.Labels[labelInstance]; ok && v != "" {
			return model.ReleaseInfo{
				ReleaseName: v,
				Confidence:  0.75,
				Method:      model.ReleaseMethodLabel,
				Evidence:    model.ReleaseEvidence{Label: labelInstance},
			}
		}
		if v, ok := pod.Labels[labelApp]; ok && v != "" {
			return model.ReleaseInfo{
				ReleaseName: v,
				Confidence:  0.75,
				Method:      model.ReleaseMethodLabel,
				Evidence:    model.ReleaseEvidence{Label: labelApp},
			}
		}
	}

	if v, ok := pod.Labels[labelArgoInstance]; ok && v != "" {
		return model.ReleaseInfo{
			ReleaseName: v,
			Confidence:  0.80,
			Method:      model.ReleaseMethodLabel,
			Evidence:    model.ReleaseEvidence{Label: labelArgoInstance},
		}
	}

	if v, ok := pod.Labels[labelFluxHelmName]; ok && v != "" {
		return model.ReleaseInfo{
			ReleaseName: v,
			Confidence:  0.80,
			Method:      model.ReleaseMethodLabel,
			Evidence:    model.ReleaseEvidence{Label: labelFluxHelmName},
		}
	}

	if v, ok := pod.Labels[labelApp]; ok && v != "" {
		return model.ReleaseInfo{
			ReleaseName: v,
			Confidence:  0.60,
			Method:      model.ReleaseMethodLabel,
			Evidence:    model.ReleaseEvidence{Label: labelApp},
		}
	}
	if v, ok := pod.Labels[labelKubernetesName]; ok && v != "" {
		return model.ReleaseInfo{
			ReleaseName: v,
			Confidence:  0.60,
			Method:      model.ReleaseMethodLabel,
			Evidence:    model.ReleaseEvidence{Label: labelKubernetesName},
		}
	}

	parts := strings.Split(pod.Name, "-")
	if len(parts) >= 4 {
		name := strings.Join(parts[:len(parts)-2], "-")
		return model.ReleaseInfo{
			ReleaseName: name,
			Confidence:  0.40,
			Method:      model.ReleaseMethodNaming,
			Evidence:    model.ReleaseEvidence{NamingPattern: "dash-separated, drop last 2 parts"},
		}
	}
	if len(parts) >= 2 {
		name := strings.Join(parts[:len(parts)-1], "-")
		return model.ReleaseInfo{
			ReleaseName: name,
			Confidence:  0.30,
			Method:      model.ReleaseMethodNaming,
			Evidence:    model.ReleaseEvidence{NamingPattern: "dash-separated, drop last part"},
		}
	}

	return model.ReleaseInfo{
		ReleaseName: pod.Name,
		Confidence:  0.10,
		Method:      model.ReleaseMethodNone,
	}
}
