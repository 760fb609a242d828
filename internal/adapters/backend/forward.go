package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsdev/podsleuthd/internal/model"
)

// payload is the JSON body POSTed to the external analysis backend. It
// mirrors analyzeWithAI's request construction (log_analysis.go) generalized
// from "one pod's logs" to the full StackBundle.
type payload struct {
	CorrelationID string            `json:"correlationId"`
	Namespace     string            `json:"namespace"`
	Pod           string            `json:"pod"`
	Pattern       string            `json:"pattern"`
	Severity      string            `json:"severity"`
	Reason        string            `json:"reason"`
	Message       string            `json:"message"`
	Bundle        model.StackBundle `json:"bundle"`
}

// ForwardingSink adapts a Dispatcher into the supervisor's BackendSink
// contract (spec.md §1, §6): it marshals the event and its collected bundle
// into the request body analyzeWithAI used to build by hand.
type ForwardingSink struct {
	dispatcher *Dispatcher
	url        string
	deadline   time.Duration
}

// NewForwardingSink constructs a ForwardingSink that POSTs to url.
func NewForwardingSink(dispatcher *Dispatcher, url string, deadline time.Duration) *ForwardingSink {
	return &ForwardingSink{dispatcher: dispatcher, url: url, deadline: deadline}
}

// Forward implements the supervisor's BackendSink interface.
func (f *ForwardingSink) Forward(ctx context.Context, ev *model.FailureEvent, bundle model.StackBundle) error {
	body, err := json.Marshal(payload{
		CorrelationID: ev.CorrelationID,
		Namespace:     ev.Namespace,
		Pod:           ev.PodName,
		Pattern:       string(ev.Pattern),
		Severity:      ev.Severity.String(),
		Reason:        ev.Reason,
		Message:       ev.Message,
		Bundle:        bundle,
	})
	if err != nil {
		return fmt.Errorf("backend: marshal payload: %w", err)
	}

	_, err = f.dispatcher.Dispatch(ctx, Request{
		Method: "POST",
		URL:    f.url,
		Body:   body,
		Header: map[string]string{"X-Correlation-Id": ev.CorrelationID},
	}, f.deadline)
	return err
}

// ProbeToken delegates to the wrapped Dispatcher, satisfying the
// supervisor's TokenProbe interface from the same adapter instance.
func (f *ForwardingSink) ProbeToken(ctx context.Context) error {
	return f.dispatcher.ProbeToken(ctx)
}
