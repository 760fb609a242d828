// Package backend implements the secret-bearing HTTP dispatcher (spec.md §6):
// dispatch(request, deadline) -> (body|error), plus a periodic token-refresh
// probe. The core never sees a token; TokenSource is the only thing that
// touches one.
//
// Grounded on the teacher's analyzeWithAI (log_analysis.go): an
// http.NewRequestWithContext + bearer-auth-header + timeout-bound *http.Client
// call. Circuit breaking via sony/gobreaker is new relative to the teacher
// (it has no resilience wrapper at all around its single outbound AI call);
// it is adopted from the rest of the retrieval pack to protect the daemon
// from a wedged backend.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// TokenSource supplies the Authorization header value. The core and this
// adapter never parse or log the returned token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Request is a single outbound call descriptor (spec.md §6 "takes a request
// descriptor").
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header map[string]string
}

// Dispatcher wraps an *http.Client with a circuit breaker and a pluggable
// TokenSource.
type Dispatcher struct {
	httpClient *http.Client
	tokens     TokenSource
	breaker    *gobreaker.CircuitBreaker
}

// New constructs a Dispatcher. name is the circuit breaker's label (surfaced
// in logs/metrics, not the core's concern).
func New(httpClient *http.Client, tokens TokenSource, name string) *Dispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Dispatcher{
		httpClient: httpClient,
		tokens:     tokens,
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

// Dispatch implements dispatch(request, deadline) -> (body|error) (spec.md
// §6).
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, deadline time.Duration) ([]byte, error) {
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	result, err := d.breaker.Execute(func() (interface{}, error) {
		return d.do(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (d *Dispatcher) do(ctx context.Context, req Request) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if d.tokens != nil {
		token, err := d.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquiring token: %w", err)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatching request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// ProbeToken is the "token refresh probe" hook the core calls every 15 min
// (spec.md §6). It logs its own status and never surfaces the token itself.
func (d *Dispatcher) ProbeToken(ctx context.Context) error {
	if d.tokens == nil {
		return nil
	}
	_, err := d.tokens.Token(ctx)
	return err
}
