// Package alert implements the optional alert sink (spec.md §6): emit(ev)
// fire-and-forget, with its own bounded retry policy
// (alerting.retry.{maxAttempts,backoffMs,maxBackoffMs}).
//
// The teacher has no alerting concept; the Slack client is adopted from the
// rest of the retrieval pack as the concrete fire-and-forget sink, the
// natural destination for "severity crossed a threshold" notifications in
// this domain.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/slack-go/slack"

	"github.com/opsdev/podsleuthd/internal/model"
)

// RetryPolicy mirrors spec.md §6's alerting.retry.* config.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

// Sink emits FailureEvents fire-and-forget (spec.md §6). Failures are logged,
// never propagated to the watcher (spec.md §7: "hook failures MUST NOT crash
// the watcher").
type Sink interface {
	Emit(ctx context.Context, ev *model.FailureEvent)
}

// SlackSink posts a formatted message to a Slack channel via
// chat.PostMessage.
type SlackSink struct {
	client  *slack.Client
	channel string
	retry   RetryPolicy
	log     logr.Logger
}

// NewSlackSink constructs a SlackSink. token is the bot token; the core never
// sees it (it is handed directly to this adapter at wiring time, not routed
// through the core).
func NewSlackSink(token, channel string, retry RetryPolicy, log logr.Logger) *SlackSink {
	return &SlackSink{client: slack.New(token), channel: channel, retry: retry, log: log}
}

// NewSlackSinkForTesting points the Slack client at an alternate API base
// URL (an httptest server, typically) instead of the real Slack API.
func NewSlackSinkForTesting(apiURL string, retry RetryPolicy, log logr.Logger) *SlackSink {
	return &SlackSink{
		client:  slack.New("test-token", slack.OptionAPIURL(apiURL+"/")),
		channel: "test-channel",
		retry:   retry,
		log:     log,
	}
}

// Emit implements Sink. It never blocks the caller beyond its own bounded
// retry loop and never returns an error: per spec.md §7, alert-sink failures
// are logged and suppressed.
func (s *SlackSink) Emit(ctx context.Context, ev *model.FailureEvent) {
	msg := format(ev)

	attempts := s.retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := s.retry.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return
		}
		_, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(msg, false))
		if err == nil {
			return
		}
		lastErr = err

		if i < attempts-1 {
			delay := backoff * time.Duration(1<<uint(i))
			if s.retry.MaxBackoff > 0 && delay > s.retry.MaxBackoff {
				delay = s.retry.MaxBackoff
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
	s.log.Error(lastErr, "alert sink gave up after exhausting retries", "pod", ev.PodName, "namespace", ev.Namespace)
}

func format(ev *model.FailureEvent) string {
	return fmt.Sprintf(":rotating_light: [%s] %s/%s — %s: %s (correlationId=%s)",
		ev.Severity, ev.Namespace, ev.PodName, ev.Pattern, ev.Reason, ev.CorrelationID)
}
