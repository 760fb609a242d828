package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opsdev/podsleuthd/internal/adapters/alert"
	"github.com/opsdev/podsleuthd/internal/config"
	"github.com/opsdev/podsleuthd/internal/model"
)

// loadConfigFromEnv reads the PODSLEUTHD_* environment variables into a
// config.Config, starting from config.Default() for every field left unset
// (spec.md §6's table; env vars are the chosen concrete configuration
// source, per SPEC_FULL.md §2 item 10 — the core itself stays opaque to
// where the frozen Config value came from).
func loadConfigFromEnv() (config.Config, error) {
	cfg := config.Default()

	if v := os.Getenv("PODSLEUTHD_NAMESPACES"); v != "" {
		cfg.Namespaces = splitCSV(v)
	}
	if v := os.Getenv("PODSLEUTHD_EXCLUDE_NAMESPACES"); v != "" {
		cfg.ExcludeNamespaces = splitCSV(v)
	}

	if err := setInt32(&cfg.MinRestartThreshold, "PODSLEUTHD_MIN_RESTART_THRESHOLD"); err != nil {
		return cfg, err
	}
	if err := setDurationMs(&cfg.MaxPendingDuration, "PODSLEUTHD_MAX_PENDING_DURATION_MS"); err != nil {
		return cfg, err
	}
	if err := setBool(&cfg.DiagnosisEnabled, "PODSLEUTHD_DIAGNOSIS_ENABLED"); err != nil {
		return cfg, err
	}
	if err := setDurationMs(&cfg.DiagnosisTimeout, "PODSLEUTHD_DIAGNOSIS_TIMEOUT_MS"); err != nil {
		return cfg, err
	}
	if err := setDurationMs(&cfg.CacheTTL, "PODSLEUTHD_CACHE_TTL_MS"); err != nil {
		return cfg, err
	}
	if err := setInt(&cfg.CacheMaxEntries, "PODSLEUTHD_CACHE_MAX_ENTRIES"); err != nil {
		return cfg, err
	}

	if v := os.Getenv("PODSLEUTHD_ALERTING_SEVERITY_FILTERS"); v != "" {
		filters, err := parseSeverities(v)
		if err != nil {
			return cfg, err
		}
		cfg.AlertingSeverityFilters = filters
	}
	if err := setInt(&cfg.AlertingRetry.MaxAttempts, "PODSLEUTHD_ALERTING_RETRY_MAX_ATTEMPTS"); err != nil {
		return cfg, err
	}
	if err := setDurationMs(&cfg.AlertingRetry.Backoff, "PODSLEUTHD_ALERTING_RETRY_BACKOFF_MS"); err != nil {
		return cfg, err
	}
	if err := setDurationMs(&cfg.AlertingRetry.MaxBackoff, "PODSLEUTHD_ALERTING_RETRY_MAX_BACKOFF_MS"); err != nil {
		return cfg, err
	}

	if err := setBool(&cfg.Reconnect.Enabled, "PODSLEUTHD_RECONNECT_ENABLED"); err != nil {
		return cfg, err
	}
	if err := setDurationMs(&cfg.Reconnect.InitialBackoff, "PODSLEUTHD_RECONNECT_INITIAL_BACKOFF_MS"); err != nil {
		return cfg, err
	}
	if err := setDurationMs(&cfg.Reconnect.MaxBackoff, "PODSLEUTHD_RECONNECT_MAX_BACKOFF_MS"); err != nil {
		return cfg, err
	}
	if err := setFloat(&cfg.Reconnect.Multiplier, "PODSLEUTHD_RECONNECT_MULTIPLIER"); err != nil {
		return cfg, err
	}
	if err := setInt(&cfg.Reconnect.MaxConsecutiveFailures, "PODSLEUTHD_RECONNECT_MAX_CONSECUTIVE_FAILURES"); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// alertRetryPolicy converts the frozen config's alerting retry hints into the
// adapter's own RetryPolicy shape.
func alertRetryPolicy(cfg config.Config) alert.RetryPolicy {
	return alert.RetryPolicy{
		MaxAttempts: cfg.AlertingRetry.MaxAttempts,
		Backoff:     cfg.AlertingRetry.Backoff,
		MaxBackoff:  cfg.AlertingRetry.MaxBackoff,
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseSeverities(v string) ([]model.Severity, error) {
	var out []model.Severity
	for _, s := range splitCSV(v) {
		sev, ok := model.ParseSeverity(strings.ToLower(s))
		if !ok {
			return nil, fmt.Errorf("unknown severity %q", s)
		}
		out = append(out, sev)
	}
	return out, nil
}

func setInt(dst *int, envVar string) error {
	v := os.Getenv(envVar)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", envVar, err)
	}
	*dst = n
	return nil
}

func setInt32(dst *int32, envVar string) error {
	v := os.Getenv(envVar)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return fmt.Errorf("%s: %w", envVar, err)
	}
	*dst = int32(n)
	return nil
}

func setFloat(dst *float64, envVar string) error {
	v := os.Getenv(envVar)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", envVar, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, envVar string) error {
	v := os.Getenv(envVar)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", envVar, err)
	}
	*dst = b
	return nil
}

func setDurationMs(dst *time.Duration, envVar string) error {
	v := os.Getenv(envVar)
	if v == "" {
		return nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", envVar, err)
	}
	*dst = time.Duration(ms) * time.Millisecond
	return nil
}
