package model

import "time"

// WatcherSnapshot is a point-in-time, read-only copy of a namespace
// watcher's WatcherState (spec.md §3).
type WatcherSnapshot struct {
	Namespace           string
	StartedAt           time.Time
	LastEventAt         *time.Time
	ConsecutiveFailures int
	Healthy             bool
	State               string
}

// ConnectionState is the supervisor-wide connection health summary (spec.md
// §3).
type ConnectionState struct {
	Healthy                  bool
	LastSuccessfulConnection time.Time
	ConsecutiveFailures      int
	CurrentBackoffMs         int64
}
