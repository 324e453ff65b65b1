// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Event publish outcomes.
const (
	StatusSuccess = "success"
	StatusDropped = "dropped"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// User lifecycle metrics
	IncUserCreated()

	// Lookup metrics
	IncUserCacheHit()
	IncUserCacheMiss()
	ObserveUserLookupDuration(duration time.Duration)

	// Event pipeline metrics
	IncUserEventPublished(status string) // status: "success" or "dropped"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
