package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncUserCreated is a no-op.
func (n *NoopRecorder) IncUserCreated() {}

// IncUserCacheHit is a no-op.
func (n *NoopRecorder) IncUserCacheHit() {}

// IncUserCacheMiss is a no-op.
func (n *NoopRecorder) IncUserCacheMiss() {}

// ObserveUserLookupDuration is a no-op.
func (n *NoopRecorder) ObserveUserLookupDuration(duration time.Duration) {}

// IncUserEventPublished is a no-op.
func (n *NoopRecorder) IncUserEventPublished(status string) {}
