package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	UsersCreated              uint64
	UserCacheHits             uint64
	UserCacheMisses           uint64
	UserLookupDurationCount   uint64
	UserLookupDurationTotalNs int64
	UserEventsPublished       uint64
	UserEventsDropped         uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	usersCreated              uint64
	userCacheHits             uint64
	userCacheMisses           uint64
	userLookupDurationCount   uint64
	userLookupDurationTotalNs int64
	userEventsPublished       uint64
	userEventsDropped         uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		UsersCreated:              atomic.LoadUint64(&m.usersCreated),
		UserCacheHits:             atomic.LoadUint64(&m.userCacheHits),
		UserCacheMisses:           atomic.LoadUint64(&m.userCacheMisses),
		UserLookupDurationCount:   atomic.LoadUint64(&m.userLookupDurationCount),
		UserLookupDurationTotalNs: atomic.LoadInt64(&m.userLookupDurationTotalNs),
		UserEventsPublished:       atomic.LoadUint64(&m.userEventsPublished),
		UserEventsDropped:         atomic.LoadUint64(&m.userEventsDropped),
	}
}

// IncUserCreated increments user created counter.
func (m *InMemoryRecorder) IncUserCreated() {
	atomic.AddUint64(&m.usersCreated, 1)
}

// IncUserCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncUserCacheHit() {
	atomic.AddUint64(&m.userCacheHits, 1)
}

// IncUserCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncUserCacheMiss() {
	atomic.AddUint64(&m.userCacheMisses, 1)
}

// ObserveUserLookupDuration records lookup duration.
func (m *InMemoryRecorder) ObserveUserLookupDuration(duration time.Duration) {
	atomic.AddUint64(&m.userLookupDurationCount, 1)
	atomic.AddInt64(&m.userLookupDurationTotalNs, duration.Nanoseconds())
}

// IncUserEventPublished increments the published or dropped event counter.
func (m *InMemoryRecorder) IncUserEventPublished(status string) {
	if status == StatusSuccess {
		atomic.AddUint64(&m.userEventsPublished, 1)
		return
	}
	atomic.AddUint64(&m.userEventsDropped, 1)
}
