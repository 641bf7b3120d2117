package core

import "sync/atomic"

// ResourceStats is a point-in-time copy of ResourceMetrics.
type ResourceStats struct {
	Allocations uint64
	Releases    uint64
	Failures    uint64
}

// Live returns the number of allocations not yet released.
func (s ResourceStats) Live() uint64 {
	return s.Allocations - s.Releases
}

// ResourceMetrics counts native allocations and releases of a backend.
// Counters are atomic so the stats can be read from any goroutine while the
// command thread updates them.
type ResourceMetrics struct {
	allocations atomic.Uint64
	releases    atomic.Uint64
	failures    atomic.Uint64
}

func (m *ResourceMetrics) RecordAllocation() {
	m.allocations.Add(1)
}

func (m *ResourceMetrics) RecordRelease() {
	m.releases.Add(1)
}

func (m *ResourceMetrics) RecordFailure() {
	m.failures.Add(1)
}

func (m *ResourceMetrics) Snapshot() ResourceStats {
	return ResourceStats{
		Allocations: m.allocations.Load(),
		Releases:    m.releases.Load(),
		Failures:    m.failures.Load(),
	}
}
