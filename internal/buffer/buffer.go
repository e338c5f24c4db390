package buffer

import (
	"slices"
	"sync"

	"github.com/utrack/statlens/internal/model"
)

// DefaultCapacity is the number of samples a real-time series retains.
const DefaultCapacity = 50

// Ingest merges s into current and returns the next buffer state.
// current must already be sorted ascending by time; it is never modified.
//
// A sample whose Timestamp string equals an existing entry replaces that entry in place.
// Otherwise s is appended and the series re-sorted by parsed time. Only the newest
// capacity entries are kept.
func Ingest(current []model.Sample, s model.Sample, capacity int) []model.Sample {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	if idx := slices.IndexFunc(current, func(existing model.Sample) bool {
		return existing.Timestamp == s.Timestamp
	}); idx >= 0 {
		next := slices.Clone(current)
		next[idx] = s
		return next
	}

	next := make([]model.Sample, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, s)
	slices.SortStableFunc(next, func(a, b model.Sample) int {
		return a.At.Compare(b.At)
	})

	if len(next) > capacity {
		next = slices.Clone(next[len(next)-capacity:])
	}
	return next
}

// Buffer owns one bounded, sorted, deduplicated series of samples.
type Buffer struct {
	capacity int

	mu      sync.RWMutex
	samples []model.Sample
}

// New creates an empty buffer. Non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity}
}

// Capacity returns the maximum number of retained samples.
func (b *Buffer) Capacity() int { return b.capacity }

// Ingest merges one sample and reports the resulting length.
func (b *Buffer) Ingest(s model.Sample) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = Ingest(b.samples, s, b.capacity)
	return len(b.samples)
}

// Snapshot returns a copy of the current series.
func (b *Buffer) Snapshot() []model.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.Sample, len(b.samples))
	copy(out, b.samples)
	return out
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Reset drops every sample.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.samples = nil
	b.mu.Unlock()
}
