package inbound

import (
	"slices"
	"sync"
	"time"
)

// PartitionAssignment reports the link.in partitions currently owned by this node.
type PartitionAssignment interface {
	CurrentlyAssignedPartitions() []int32
}

// StaticAssignment is a PartitionAssignment whose snapshot is set explicitly.
type StaticAssignment struct {
	mu    sync.RWMutex
	parts []int32
}

// NewStaticAssignment returns an assignment holding parts.
func NewStaticAssignment(parts ...int32) *StaticAssignment {
	a := &StaticAssignment{}
	a.Set(parts)
	return a
}

// Set replaces the snapshot. Duplicates are dropped.
func (a *StaticAssignment) Set(parts []int32) {
	cp := slices.Clone(parts)
	slices.Sort(cp)
	cp = slices.Compact(cp)
	a.mu.Lock()
	a.parts = cp
	a.mu.Unlock()
}

// CurrentlyAssignedPartitions returns a sorted copy of the snapshot.
func (a *StaticAssignment) CurrentlyAssignedPartitions() []int32 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.parts)
}

// Clock supplies timestamps for delivery markers.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
