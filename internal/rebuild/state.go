// Package rebuild implements self-healing for the recall index: a
// coordinator that debounces structural misses and dispatches at most
// one asynchronous rebuild at a time, and an executor that re-projects
// every source entity through the same projection logic change
// propagation uses.
package rebuild

import (
	"sync/atomic"
	"time"
)

// State is the rebuild singleton: trigger and completion bookkeeping
// shared by the coordinator and the executor. Created once at startup
// and never deleted. All fields are atomics so metric readers never
// block the writers, and writers contend only through compare-and-swap.
type State struct {
	lastTrigger  atomic.Int64 // unix nanos
	lastRebuild  atomic.Int64 // unix nanos
	triggerCount atomic.Uint64
	rebuildCount atomic.Uint64
}

// NewState creates the rebuild state singleton.
func NewState() *State {
	return &State{}
}

// TryTrigger attempts to record a rebuild trigger at now. It returns
// false when a trigger already happened within the debounce window.
// The compare-and-swap guarantees that of N concurrent callers inside
// one window, exactly one wins.
func (s *State) TryTrigger(now time.Time, window time.Duration) bool {
	for {
		last := s.lastTrigger.Load()
		if last != 0 && now.Sub(time.Unix(0, last)) < window {
			return false
		}
		if s.lastTrigger.CompareAndSwap(last, now.UnixNano()) {
			s.triggerCount.Add(1)
			return true
		}
		// Lost the race; re-check against the winner's timestamp.
	}
}

// RecordRebuild records a completed rebuild.
func (s *State) RecordRebuild(now time.Time) {
	s.lastRebuild.Store(now.UnixNano())
	s.rebuildCount.Add(1)
}

// Snapshot is a point-in-time copy of the rebuild state.
type Snapshot struct {
	LastTrigger  time.Time `json:"last_trigger_time"`
	LastRebuild  time.Time `json:"last_rebuild_time"`
	TriggerCount uint64    `json:"trigger_count"`
	RebuildCount uint64    `json:"rebuild_count"`
}

// Snapshot returns the current state without blocking writers.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		TriggerCount: s.triggerCount.Load(),
		RebuildCount: s.rebuildCount.Load(),
	}
	if ns := s.lastTrigger.Load(); ns != 0 {
		snap.LastTrigger = time.Unix(0, ns).UTC()
	}
	if ns := s.lastRebuild.Load(); ns != 0 {
		snap.LastRebuild = time.Unix(0, ns).UTC()
	}
	return snap
}
