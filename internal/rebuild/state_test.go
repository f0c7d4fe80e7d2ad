package rebuild

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestState_TryTriggerDebounce(t *testing.T) {
	s := NewState()
	window := 30 * time.Second
	now := time.Now()

	assert.True(t, s.TryTrigger(now, window), "first trigger always wins")
	assert.False(t, s.TryTrigger(now.Add(time.Second), window))
	assert.False(t, s.TryTrigger(now.Add(window-time.Millisecond), window))
	assert.True(t, s.TryTrigger(now.Add(window), window), "the window has elapsed")

	snap := s.Snapshot()
	assert.Equal(t, uint64(2), snap.TriggerCount)
}

func TestState_TryTriggerExactlyOneWinner(t *testing.T) {
	s := NewState()
	now := time.Now()

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryTrigger(now, 30*time.Second) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load(), "of N concurrent triggers in one window exactly one wins")
	assert.Equal(t, uint64(1), s.Snapshot().TriggerCount)
}

func TestState_Snapshot(t *testing.T) {
	s := NewState()
	snap := s.Snapshot()
	assert.True(t, snap.LastTrigger.IsZero())
	assert.True(t, snap.LastRebuild.IsZero())

	now := time.Now()
	s.TryTrigger(now, time.Second)
	s.RecordRebuild(now.Add(time.Second))

	snap = s.Snapshot()
	assert.Equal(t, now.UnixNano(), snap.LastTrigger.UnixNano())
	assert.Equal(t, now.Add(time.Second).UnixNano(), snap.LastRebuild.UnixNano())
	assert.Equal(t, uint64(1), snap.TriggerCount)
	assert.Equal(t, uint64(1), snap.RebuildCount)
}
