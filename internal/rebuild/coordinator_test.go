package rebuild

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// stubProbe reports a fixed emptiness answer.
type stubProbe struct{ empty bool }

func (p stubProbe) IsEmpty(scopeID string) bool { return p.empty }

// countingNotifier records dispatches and can be told to fail.
type countingNotifier struct {
	name      string
	fail      bool
	calls     atomic.Int64
	lastScope atomic.Value
}

func (n *countingNotifier) Name() string { return n.name }

func (n *countingNotifier) Notify(ctx context.Context, scopeID, triggeredBy string) error {
	n.lastScope.Store(scopeID)
	n.calls.Add(1)
	if n.fail {
		return errors.New("dispatch refused")
	}
	return nil
}

func waitForCalls(t *testing.T, n *countingNotifier, want int64) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return n.calls.Load() == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCoordinator_PopulatedScopeNeverTriggers(t *testing.T) {
	n := &countingNotifier{name: "test"}
	c := NewCoordinator(stubProbe{empty: false}, NewState(), []Notifier{n}, time.Minute, nil)

	for i := 0; i < 10; i++ {
		c.OnStructuralMiss(context.Background(), "acme", "lookup")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), n.calls.Load(), "a miss against a populated scope is an ordinary NotFound")
	assert.Equal(t, uint64(0), c.state.Snapshot().TriggerCount)
}

func TestCoordinator_ConcurrentMissesDispatchOnce(t *testing.T) {
	n := &countingNotifier{name: "test"}
	c := NewCoordinator(stubProbe{empty: true}, NewState(), []Notifier{n}, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.OnStructuralMiss(context.Background(), "acme", "lookup")
		}()
	}
	wg.Wait()

	waitForCalls(t, n, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), n.calls.Load(), "N concurrent misses produce exactly one dispatch")
}

func TestCoordinator_DebounceSuppressesRetrigger(t *testing.T) {
	n := &countingNotifier{name: "test"}
	c := NewCoordinator(stubProbe{empty: true}, NewState(), []Notifier{n}, 200*time.Millisecond, nil)

	c.OnStructuralMiss(context.Background(), "acme", "lookup")
	c.OnStructuralMiss(context.Background(), "acme", "fuzzy")
	waitForCalls(t, n, 1)

	// After the window elapses the next miss triggers again.
	time.Sleep(250 * time.Millisecond)
	c.OnStructuralMiss(context.Background(), "acme", "lookup")
	waitForCalls(t, n, 2)
}

func TestCoordinator_FallsBackToNextNotifier(t *testing.T) {
	remote := &countingNotifier{name: "remote", fail: true}
	local := &countingNotifier{name: "local"}
	c := NewCoordinator(stubProbe{empty: true}, NewState(), []Notifier{remote, local}, time.Minute, nil)

	c.OnStructuralMiss(context.Background(), "acme", "lookup")

	waitForCalls(t, remote, 1)
	waitForCalls(t, local, 1)
}

func TestCoordinator_AllNotifiersFailingNeverPanics(t *testing.T) {
	n := &countingNotifier{name: "test", fail: true}
	c := NewCoordinator(stubProbe{empty: true}, NewState(), []Notifier{n}, 50*time.Millisecond, nil)

	c.OnStructuralMiss(context.Background(), "acme", "lookup")
	waitForCalls(t, n, 1)

	// The failed dispatch released the try-lock; the next window can
	// trigger again.
	time.Sleep(100 * time.Millisecond)
	c.OnStructuralMiss(context.Background(), "acme", "lookup")
	waitForCalls(t, n, 2)
}

func TestCoordinator_EmptyNotifierList(t *testing.T) {
	c := NewCoordinator(stubProbe{empty: true}, NewState(), nil, time.Minute, nil)

	// Must not panic or block; the trigger is logged and dropped.
	c.OnStructuralMiss(context.Background(), "acme", "lookup")
	time.Sleep(50 * time.Millisecond)
}

func TestCoordinator_DispatchesScopeThatMissed(t *testing.T) {
	n := &countingNotifier{name: "test"}
	c := NewCoordinator(stubProbe{empty: true}, NewState(), []Notifier{n}, time.Minute, nil)

	c.OnStructuralMiss(context.Background(), "acme", "lookup")
	waitForCalls(t, n, 1)
	assert.Equal(t, "acme", n.lastScope.Load())
}

func TestCoordinator_GlobalWidensDispatch(t *testing.T) {
	n := &countingNotifier{name: "test"}
	c := NewCoordinator(stubProbe{empty: true}, NewState(), []Notifier{n}, time.Minute, nil)
	c.SetGlobal(true)

	c.OnStructuralMiss(context.Background(), "acme", "lookup")
	waitForCalls(t, n, 1)
	assert.Equal(t, "", n.lastScope.Load(), "global mode rebuilds every scope")
}

func TestCoordinator_DefaultWindow(t *testing.T) {
	c := NewCoordinator(stubProbe{}, NewState(), nil, 0, nil)
	assert.Equal(t, 30*time.Second, c.Window())
}
