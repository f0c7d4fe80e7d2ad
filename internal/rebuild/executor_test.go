package rebuild

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/cache"
	"github.com/fyrsmithlabs/recalld/internal/entity"
	"github.com/fyrsmithlabs/recalld/internal/source"
)

type executorFixture struct {
	store    *source.Store
	cache    *cache.Store
	state    *State
	executor *Executor
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()

	registry := source.NewRegistry()
	for _, kind := range source.DefaultKinds() {
		require.NoError(t, registry.Register(kind))
	}

	idx := cache.NewStore()
	store, err := source.Open(source.Config{InMemory: true}, registry, idx, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	state := NewState()
	executor, err := NewExecutor(store, idx, state, zap.NewNop())
	require.NoError(t, err)

	return &executorFixture{store: store, cache: idx, state: state, executor: executor}
}

func (f *executorFixture) put(t *testing.T, scope, key string) *entity.SourceEntity {
	t.Helper()
	e := &entity.SourceEntity{
		ID:          uuid.New(),
		Kind:        "person",
		ScopeID:     scope,
		NaturalKey:  key,
		DisplayName: key,
	}
	require.NoError(t, f.store.Put(context.Background(), e))
	return e
}

func TestNewExecutor_Validation(t *testing.T) {
	_, err := NewExecutor(nil, nil, nil, nil)
	require.Error(t, err)
}

func TestExecutor_RebuildRestoresLostCache(t *testing.T) {
	f := newExecutorFixture(t)
	f.put(t, "acme", "sarah-chen")
	f.put(t, "acme", "bob-jones")
	f.put(t, "globex", "carol")

	// Simulate a restart wiping the in-memory index.
	f.cache.Reset()
	require.True(t, f.cache.IsEmpty("acme"))

	report, err := f.executor.Rebuild(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Projected)
	assert.Equal(t, 0, report.Failed)

	_, ok := f.cache.Get("acme", "sarah-chen", nil)
	assert.True(t, ok)
	_, ok = f.cache.Get("globex", "carol", nil)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), f.state.Snapshot().RebuildCount)
}

func TestExecutor_ScopedRebuild(t *testing.T) {
	f := newExecutorFixture(t)
	f.put(t, "acme", "sarah-chen")
	f.put(t, "globex", "carol")
	f.cache.Reset()

	report, err := f.executor.Rebuild(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Projected)
	assert.Equal(t, "acme", report.ScopeID)

	_, ok := f.cache.Get("acme", "sarah-chen", nil)
	assert.True(t, ok)
	assert.True(t, f.cache.IsEmpty("globex"), "a scoped rebuild leaves other scopes alone")
}

func TestExecutor_RebuildIsIdempotent(t *testing.T) {
	f := newExecutorFixture(t)
	f.put(t, "acme", "sarah-chen")
	f.put(t, "acme", "bob-jones")

	first, err := f.executor.Rebuild(context.Background(), "")
	require.NoError(t, err)
	second, err := f.executor.Rebuild(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, first.Projected, second.Projected)
	assert.Equal(t, 2, f.cache.Len("acme"))
}

func TestExecutor_RebuildDropsStaleEntries(t *testing.T) {
	f := newExecutorFixture(t)
	f.put(t, "acme", "sarah-chen")

	// A stale entry with no backing entity must not survive a rebuild.
	f.cache.Upsert(&cache.Entry{
		ScopeID:    "acme",
		NaturalKey: "ghost",
		Kind:       "person",
		EntityID:   uuid.New(),
	})

	_, err := f.executor.Rebuild(context.Background(), "acme")
	require.NoError(t, err)

	_, ok := f.cache.Get("acme", "ghost", nil)
	assert.False(t, ok)
	_, ok = f.cache.Get("acme", "sarah-chen", nil)
	assert.True(t, ok)
}

func TestExecutor_ProjectionFailureDoesNotRecordCompletion(t *testing.T) {
	f := newExecutorFixture(t)
	f.put(t, "acme", "sarah-chen")

	// Re-register the kind with a failing projector after the entity
	// is stored, the way a code rollout could break projection.
	require.NoError(t, f.store.Registry().Register(source.KindSpec{
		Name: "person",
		Project: func(e *entity.SourceEntity) (*cache.Entry, error) {
			return nil, errors.New("projector exploded")
		},
	}))

	report, err := f.executor.Rebuild(context.Background(), "acme")
	require.Error(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Projected)
	assert.Equal(t, uint64(0), f.state.Snapshot().RebuildCount,
		"an incomplete rebuild must stay eligible for re-trigger")
}

// A write that lands while the executor is iterating the source
// snapshot must not be clobbered by the snapshot-stale projection,
// even when the write renamed the natural key.
func TestExecutor_RebuildDoesNotClobberConcurrentWrite(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var arm atomic.Bool

	registry := source.NewRegistry()
	require.NoError(t, registry.Register(source.KindSpec{
		Name: "person",
		Project: func(e *entity.SourceEntity) (*cache.Entry, error) {
			if arm.CompareAndSwap(true, false) {
				close(entered)
				<-release
			}
			return source.DefaultProjector(e)
		},
	}))

	idx := cache.NewStore()
	store, err := source.Open(source.Config{InMemory: true}, registry, idx, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	state := NewState()
	executor, err := NewExecutor(store, idx, state, zap.NewNop())
	require.NoError(t, err)

	e := &entity.SourceEntity{
		ID:         uuid.New(),
		Kind:       "person",
		ScopeID:    "acme",
		NaturalKey: "old-key",
	}
	require.NoError(t, store.Put(context.Background(), e))

	// Pause the rebuild inside its snapshot iteration.
	arm.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := executor.Rebuild(context.Background(), "acme")
		done <- err
	}()
	<-entered

	// A live rename lands while the rebuild holds its snapshot.
	e.NaturalKey = "new-key"
	require.NoError(t, store.Put(context.Background(), e))
	_, ok := idx.Get("acme", "new-key", nil)
	require.True(t, ok)

	close(release)
	require.NoError(t, <-done)

	_, ok = idx.Get("acme", "new-key", nil)
	assert.True(t, ok, "the fresher live write must survive the rebuild")
	_, ok = idx.Get("acme", "old-key", nil)
	assert.False(t, ok, "the snapshot-stale key must not reappear")
}

func TestExecutor_ContextCancellationAborts(t *testing.T) {
	f := newExecutorFixture(t)
	f.put(t, "acme", "sarah-chen")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.executor.Rebuild(ctx, "acme")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), f.state.Snapshot().RebuildCount)
}

// Lost-cache recovery end to end: misses against an emptied index
// trigger the coordinator, the local notifier runs the executor, and
// the key that missed becomes servable again.
func TestSelfHealing_EndToEnd(t *testing.T) {
	f := newExecutorFixture(t)
	f.put(t, "acme", "sarah-chen")
	f.cache.Reset()

	local := NewLocalNotifier(f.executor, zap.NewNop())
	coord := NewCoordinator(f.cache, f.state, []Notifier{local}, time.Minute, zap.NewNop())

	_, ok := f.cache.Get("acme", "sarah-chen", nil)
	require.False(t, ok)
	coord.OnStructuralMiss(context.Background(), "acme", "lookup")

	assert.Eventually(t, func() bool {
		_, ok := f.cache.Get("acme", "sarah-chen", nil)
		return ok
	}, 2*time.Second, 10*time.Millisecond, "the cache heals without any foreground intervention")

	local.Wait()
	assert.Equal(t, uint64(1), f.state.Snapshot().RebuildCount)
}
