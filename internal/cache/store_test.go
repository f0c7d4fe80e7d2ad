package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func entry(scope, key string) *Entry {
	return &Entry{
		ScopeID:    scope,
		NaturalKey: key,
		Kind:       "person",
		EntityID:   uuid.New(),
	}
}

func TestStore_UpsertAndGet(t *testing.T) {
	s := NewStore()
	e := entry("acme", "sarah-chen")
	s.Upsert(e)

	got, ok := s.Get("acme", "sarah-chen", nil)
	require.True(t, ok)
	assert.Equal(t, e.EntityID, got.EntityID)

	_, ok = s.Get("acme", "unknown", nil)
	assert.False(t, ok)

	_, ok = s.Get("other-scope", "sarah-chen", nil)
	assert.False(t, ok)
}

func TestStore_UpsertIsIdempotent(t *testing.T) {
	s := NewStore()
	e := entry("acme", "sarah-chen")

	s.Upsert(e)
	s.Upsert(e)
	s.Upsert(e)

	assert.Equal(t, 1, s.Len("acme"))
	got, ok := s.GetByEntityID(e.EntityID)
	require.True(t, ok)
	assert.Equal(t, "sarah-chen", got.NaturalKey)
}

func TestStore_UpsertNaturalKeyChange(t *testing.T) {
	s := NewStore()
	e := entry("acme", "sarah-chen")
	s.Upsert(e)

	renamed := *e
	renamed.NaturalKey = "sarah-chen-phd"
	s.Upsert(&renamed)

	_, ok := s.Get("acme", "sarah-chen", nil)
	assert.False(t, ok, "stale key should be removed")

	got, ok := s.Get("acme", "sarah-chen-phd", nil)
	require.True(t, ok)
	assert.Equal(t, e.EntityID, got.EntityID)
	assert.Equal(t, 1, s.Len("acme"))
}

func TestStore_UpsertKeyTakeover(t *testing.T) {
	s := NewStore()
	first := entry("acme", "sarah-chen")
	s.Upsert(first)

	second := entry("acme", "sarah-chen")
	s.Upsert(second)

	got, ok := s.Get("acme", "sarah-chen", nil)
	require.True(t, ok)
	assert.Equal(t, second.EntityID, got.EntityID, "last write wins")

	_, ok = s.GetByEntityID(first.EntityID)
	assert.False(t, ok, "loser's back-reference must be dropped")
}

func TestStore_UpsertIfNewer(t *testing.T) {
	s := NewStore()
	base := time.Now()

	fresh := entry("acme", "new-key")
	fresh.UpdatedAt = base.Add(time.Second)
	s.Upsert(fresh)

	// A snapshot-stale projection of the same entity, still carrying
	// the pre-rename key, must not displace the fresher entry.
	stale := *fresh
	stale.NaturalKey = "old-key"
	stale.UpdatedAt = base
	assert.False(t, s.UpsertIfNewer(&stale))

	_, ok := s.Get("acme", "old-key", nil)
	assert.False(t, ok)
	got, ok := s.Get("acme", "new-key", nil)
	require.True(t, ok)
	assert.Equal(t, fresh.UpdatedAt, got.UpdatedAt)

	// A genuinely newer projection replaces as usual.
	newer := *fresh
	newer.NaturalKey = "newest-key"
	newer.UpdatedAt = base.Add(2 * time.Second)
	assert.True(t, s.UpsertIfNewer(&newer))
	_, ok = s.Get("acme", "newest-key", nil)
	assert.True(t, ok)
	assert.Equal(t, 1, s.Len("acme"))

	// Equal timestamps re-apply idempotently.
	assert.True(t, s.UpsertIfNewer(&newer))

	// An uncached entity is always inserted.
	other := entry("acme", "other")
	assert.True(t, s.UpsertIfNewer(other))
}

func TestStore_Delete(t *testing.T) {
	s := NewStore()
	e := entry("acme", "sarah-chen")
	s.Upsert(e)

	s.Delete(e.EntityID)

	_, ok := s.Get("acme", "sarah-chen", nil)
	assert.False(t, ok)
	_, ok = s.GetByEntityID(e.EntityID)
	assert.False(t, ok)

	// Deleting an absent entity is a no-op.
	s.Delete(uuid.New())
}

func TestStore_Visibility(t *testing.T) {
	s := NewStore()

	shared := entry("acme", "handbook")
	s.Upsert(shared)

	private := entry("acme", "private-note")
	private.OwnerID = str("alice")
	s.Upsert(private)

	tests := []struct {
		name  string
		key   string
		owner *string
		want  bool
	}{
		{"scope-wide entry, anonymous reader", "handbook", nil, true},
		{"scope-wide entry, owner reader", "handbook", str("bob"), true},
		{"owned entry, its owner", "private-note", str("alice"), true},
		{"owned entry, different owner", "private-note", str("bob"), false},
		{"owned entry, anonymous reader", "private-note", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := s.Get("acme", tt.key, tt.owner)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestStore_IsEmpty(t *testing.T) {
	s := NewStore()
	assert.True(t, s.IsEmpty("acme"))

	e := entry("acme", "sarah-chen")
	s.Upsert(e)
	assert.False(t, s.IsEmpty("acme"))
	assert.True(t, s.IsEmpty("other"), "emptiness is per scope")

	s.Delete(e.EntityID)
	assert.True(t, s.IsEmpty("acme"))
}

func TestStore_VisitScope(t *testing.T) {
	s := NewStore()
	s.Upsert(entry("acme", "a"))
	s.Upsert(entry("acme", "b"))

	owned := entry("acme", "c")
	owned.OwnerID = str("alice")
	s.Upsert(owned)

	s.Upsert(entry("globex", "d"))

	var keys []string
	s.VisitScope("acme", nil, func(e *Entry) {
		keys = append(keys, e.NaturalKey)
	})
	assert.ElementsMatch(t, []string{"a", "b"}, keys)

	keys = nil
	s.VisitScope("acme", str("alice"), func(e *Entry) {
		keys = append(keys, e.NaturalKey)
	})
	assert.ElementsMatch(t, []string{"a", "b", "c"}, keys)
}

func TestStore_ClearAndReset(t *testing.T) {
	s := NewStore()
	acme := entry("acme", "a")
	s.Upsert(acme)
	s.Upsert(entry("globex", "b"))

	s.Clear("acme")
	assert.True(t, s.IsEmpty("acme"))
	assert.False(t, s.IsEmpty("globex"))
	_, ok := s.GetByEntityID(acme.EntityID)
	assert.False(t, ok, "clear must drop the secondary index too")

	s.Reset()
	assert.True(t, s.IsEmpty("globex"))
	assert.Empty(t, s.Scopes())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				e := entry("acme", uuid.NewString())
				s.Upsert(e)
				s.Get("acme", e.NaturalKey, nil)
				s.IsEmpty("acme")
				s.Delete(e.EntityID)
			}
		}()
	}
	wg.Wait()

	assert.True(t, s.IsEmpty("acme"))
}
