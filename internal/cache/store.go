// Package cache implements the non-durable recall index: a keyed,
// in-memory projection of every non-deleted source entity. The store is
// wiped by process restart or replica promotion; that is an accepted
// trade-off, and the rebuild coordinator repairs it asynchronously.
package cache

import (
	"sync"

	"github.com/google/uuid"
)

// entryRef locates an entry by its primary key, used by the secondary
// index keyed on entity id.
type entryRef struct {
	scopeID    string
	naturalKey string
}

// Store is a thread-safe keyed index over cache entries. Many readers
// may query concurrently; writers take the exclusive lock only for the
// duration of a single map update.
type Store struct {
	mu       sync.RWMutex
	byScope  map[string]map[string]*Entry
	byEntity map[uuid.UUID]entryRef
}

// NewStore creates an empty recall index.
func NewStore() *Store {
	return &Store{
		byScope:  make(map[string]map[string]*Entry),
		byEntity: make(map[uuid.UUID]entryRef),
	}
}

// Upsert replaces the entry for (scope, natural key). The operation is
// idempotent: upserting the same projection twice leaves the store
// unchanged. If the entity was previously cached under a different
// natural key, the stale entry is removed first.
func (s *Store) Upsert(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(e)
}

// UpsertIfNewer replaces the entry unless a fresher entry for the same
// entity is already cached. Rebuilds project from a point-in-time
// snapshot of the source and must not clobber writes that landed after
// the snapshot was taken.
func (s *Store) UpsertIfNewer(e *Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, ok := s.byEntity[e.EntityID]; ok {
		if cur, ok := s.byScope[ref.scopeID][ref.naturalKey]; ok && cur.UpdatedAt.After(e.UpdatedAt) {
			return false
		}
	}
	s.upsertLocked(e)
	return true
}

func (s *Store) upsertLocked(e *Entry) {
	if ref, ok := s.byEntity[e.EntityID]; ok {
		if ref.scopeID != e.ScopeID || ref.naturalKey != e.NaturalKey {
			s.removeLocked(ref)
		}
	}

	scope, ok := s.byScope[e.ScopeID]
	if !ok {
		scope = make(map[string]*Entry)
		s.byScope[e.ScopeID] = scope
	}

	// A different entity claiming the same key wins last-write; drop
	// the loser's back-reference so Delete stays consistent.
	if prev, ok := scope[e.NaturalKey]; ok && prev.EntityID != e.EntityID {
		delete(s.byEntity, prev.EntityID)
	}

	scope[e.NaturalKey] = e
	s.byEntity[e.EntityID] = entryRef{scopeID: e.ScopeID, naturalKey: e.NaturalKey}
	entriesGauge.Set(float64(len(s.byEntity)))
}

// Delete removes the entry for the given entity id, if present.
func (s *Store) Delete(entityID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.byEntity[entityID]
	if !ok {
		return
	}
	s.removeLocked(ref)
	delete(s.byEntity, entityID)
	entriesGauge.Set(float64(len(s.byEntity)))
}

func (s *Store) removeLocked(ref entryRef) {
	scope, ok := s.byScope[ref.scopeID]
	if !ok {
		return
	}
	delete(scope, ref.naturalKey)
	if len(scope) == 0 {
		delete(s.byScope, ref.scopeID)
	}
}

// Get returns the entry for (scope, key) if it exists and is visible to
// the given owner. A nil ownerID matches only entries with scope-wide
// visibility.
func (s *Store) Get(scopeID, naturalKey string, ownerID *string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scope, ok := s.byScope[scopeID]
	if !ok {
		return nil, false
	}
	e, ok := scope[naturalKey]
	if !ok || !e.VisibleTo(ownerID) {
		return nil, false
	}
	return e, true
}

// GetByEntityID resolves an entry through the secondary index. Used by
// vector search to map index hits back to cache entries.
func (s *Store) GetByEntityID(entityID uuid.UUID) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.byEntity[entityID]
	if !ok {
		return nil, false
	}
	scope, ok := s.byScope[ref.scopeID]
	if !ok {
		return nil, false
	}
	e, ok := scope[ref.naturalKey]
	return e, ok
}

// IsEmpty is the O(1) structural probe the rebuild coordinator uses: it
// checks scope existence, never a count. An empty scope after a miss is
// the signal that the index was lost, not that the key is absent.
func (s *Store) IsEmpty(scopeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byScope[scopeID]) == 0
}

// VisitScope calls fn for every entry in the scope visible to the given
// owner, under the read lock. fn must not call back into the store.
// Iteration order is unspecified.
func (s *Store) VisitScope(scopeID string, ownerID *string, fn func(*Entry)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.byScope[scopeID] {
		if e.VisibleTo(ownerID) {
			fn(e)
		}
	}
}

// Clear drops every entry in the scope. The rebuild executor calls this
// before re-projecting so stale keys do not survive a rebuild.
func (s *Store) Clear(scopeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.byScope[scopeID] {
		delete(s.byEntity, e.EntityID)
	}
	delete(s.byScope, scopeID)
	entriesGauge.Set(float64(len(s.byEntity)))
}

// Reset drops every entry in every scope (global rebuild, tests).
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byScope = make(map[string]map[string]*Entry)
	s.byEntity = make(map[uuid.UUID]entryRef)
	entriesGauge.Set(0)
}

// Len returns the number of entries in the scope.
func (s *Store) Len(scopeID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byScope[scopeID])
}

// Scopes returns the scope ids that currently hold at least one entry.
func (s *Store) Scopes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scopes := make([]string, 0, len(s.byScope))
	for id := range s.byScope {
		scopes = append(scopes, id)
	}
	return scopes
}
