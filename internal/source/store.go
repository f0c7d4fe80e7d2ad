// Package source implements the durable entity store and the change
// propagation hook that keeps the recall index synchronized with it.
//
// Every mutation projects the entity into the cache inside the same
// call: the projection runs (and may fail, aborting the write) before
// anything is persisted, so there is no dual-write window in which the
// source and the index can permanently diverge. The cache itself is
// non-durable; only the entities stored here survive a restart.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/cache"
	"github.com/fyrsmithlabs/recalld/internal/entity"
)

// entityPrefix namespaces entity records in badger.
var entityPrefix = []byte("entity/")

// Config holds source store configuration.
type Config struct {
	// Path is the badger data directory.
	Path string

	// InMemory runs badger without persistence (tests).
	InMemory bool
}

// Store is the badger-backed source of truth for entities, with the
// recall index attached as a synchronous projection target.
type Store struct {
	db       *badger.DB
	registry *Registry
	cache    *cache.Store
	logger   *zap.Logger
}

// Open opens the entity store and attaches the projection targets.
func Open(cfg Config, registry *Registry, idx *cache.Store, logger *zap.Logger) (*Store, error) {
	if registry == nil || idx == nil {
		return nil, fmt.Errorf("registry and cache store are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open entity store: %w", err)
	}

	return &Store{
		db:       db,
		registry: registry,
		cache:    idx,
		logger:   logger,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Registry returns the kind registry used for projection.
func (s *Store) Registry() *Registry {
	return s.registry
}

// Put creates or updates an entity and synchronously projects it into
// the recall index. A projection failure aborts the write: the entity
// is not persisted and the cache is untouched.
func (s *Store) Put(ctx context.Context, e *entity.SourceEntity) error {
	if err := e.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	// Project first. This is the only step of propagation that can
	// fail, so running it before the write preserves the invariant
	// that a propagation failure aborts the source write.
	entry, err := s.registry.Project(e)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode entity %s: %w", e.ID, err)
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entityKey(e.ID), raw)
	}); err != nil {
		return fmt.Errorf("failed to persist entity %s: %w", e.ID, err)
	}

	// Infallible after validation; Put returns only once the entry is
	// visible, giving read-your-writes on an immediate lookup.
	s.cache.Upsert(entry)

	s.logger.Debug("entity propagated",
		zap.String("kind", e.Kind),
		zap.String("scope_id", e.ScopeID),
		zap.String("natural_key", e.NaturalKey),
	)
	return nil
}

// Get returns the entity by id. Soft-deleted entities are reported as
// not found.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*entity.SourceEntity, error) {
	var e entity.SourceEntity
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entityKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entity %s: %w", id, err)
	}
	if e.Deleted() {
		return nil, entity.ErrNotFound
	}
	return &e, nil
}

// Delete soft-deletes the entity and removes its cache entry. Deleting
// an absent entity is a no-op.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	var e entity.SourceEntity
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(entityKey(id))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		}); err != nil {
			return err
		}
		if e.Deleted() {
			return nil
		}
		now := time.Now().UTC()
		e.DeletedAt = &now
		e.UpdatedAt = now
		raw, err := json.Marshal(&e)
		if err != nil {
			return err
		}
		return txn.Set(entityKey(id), raw)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete entity %s: %w", id, err)
	}

	s.cache.Delete(id)

	s.logger.Debug("entity deletion propagated",
		zap.String("kind", e.Kind),
		zap.String("scope_id", e.ScopeID),
		zap.String("natural_key", e.NaturalKey),
	)
	return nil
}

// ForEach streams every non-deleted entity to fn. scopeID restricts
// iteration to one scope; empty means all scopes. Iteration stops on
// the first error from fn or on context cancellation.
func (s *Store) ForEach(ctx context.Context, scopeID string, fn func(*entity.SourceEntity) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = entityPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e entity.SourceEntity
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("failed to decode entity at %q: %w", it.Item().Key(), err)
			}
			if e.Deleted() {
				continue
			}
			if scopeID != "" && e.ScopeID != scopeID {
				continue
			}
			if err := fn(&e); err != nil {
				return err
			}
		}
		return nil
	})
}

func entityKey(id uuid.UUID) []byte {
	return append(append([]byte{}, entityPrefix...), id.String()...)
}
