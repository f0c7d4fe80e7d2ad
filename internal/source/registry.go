package source

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/recalld/internal/cache"
	"github.com/fyrsmithlabs/recalld/internal/entity"
)

// Projector maps a source entity to its cache entry. Projectors run
// synchronously inside every mutation and during rebuilds; both paths
// share the same function so the two can never diverge.
type Projector func(*entity.SourceEntity) (*cache.Entry, error)

// KindSpec describes one registered entity kind.
type KindSpec struct {
	// Name is the entity kind (person, organization, event, note, ...).
	Name string

	// Project produces the cache entry for an entity of this kind.
	// Nil uses DefaultProjector.
	Project Projector
}

// Registry maps entity kinds to their projection logic. Dispatch is by
// kind name; unknown kinds are rejected at write time rather than
// producing unindexable entries.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]KindSpec
}

// NewRegistry creates an empty kind registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]KindSpec)}
}

// Register adds or replaces a kind.
func (r *Registry) Register(spec KindSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: kind name is required", entity.ErrValidation)
	}
	if spec.Project == nil {
		spec.Project = DefaultProjector
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[spec.Name] = spec
	return nil
}

// Project dispatches to the projector registered for the entity's kind.
func (r *Registry) Project(e *entity.SourceEntity) (*cache.Entry, error) {
	r.mu.RLock()
	spec, ok := r.kinds[e.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownKind, e.Kind)
	}
	entry, err := spec.Project(e)
	if err != nil {
		return nil, fmt.Errorf("%w: kind %q key %q: %v", entity.ErrProjection, e.Kind, e.NaturalKey, err)
	}
	return entry, nil
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultProjector builds the standard cache entry: the summary text
// concatenates the entity's free-text fields, edges and metadata are
// copied through.
func DefaultProjector(e *entity.SourceEntity) (*cache.Entry, error) {
	var summary strings.Builder
	summary.WriteString(e.DisplayName)
	if e.Body != "" {
		if summary.Len() > 0 {
			summary.WriteString("\n")
		}
		summary.WriteString(e.Body)
	}

	edges := make([]entity.Edge, len(e.Edges))
	copy(edges, e.Edges)

	var metadata map[string]any
	if len(e.Metadata) > 0 {
		metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			metadata[k] = v
		}
	}

	return &cache.Entry{
		ScopeID:     e.ScopeID,
		NaturalKey:  e.NaturalKey,
		Kind:        e.Kind,
		EntityID:    e.ID,
		OwnerID:     e.OwnerID,
		SummaryText: summary.String(),
		Edges:       edges,
		Metadata:    metadata,
		UpdatedAt:   e.UpdatedAt,
	}, nil
}

// DefaultKinds returns the built-in entity kinds recalld indexes out of
// the box. Embedders of the package can register additional kinds with
// custom projectors.
func DefaultKinds() []KindSpec {
	return []KindSpec{
		{Name: "person"},
		{Name: "organization"},
		{Name: "event"},
		{Name: "note"},
	}
}
