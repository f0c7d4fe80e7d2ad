// Package entity defines the normalized source records that recalld
// indexes, together with the error taxonomy shared by all components.
package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Edge is a typed, weighted relationship from one entity to another.
// The target is addressed by natural key, not surrogate id, so edges
// survive re-imports of the same logical entity.
type Edge struct {
	TargetKey string  `json:"target_key"`
	RelType   string  `json:"rel_type"`
	Weight    float64 `json:"weight,omitempty"`
}

// SourceEntity is a durable, normalized record owned by domain logic.
// recalld never mutates source entities; it projects them into the
// recall index on every write and during rebuilds.
type SourceEntity struct {
	// ID is the surrogate identifier, unique across all kinds.
	ID uuid.UUID `json:"id"`

	// Kind names the entity table this record belongs to (person,
	// organization, event, note, ...).
	Kind string `json:"kind"`

	// ScopeID is the tenancy/isolation boundary. Natural keys are
	// unique within a scope, not globally.
	ScopeID string `json:"scope_id"`

	// OwnerID restricts visibility to a single owner within the scope.
	// Nil means the entity is visible to every owner in the scope.
	OwnerID *string `json:"owner_id,omitempty"`

	// NaturalKey is the human-meaningful identifier within the scope
	// (e.g. "sarah-chen").
	NaturalKey string `json:"natural_key"`

	// DisplayName and Body are the free-text fields fuzzy matching
	// draws from.
	DisplayName string `json:"display_name,omitempty"`
	Body        string `json:"body,omitempty"`

	// Edges are outgoing relationships to other entities in the same
	// scope, addressed by natural key.
	Edges []Edge `json:"edges,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the entity carries a soft-delete marker.
func (e *SourceEntity) Deleted() bool {
	return e.DeletedAt != nil
}

// Validate checks the fields recalld depends on. Domain logic may
// enforce stricter rules of its own.
func (e *SourceEntity) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("%w: entity id is required", ErrValidation)
	}
	if e.Kind == "" {
		return fmt.Errorf("%w: entity kind is required", ErrValidation)
	}
	if e.ScopeID == "" {
		return fmt.Errorf("%w: scope id is required", ErrValidation)
	}
	if strings.TrimSpace(e.NaturalKey) == "" {
		return fmt.Errorf("%w: natural key is required", ErrValidation)
	}
	if e.OwnerID != nil && *e.OwnerID == "" {
		return fmt.Errorf("%w: owner id must be nil or non-empty", ErrValidation)
	}
	for i, edge := range e.Edges {
		if edge.TargetKey == "" {
			return fmt.Errorf("%w: edge %d has empty target key", ErrValidation, i)
		}
	}
	return nil
}
