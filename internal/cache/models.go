package cache

import (
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/recalld/internal/entity"
)

// Entry is a denormalized index record for one source entity. Entries
// are unique per (scope, natural key) and never outlive the entity they
// mirror; change propagation keeps the two in lockstep.
type Entry struct {
	// ScopeID and NaturalKey form the primary key of the index.
	ScopeID    string `json:"scope_id"`
	NaturalKey string `json:"natural_key"`

	// Kind names the source table the entity lives in.
	Kind string `json:"kind"`

	// EntityID is a weak back-reference used for hydration; the entry
	// indexes the entity, it does not store authoritative content.
	EntityID uuid.UUID `json:"entity_id"`

	// OwnerID restricts visibility. Nil means visible to every owner
	// in the scope.
	OwnerID *string `json:"owner_id,omitempty"`

	// SummaryText is the fuzzy-match source derived from the entity's
	// free-text fields.
	SummaryText string `json:"summary_text,omitempty"`

	// Edges is a denormalized copy of the entity's edge list, the
	// adjacency used by traversal.
	Edges []entity.Edge `json:"edges,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// VisibleTo reports whether the entry may be returned to the given
// owner. A nil entry owner means scope-wide visibility.
func (e *Entry) VisibleTo(ownerID *string) bool {
	if e.OwnerID == nil {
		return true
	}
	return ownerID != nil && *e.OwnerID == *ownerID
}
