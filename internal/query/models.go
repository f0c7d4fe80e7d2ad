package query

import (
	"github.com/fyrsmithlabs/recalld/internal/entity"
)

// LookupParams identifies a single entry by natural key.
type LookupParams struct {
	Key     string
	ScopeID string
	OwnerID *string
}

// FuzzyParams configures approximate text matching.
type FuzzyParams struct {
	Text    string
	ScopeID string
	OwnerID *string

	// Threshold is the hard similarity cutoff. Zero uses the engine
	// default (0.3).
	Threshold float64

	// Limit caps the number of hydrated results. Zero uses the engine
	// default (10).
	Limit int
}

// SearchParams configures vector similarity search.
type SearchParams struct {
	// Vector is the externally-produced query embedding.
	Vector []float32

	// Kind restricts matches to one entity kind.
	Kind string

	// Field, Provider and Model select the embedding space to query;
	// they must match how the stored vectors were generated.
	Field    string
	Provider string
	Model    string

	ScopeID string
	OwnerID *string

	// MinSimilarity is the hard cutoff. Zero uses the engine default
	// (0.7).
	MinSimilarity float64

	// Limit caps results. Zero uses the engine default (10).
	Limit int
}

// TraverseParams configures bounded breadth-first graph expansion.
type TraverseParams struct {
	Key     string
	ScopeID string
	OwnerID *string

	// MaxDepth bounds expansion; zero means 1. The engine additionally
	// caps it at its configured maximum.
	MaxDepth int

	// RelTypes, when non-empty, is an allow-list of relationship types
	// to follow.
	RelTypes []string
}

// Match is a scored retrieval result carrying the full source record.
// The cache only indexes entities; matches are hydrated from the
// source store before they are returned.
type Match struct {
	Kind   string               `json:"kind"`
	Score  float64              `json:"score"`
	Record *entity.SourceEntity `json:"record"`
}

// TraversalHit is one node reached during graph expansion.
type TraversalHit struct {
	// Depth is the hop count from the start key (>= 1; the start node
	// itself is not a hit).
	Depth int `json:"depth"`

	Key  string `json:"key"`
	Kind string `json:"kind"`

	// RelType and Weight describe the edge this node was first reached
	// through at its shallowest depth.
	RelType string  `json:"rel_type"`
	Weight  float64 `json:"weight,omitempty"`

	// Path is the ordered natural-key sequence from the start to this
	// node, inclusive.
	Path []string `json:"path"`
}
