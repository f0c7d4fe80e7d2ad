package http

import (
	"github.com/fyrsmithlabs/recalld/internal/query"
	"github.com/fyrsmithlabs/recalld/internal/rebuild"
)

// LookupRequest is the body for POST /api/v1/lookup.
type LookupRequest struct {
	Key     string  `json:"key"`
	ScopeID string  `json:"scope_id"`
	OwnerID *string `json:"owner_id,omitempty"`
}

// FuzzyRequest is the body for POST /api/v1/fuzzy.
type FuzzyRequest struct {
	Text      string  `json:"text"`
	ScopeID   string  `json:"scope_id"`
	OwnerID   *string `json:"owner_id,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Limit     int     `json:"limit,omitempty"`
}

// SearchRequest is the body for POST /api/v1/search.
type SearchRequest struct {
	Vector        []float32 `json:"vector"`
	Kind          string    `json:"kind"`
	Field         string    `json:"field"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model,omitempty"`
	ScopeID       string    `json:"scope_id"`
	OwnerID       *string   `json:"owner_id,omitempty"`
	MinSimilarity float64   `json:"min_similarity,omitempty"`
	Limit         int       `json:"limit,omitempty"`
}

// TraverseRequest is the body for POST /api/v1/traverse.
type TraverseRequest struct {
	Key      string   `json:"key"`
	ScopeID  string   `json:"scope_id"`
	OwnerID  *string  `json:"owner_id,omitempty"`
	MaxDepth int      `json:"max_depth,omitempty"`
	RelTypes []string `json:"rel_types,omitempty"`
}

// VectorRequest is the body for POST /internal/vectors.
type VectorRequest struct {
	EntityID string    `json:"entity_id"`
	Field    string    `json:"field"`
	Provider string    `json:"provider"`
	Model    string    `json:"model,omitempty"`
	Values   []float32 `json:"values"`
}

// MatchesResponse wraps scored results.
type MatchesResponse struct {
	Matches []query.Match `json:"matches"`
}

// TraverseResponse wraps traversal hits.
type TraverseResponse struct {
	Hits []query.TraversalHit `json:"hits"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status  string           `json:"status"`
	Rebuild rebuild.Snapshot `json:"rebuild"`
}

// RebuildAcceptedResponse is the body for POST /internal/rebuild.
type RebuildAcceptedResponse struct {
	Status  string `json:"status"`
	ScopeID string `json:"scope_id,omitempty"`
}
