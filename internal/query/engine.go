// Package query implements the four retrieval modes over the recall
// index: exact lookup, fuzzy text match, vector similarity search and
// bounded graph traversal.
//
// All four read the same cache entries; search additionally joins the
// external vector index. Lookup, fuzzy and traverse report structural
// misses to the healer so a lost cache repairs itself in the
// background; search does not, because an empty semantic match is a
// legitimate outcome rather than evidence of cache loss.
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/cache"
	"github.com/fyrsmithlabs/recalld/internal/embedding"
	"github.com/fyrsmithlabs/recalld/internal/entity"
)

var tracer = otel.Tracer("recalld.query")

// SourceReader hydrates full source records for cache hits.
type SourceReader interface {
	Get(ctx context.Context, id uuid.UUID) (*entity.SourceEntity, error)
}

// VectorQuerier is the external vector index consumed by search.
type VectorQuerier interface {
	Query(ctx context.Context, q embedding.QueryParams) ([]embedding.Hit, error)
}

// Healer evaluates self-healing after a structural miss. It must never
// block or fail the calling query.
type Healer interface {
	OnStructuralMiss(ctx context.Context, scopeID, triggeredBy string)
}

// Options holds query engine defaults and caps.
type Options struct {
	FuzzyThreshold float64
	FuzzyLimit     int
	MinSimilarity  float64
	SearchLimit    int
	MaxDepth       int
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		FuzzyThreshold: 0.3,
		FuzzyLimit:     10,
		MinSimilarity:  0.7,
		SearchLimit:    10,
		MaxDepth:       5,
	}
}

// Engine answers queries against the recall index.
type Engine struct {
	cache   *cache.Store
	source  SourceReader
	vectors VectorQuerier
	healer  Healer
	opts    Options
	logger  *zap.Logger
}

// NewEngine creates a query engine. vectors and healer may be nil:
// without vectors, search returns empty; without a healer, structural
// misses are not repaired.
func NewEngine(idx *cache.Store, src SourceReader, vectors VectorQuerier, healer Healer, opts Options, logger *zap.Logger) (*Engine, error) {
	if idx == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if src == nil {
		return nil, fmt.Errorf("source reader is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FuzzyThreshold == 0 {
		opts.FuzzyThreshold = DefaultOptions().FuzzyThreshold
	}
	if opts.FuzzyLimit == 0 {
		opts.FuzzyLimit = DefaultOptions().FuzzyLimit
	}
	if opts.MinSimilarity == 0 {
		opts.MinSimilarity = DefaultOptions().MinSimilarity
	}
	if opts.SearchLimit == 0 {
		opts.SearchLimit = DefaultOptions().SearchLimit
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = DefaultOptions().MaxDepth
	}
	return &Engine{
		cache:   idx,
		source:  src,
		vectors: vectors,
		healer:  healer,
		opts:    opts,
		logger:  logger,
	}, nil
}

// Lookup resolves a natural key to its full source record. A miss is a
// normal outcome (entity.ErrNotFound) and additionally evaluates
// self-healing, because a miss against an empty scope is the signature
// of a lost cache.
func (e *Engine) Lookup(ctx context.Context, p LookupParams) (*Match, error) {
	ctx, span := tracer.Start(ctx, "Engine.Lookup")
	defer span.End()
	timer := startTimer("lookup")
	defer timer.done()

	if err := validateKeyScope(p.Key, p.ScopeID); err != nil {
		queriesTotal.WithLabelValues("lookup", "invalid").Inc()
		return nil, err
	}

	entry, ok := e.cache.Get(p.ScopeID, p.Key, p.OwnerID)
	if !ok {
		queriesTotal.WithLabelValues("lookup", "miss").Inc()
		e.evaluateHealing(ctx, p.ScopeID, "lookup")
		return nil, entity.ErrNotFound
	}

	record, err := e.source.Get(ctx, entry.EntityID)
	if err != nil {
		// The entry references an entity the source no longer has.
		// Deletion propagation should make this unreachable; report
		// NotFound rather than an internal error.
		e.logger.Warn("cache entry without source record",
			zap.String("scope_id", p.ScopeID),
			zap.String("natural_key", p.Key),
			zap.String("entity_id", entry.EntityID.String()),
			zap.Error(err),
		)
		queriesTotal.WithLabelValues("lookup", "miss").Inc()
		return nil, entity.ErrNotFound
	}

	queriesTotal.WithLabelValues("lookup", "hit").Inc()
	return &Match{Kind: entry.Kind, Score: 1, Record: record}, nil
}

// evaluateHealing forwards a structural miss to the healer, if any.
func (e *Engine) evaluateHealing(ctx context.Context, scopeID, triggeredBy string) {
	if e.healer == nil {
		return
	}
	e.healer.OnStructuralMiss(ctx, scopeID, triggeredBy)
}

func validateKeyScope(key, scopeID string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: key is required", entity.ErrValidation)
	}
	if scopeID == "" {
		return fmt.Errorf("%w: scope id is required", entity.ErrValidation)
	}
	return nil
}
