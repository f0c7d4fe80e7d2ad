package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/cache"
	"github.com/fyrsmithlabs/recalld/internal/embedding"
	"github.com/fyrsmithlabs/recalld/internal/entity"
)

// searchOverfetch sizes the first top-K request. The vector index is
// shared across scopes, so the global top-K can be dominated by
// entries the filters will drop; Search doubles K until the requested
// limit is met, the similarity cutoff is crossed, or the index is
// exhausted.
const searchOverfetch = 4

// Search joins visible entries of one kind to the external vector
// index and returns matches at or above the similarity cutoff, ordered
// by descending similarity. Vectors and query embeddings come from the
// same provider, pre-normalized, so similarity is cosine.
//
// Search never triggers self-healing: an empty semantic match is a
// legitimate outcome, not evidence of cache loss.
func (e *Engine) Search(ctx context.Context, p SearchParams) ([]Match, error) {
	ctx, span := tracer.Start(ctx, "Engine.Search")
	defer span.End()
	timer := startTimer("search")
	defer timer.done()

	if len(p.Vector) == 0 {
		queriesTotal.WithLabelValues("search", "invalid").Inc()
		return nil, fmt.Errorf("%w: query vector is required", entity.ErrValidation)
	}
	if p.Kind == "" || p.Field == "" || p.Provider == "" || p.Model == "" {
		queriesTotal.WithLabelValues("search", "invalid").Inc()
		return nil, fmt.Errorf("%w: kind, field, provider and model are required", entity.ErrValidation)
	}
	if p.ScopeID == "" {
		queriesTotal.WithLabelValues("search", "invalid").Inc()
		return nil, fmt.Errorf("%w: scope id is required", entity.ErrValidation)
	}
	if p.Limit < 0 {
		queriesTotal.WithLabelValues("search", "invalid").Inc()
		return nil, fmt.Errorf("%w: limit must not be negative", entity.ErrValidation)
	}
	if p.MinSimilarity < -1 || p.MinSimilarity > 1 {
		queriesTotal.WithLabelValues("search", "invalid").Inc()
		return nil, fmt.Errorf("%w: min similarity must be in [-1, 1]", entity.ErrValidation)
	}

	minSimilarity := p.MinSimilarity
	if minSimilarity == 0 {
		minSimilarity = e.opts.MinSimilarity
	}
	limit := p.Limit
	if limit == 0 {
		limit = e.opts.SearchLimit
	}

	if e.vectors == nil {
		return []Match{}, nil
	}

	type candidate struct {
		entry *cache.Entry
		score float64
	}
	var candidates []candidate

	k := limit * searchOverfetch
	for {
		hits, err := e.vectors.Query(ctx, embedding.QueryParams{
			Vector:   p.Vector,
			Field:    p.Field,
			Provider: p.Provider,
			Model:    p.Model,
			K:        k,
		})
		if err != nil {
			queriesTotal.WithLabelValues("search", "error").Inc()
			return nil, fmt.Errorf("vector index query failed: %w", err)
		}

		candidates = candidates[:0]
		crossedCutoff := false
		for _, hit := range hits {
			if float64(hit.Similarity) < minSimilarity {
				// Hits arrive in descending similarity; nothing further
				// can pass the cutoff.
				crossedCutoff = true
				break
			}
			entry, ok := e.cache.GetByEntityID(hit.EntityID)
			if !ok || entry.ScopeID != p.ScopeID || entry.Kind != p.Kind || !entry.VisibleTo(p.OwnerID) {
				continue
			}
			candidates = append(candidates, candidate{entry: entry, score: float64(hit.Similarity)})
			if len(candidates) == limit {
				break
			}
		}

		// Fewer hits than requested means the whole collection has
		// been ranked; widening further cannot surface anything new.
		if len(candidates) == limit || crossedCutoff || len(hits) < k {
			break
		}
		k *= 2
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		record, err := e.source.Get(ctx, c.entry.EntityID)
		if err != nil {
			e.logger.Warn("skipping search hit without source record",
				zap.String("entity_id", c.entry.EntityID.String()),
				zap.Error(err),
			)
			continue
		}
		matches = append(matches, Match{Kind: c.entry.Kind, Score: c.score, Record: record})
	}

	if len(matches) == 0 {
		queriesTotal.WithLabelValues("search", "miss").Inc()
	} else {
		queriesTotal.WithLabelValues("search", "hit").Inc()
	}
	return matches, nil
}
