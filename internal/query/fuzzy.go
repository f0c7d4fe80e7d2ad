package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/cache"
	"github.com/fyrsmithlabs/recalld/internal/entity"
)

// fuzzyCandidate is a scored entry awaiting hydration.
type fuzzyCandidate struct {
	entry *cache.Entry
	score float64
}

// Fuzzy ranks visible entries by trigram similarity between the query
// text and each entry's natural key or summary text. The threshold is
// a hard cutoff; results are ordered by descending score with ties
// broken by natural key so repeated queries return identical output.
// Only the top candidates are hydrated to full source records. An
// empty result evaluates self-healing.
func (e *Engine) Fuzzy(ctx context.Context, p FuzzyParams) ([]Match, error) {
	ctx, span := tracer.Start(ctx, "Engine.Fuzzy")
	defer span.End()
	timer := startTimer("fuzzy")
	defer timer.done()

	if strings.TrimSpace(p.Text) == "" {
		queriesTotal.WithLabelValues("fuzzy", "invalid").Inc()
		return nil, fmt.Errorf("%w: text is required", entity.ErrValidation)
	}
	if p.ScopeID == "" {
		queriesTotal.WithLabelValues("fuzzy", "invalid").Inc()
		return nil, fmt.Errorf("%w: scope id is required", entity.ErrValidation)
	}
	if p.Limit < 0 {
		queriesTotal.WithLabelValues("fuzzy", "invalid").Inc()
		return nil, fmt.Errorf("%w: limit must not be negative", entity.ErrValidation)
	}
	if p.Threshold < 0 || p.Threshold > 1 {
		queriesTotal.WithLabelValues("fuzzy", "invalid").Inc()
		return nil, fmt.Errorf("%w: threshold must be in [0, 1]", entity.ErrValidation)
	}

	threshold := p.Threshold
	if threshold == 0 {
		threshold = e.opts.FuzzyThreshold
	}
	limit := p.Limit
	if limit == 0 {
		limit = e.opts.FuzzyLimit
	}

	var candidates []fuzzyCandidate
	e.cache.VisitScope(p.ScopeID, p.OwnerID, func(entry *cache.Entry) {
		score := trigramSimilarity(p.Text, entry.NaturalKey)
		if entry.SummaryText != "" {
			if s := trigramSimilarity(p.Text, entry.SummaryText); s > score {
				score = s
			}
		}
		if score >= threshold {
			candidates = append(candidates, fuzzyCandidate{entry: entry, score: score})
		}
	})

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].entry.NaturalKey < candidates[j].entry.NaturalKey
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		record, err := e.source.Get(ctx, c.entry.EntityID)
		if err != nil {
			e.logger.Warn("skipping fuzzy hit without source record",
				zap.String("natural_key", c.entry.NaturalKey),
				zap.Error(err),
			)
			continue
		}
		matches = append(matches, Match{Kind: c.entry.Kind, Score: c.score, Record: record})
	}

	if len(matches) == 0 {
		queriesTotal.WithLabelValues("fuzzy", "miss").Inc()
		e.evaluateHealing(ctx, p.ScopeID, "fuzzy")
		return matches, nil
	}

	queriesTotal.WithLabelValues("fuzzy", "hit").Inc()
	return matches, nil
}
