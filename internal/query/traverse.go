package query

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/fyrsmithlabs/recalld/internal/cache"
	"github.com/fyrsmithlabs/recalld/internal/entity"
)

// frontierItem is one path head during breadth-first expansion. The
// path is carried per item, so the same node may be reached via
// different paths but never twice within one path.
type frontierItem struct {
	entry *cache.Entry
	depth int
	path  []string
}

// Traverse expands breadth-first from the start key along denormalized
// edges, resolving each hop by natural key in the recall index.
//
// Cycle prevention is per path: an edge whose target already appears
// in the current path is not followed. Final results are de-duplicated
// by natural key, keeping the shallowest depth (guaranteed by BFS
// order). Dangling edges, whose target is not cached yet, are dropped
// silently. Results are ordered by depth, then natural key.
//
// An absent start key evaluates self-healing and returns
// entity.ErrNotFound.
func (e *Engine) Traverse(ctx context.Context, p TraverseParams) ([]TraversalHit, error) {
	ctx, span := tracer.Start(ctx, "Engine.Traverse")
	defer span.End()
	timer := startTimer("traverse")
	defer timer.done()

	if err := validateKeyScope(p.Key, p.ScopeID); err != nil {
		queriesTotal.WithLabelValues("traverse", "invalid").Inc()
		return nil, err
	}
	if p.MaxDepth < 0 {
		queriesTotal.WithLabelValues("traverse", "invalid").Inc()
		return nil, fmt.Errorf("%w: max depth must not be negative", entity.ErrValidation)
	}

	maxDepth := p.MaxDepth
	if maxDepth == 0 {
		maxDepth = 1
	}
	if maxDepth > e.opts.MaxDepth {
		maxDepth = e.opts.MaxDepth
	}

	start, ok := e.cache.Get(p.ScopeID, p.Key, p.OwnerID)
	if !ok {
		queriesTotal.WithLabelValues("traverse", "miss").Inc()
		e.evaluateHealing(ctx, p.ScopeID, "traverse")
		return nil, entity.ErrNotFound
	}

	var allowed map[string]struct{}
	if len(p.RelTypes) > 0 {
		allowed = make(map[string]struct{}, len(p.RelTypes))
		for _, rt := range p.RelTypes {
			allowed[rt] = struct{}{}
		}
	}

	seen := map[string]struct{}{}
	var hits []TraversalHit

	queue := []frontierItem{{entry: start, depth: 0, path: []string{start.NaturalKey}}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if item.depth == maxDepth {
			continue
		}

		for _, edge := range item.entry.Edges {
			if allowed != nil {
				if _, ok := allowed[edge.RelType]; !ok {
					continue
				}
			}
			// A key already on this path is never revisited.
			if slices.Contains(item.path, edge.TargetKey) {
				continue
			}
			target, ok := e.cache.Get(p.ScopeID, edge.TargetKey, p.OwnerID)
			if !ok {
				// Dangling edge: target not cached (yet), dead end.
				continue
			}

			path := append(slices.Clone(item.path), target.NaturalKey)
			depth := item.depth + 1

			// BFS processes the frontier in depth order, so the first
			// time a key produces a hit is its shallowest depth.
			if _, dup := seen[target.NaturalKey]; !dup {
				seen[target.NaturalKey] = struct{}{}
				hits = append(hits, TraversalHit{
					Depth:   depth,
					Key:     target.NaturalKey,
					Kind:    target.Kind,
					RelType: edge.RelType,
					Weight:  edge.Weight,
					Path:    path,
				})
			}

			queue = append(queue, frontierItem{entry: target, depth: depth, path: path})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Depth != hits[j].Depth {
			return hits[i].Depth < hits[j].Depth
		}
		return hits[i].Key < hits[j].Key
	})

	if len(hits) == 0 {
		queriesTotal.WithLabelValues("traverse", "empty").Inc()
	} else {
		queriesTotal.WithLabelValues("traverse", "hit").Inc()
	}
	return hits, nil
}
