package rebuild

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/cache"
	"github.com/fyrsmithlabs/recalld/internal/entity"
	"github.com/fyrsmithlabs/recalld/internal/source"
)

// Executor re-projects source entities into the recall index. It runs
// fully decoupled from the request that triggered it and holds no lock
// that blocks foreground reads or writes: the rebuild is a sequence of
// idempotent upserts through the same projector registry change
// propagation uses, so the cache only improves monotonically while
// live traffic continues.
type Executor struct {
	source *source.Store
	cache  *cache.Store
	state  *State
	logger *zap.Logger
}

// NewExecutor creates a rebuild executor.
func NewExecutor(src *source.Store, idx *cache.Store, state *State, logger *zap.Logger) (*Executor, error) {
	if src == nil || idx == nil || state == nil {
		return nil, fmt.Errorf("source store, cache store and state are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{source: src, cache: idx, state: state, logger: logger}, nil
}

// Report summarizes one rebuild run.
type Report struct {
	ScopeID   string        `json:"scope_id,omitempty"`
	Projected int           `json:"projected"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Rebuild clears the scope (or the whole index when scopeID is empty)
// and re-projects every non-deleted source entity. Per-entity
// projection failures are logged and counted but do not stop the run;
// a run with failures does not record completion, so the next
// structural miss re-triggers after the debounce window. Running the
// executor twice in a row yields identical cache content.
func (ex *Executor) Rebuild(ctx context.Context, scopeID string) (*Report, error) {
	start := time.Now()
	report := &Report{ScopeID: scopeID}

	ex.logger.Info("rebuild started", zap.String("scope_id", scopeID))

	if scopeID == "" {
		ex.cache.Reset()
	} else {
		ex.cache.Clear(scopeID)
	}

	registry := ex.source.Registry()
	err := ex.source.ForEach(ctx, scopeID, func(e *entity.SourceEntity) error {
		entry, err := registry.Project(e)
		if err != nil {
			report.Failed++
			ex.logger.Warn("rebuild projection failed",
				zap.String("kind", e.Kind),
				zap.String("natural_key", e.NaturalKey),
				zap.Error(err),
			)
			return nil
		}
		// Live writes keep flowing during the rebuild; an entry that
		// is already fresher than the snapshot must win.
		if !ex.cache.UpsertIfNewer(entry) {
			ex.logger.Debug("rebuild skipped snapshot-stale entry",
				zap.String("kind", e.Kind),
				zap.String("natural_key", e.NaturalKey),
			)
		}
		report.Projected++
		return nil
	})

	report.Duration = time.Since(start)

	if err != nil {
		rebuildsTotal.WithLabelValues("error").Inc()
		ex.logger.Error("rebuild aborted",
			zap.String("scope_id", scopeID),
			zap.Int("projected", report.Projected),
			zap.Int("failed", report.Failed),
			zap.Error(err),
		)
		return report, fmt.Errorf("rebuild aborted after %d entities: %w", report.Projected, err)
	}
	if report.Failed > 0 {
		rebuildsTotal.WithLabelValues("partial").Inc()
		ex.logger.Error("rebuild finished with failures",
			zap.String("scope_id", scopeID),
			zap.Int("projected", report.Projected),
			zap.Int("failed", report.Failed),
		)
		return report, fmt.Errorf("rebuild left %d entities unprojected", report.Failed)
	}

	ex.state.RecordRebuild(time.Now())
	rebuildsTotal.WithLabelValues("success").Inc()
	rebuildDuration.Observe(report.Duration.Seconds())

	ex.logger.Info("rebuild completed",
		zap.String("scope_id", scopeID),
		zap.Int("projected", report.Projected),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}
