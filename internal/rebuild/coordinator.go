package rebuild

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/entity"
)

// EmptinessProbe is the O(1) structural check distinguishing "this key
// does not exist" from "the whole index is gone".
type EmptinessProbe interface {
	IsEmpty(scopeID string) bool
}

// Coordinator turns structural misses into at most one debounced,
// asynchronous rebuild dispatch. The sequence per miss is: emptiness
// probe, debounce window check against the rebuild state, non-blocking
// try-lock, dispatch. Every exit path returns immediately so the query
// that discovered the miss serves its own (empty) result without
// waiting.
type Coordinator struct {
	probe     EmptinessProbe
	state     *State
	notifiers []Notifier
	window    time.Duration

	// global widens every dispatch to a full-index rebuild instead of
	// the scope that missed.
	global bool

	// dispatching is the try-lock on the fixed rebuild resource: at
	// most one dispatch is in flight. Losers proceed without waiting.
	dispatching atomic.Bool

	logger *zap.Logger
}

// NewCoordinator creates a rebuild coordinator. An empty notifier list
// is allowed: triggers are then logged and dropped, never failing the
// calling query.
func NewCoordinator(probe EmptinessProbe, state *State, notifiers []Notifier, window time.Duration, logger *zap.Logger) *Coordinator {
	if window <= 0 {
		window = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		probe:     probe,
		state:     state,
		notifiers: notifiers,
		window:    window,
		logger:    logger,
	}
}

// SetGlobal switches dispatches from scoped to full-index rebuilds.
func (c *Coordinator) SetGlobal(global bool) {
	c.global = global
}

// OnStructuralMiss evaluates self-healing after a query miss. It never
// blocks and never returns an error: recoverable conditions degrade to
// "serve what we have, heal in background".
func (c *Coordinator) OnStructuralMiss(ctx context.Context, scopeID, triggeredBy string) {
	// A miss against a populated scope is an ordinary NotFound, not
	// evidence of cache loss.
	if !c.probe.IsEmpty(scopeID) {
		return
	}

	if !c.state.TryTrigger(time.Now(), c.window) {
		debouncedTotal.Inc()
		return
	}

	if !c.dispatching.CompareAndSwap(false, true) {
		lockBusyTotal.Inc()
		return
	}

	triggersTotal.Inc()
	c.logger.Info("structural cache miss, dispatching rebuild",
		zap.String("scope_id", scopeID),
		zap.String("triggered_by", triggeredBy),
	)

	// Dispatch off the request path; the triggering query has already
	// returned by the time notifiers run.
	if c.global {
		scopeID = ""
	}
	go c.dispatch(scopeID, triggeredBy)
}

// dispatch tries each notifier in order and stops at the first that
// accepts. Dispatch failure is logged and self-heals on the next
// debounce window.
func (c *Coordinator) dispatch(scopeID, triggeredBy string) {
	defer c.dispatching.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, n := range c.notifiers {
		if err := n.Notify(ctx, scopeID, triggeredBy); err != nil {
			dispatchesTotal.WithLabelValues(n.Name(), "error").Inc()
			c.logger.Warn("rebuild dispatch failed",
				zap.String("notifier", n.Name()),
				zap.String("scope_id", scopeID),
				zap.Error(err),
			)
			continue
		}
		dispatchesTotal.WithLabelValues(n.Name(), "success").Inc()
		c.logger.Info("rebuild dispatched",
			zap.String("notifier", n.Name()),
			zap.String("scope_id", scopeID),
		)
		return
	}

	c.logger.Error("rebuild trigger dropped",
		zap.String("scope_id", scopeID),
		zap.Error(entity.ErrDispatchUnavailable),
	)
}

// Window returns the debounce window (metrics, tests).
func (c *Coordinator) Window() time.Duration {
	return c.window
}
