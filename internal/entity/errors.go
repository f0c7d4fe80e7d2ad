package entity

import "errors"

// Sentinel errors shared across recalld components.
var (
	// ErrNotFound is returned when a lookup or traversal start key has
	// no visible cache entry. It is a normal outcome, not a failure.
	ErrNotFound = errors.New("entity not found")

	// ErrValidation indicates malformed caller input, rejected
	// synchronously before any work is done.
	ErrValidation = errors.New("validation failed")

	// ErrProjection indicates change propagation could not produce a
	// cache entry. It aborts the originating source write.
	ErrProjection = errors.New("cache projection failed")

	// ErrUnknownKind is returned when no projector is registered for
	// an entity kind.
	ErrUnknownKind = errors.New("unknown entity kind")

	// ErrDispatchUnavailable indicates no rebuild notifier accepted a
	// dispatch. It is logged by the coordinator and never surfaced to
	// query callers.
	ErrDispatchUnavailable = errors.New("no rebuild dispatch channel available")
)
