package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/embedding"
	"github.com/fyrsmithlabs/recalld/internal/entity"
	"github.com/fyrsmithlabs/recalld/internal/logging"
	"github.com/fyrsmithlabs/recalld/internal/query"
	"github.com/fyrsmithlabs/recalld/internal/rebuild"
)

// handleHealth reports liveness plus the rebuild state snapshot.
// Reading the snapshot never blocks the coordinator or executor.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Rebuild: s.deps.State.Snapshot(),
	})
}

// scopedContext attaches the request's tenancy scope so the engine and
// the access log carry it as a structured field.
func scopedContext(c echo.Context, scopeID string) context.Context {
	ctx := logging.ContextWithScope(c.Request().Context(), scopeID)
	c.SetRequest(c.Request().WithContext(ctx))
	return ctx
}

// handleLookup resolves a natural key to its full source record.
func (s *Server) handleLookup(c echo.Context) error {
	var req LookupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	match, err := s.deps.Engine.Lookup(scopedContext(c, req.ScopeID), query.LookupParams{
		Key:     req.Key,
		ScopeID: req.ScopeID,
		OwnerID: req.OwnerID,
	})
	if err != nil {
		return s.queryError(c, err)
	}
	return c.JSON(http.StatusOK, match)
}

// handleFuzzy runs approximate text matching.
func (s *Server) handleFuzzy(c echo.Context) error {
	var req FuzzyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	matches, err := s.deps.Engine.Fuzzy(scopedContext(c, req.ScopeID), query.FuzzyParams{
		Text:      req.Text,
		ScopeID:   req.ScopeID,
		OwnerID:   req.OwnerID,
		Threshold: req.Threshold,
		Limit:     req.Limit,
	})
	if err != nil {
		return s.queryError(c, err)
	}
	return c.JSON(http.StatusOK, MatchesResponse{Matches: matches})
}

// handleSearch runs vector similarity search.
func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	matches, err := s.deps.Engine.Search(scopedContext(c, req.ScopeID), query.SearchParams{
		Vector:        req.Vector,
		Kind:          req.Kind,
		Field:         req.Field,
		Provider:      req.Provider,
		Model:         req.Model,
		ScopeID:       req.ScopeID,
		OwnerID:       req.OwnerID,
		MinSimilarity: req.MinSimilarity,
		Limit:         req.Limit,
	})
	if err != nil {
		return s.queryError(c, err)
	}
	return c.JSON(http.StatusOK, MatchesResponse{Matches: matches})
}

// handleTraverse runs bounded graph expansion.
func (s *Server) handleTraverse(c echo.Context) error {
	var req TraverseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	hits, err := s.deps.Engine.Traverse(scopedContext(c, req.ScopeID), query.TraverseParams{
		Key:      req.Key,
		ScopeID:  req.ScopeID,
		OwnerID:  req.OwnerID,
		MaxDepth: req.MaxDepth,
		RelTypes: req.RelTypes,
	})
	if err != nil {
		return s.queryError(c, err)
	}
	return c.JSON(http.StatusOK, TraverseResponse{Hits: hits})
}

// handleRebuild accepts an internal rebuild trigger. The rebuild is
// dispatched asynchronously; the caller gets 202 immediately.
func (s *Server) handleRebuild(c echo.Context) error {
	var req rebuild.TriggerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	if s.deps.Trigger == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "rebuild executor not configured"})
	}

	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "internal-api"
	}
	if err := s.deps.Trigger.Notify(c.Request().Context(), req.ScopeID, triggeredBy); err != nil {
		s.logger.Error("rebuild dispatch via api failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "rebuild dispatch failed"})
	}

	return c.JSON(http.StatusAccepted, RebuildAcceptedResponse{
		Status:  "accepted",
		ScopeID: req.ScopeID,
	})
}

// handlePutEntity upserts a source entity; change propagation projects
// it into the recall index within the same request.
func (s *Server) handlePutEntity(c echo.Context) error {
	var e entity.SourceEntity
	if err := c.Bind(&e); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	if err := s.deps.Store.Put(c.Request().Context(), &e); err != nil {
		return s.queryError(c, err)
	}
	return c.JSON(http.StatusOK, &e)
}

// handleDeleteEntity soft-deletes a source entity and removes its
// cache entry and vectors.
func (s *Server) handleDeleteEntity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid entity id"})
	}

	if err := s.deps.Store.Delete(c.Request().Context(), id); err != nil {
		return s.queryError(c, err)
	}
	if s.deps.Vectors != nil {
		if err := s.deps.Vectors.Remove(c.Request().Context(), id); err != nil {
			s.logger.Warn("failed to remove vectors for deleted entity",
				zap.String("entity_id", id.String()),
				zap.Error(err),
			)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// handlePutVector ingests one externally-produced embedding vector.
func (s *Server) handlePutVector(c echo.Context) error {
	var req VectorRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if s.deps.Vectors == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "vector index not configured"})
	}

	id, err := uuid.Parse(req.EntityID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid entity id"})
	}

	if err := s.deps.Vectors.Upsert(c.Request().Context(), embedding.Vector{
		EntityID: id,
		Field:    req.Field,
		Provider: req.Provider,
		Model:    req.Model,
		Values:   req.Values,
	}); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// requireSecret authenticates internal endpoints with the shared
// rebuild secret, compared in constant time. With no secret configured
// the endpoints are open (local development only).
func (s *Server) requireSecret(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.deps.Secret.IsSet() {
			got := c.Request().Header.Get(rebuild.SecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.deps.Secret.Value())) != 1 {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid shared secret"})
			}
		}
		return next(c)
	}
}

// queryError maps the error taxonomy to status codes: NotFound is a
// normal outcome (404), validation and projection errors are the
// caller's fault (400), everything else is an internal error.
func (s *Server) queryError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, entity.ErrValidation),
		errors.Is(err, entity.ErrProjection),
		errors.Is(err, entity.ErrUnknownKind):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
