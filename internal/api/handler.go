package api

import (
	"github.com/gin-gonic/gin"

	"delivery-tracking-backend/internal/apperrors"
	"delivery-tracking-backend/internal/engine"
	"delivery-tracking-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine   *engine.Engine
	store    store.Store
	maxBatch int
}

// NewHandler creates a new API handler. maxBatch bounds batch ingestion at
// the boundary; the engine itself does not enforce it.
func NewHandler(e *engine.Engine, s store.Store, maxBatch int) *Handler {
	if maxBatch <= 0 {
		maxBatch = 100
	}
	return &Handler{engine: e, store: s, maxBatch: maxBatch}
}

// abortWithError maps a taxonomy error onto the HTTP response.
func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperrors.StatusCode(err), gin.H{
		"error":  apperrors.Kind(err),
		"detail": err.Error(),
	})
}
