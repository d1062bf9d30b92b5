package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/factly/gopie/internal/engine"
	"github.com/factly/gopie/internal/models"
	"github.com/factly/gopie/internal/search"
)

const version = "1.0.0"

// HealthHandler reports service and dependency health.
type HealthHandler struct {
	store   *search.SchemaStore
	querier engine.Querier
}

func NewHealthHandler(store *search.SchemaStore, querier engine.Querier) *HealthHandler {
	return &HealthHandler{store: store, querier: querier}
}

// Health checks each dependency with a short deadline. The endpoint
// reports degraded rather than failing the request when a dependency is
// down.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "ok"

	if h.store != nil {
		if err := h.store.TestConnection(ctx); err != nil {
			checks["schema_search"] = err.Error()
			status = "degraded"
		} else {
			checks["schema_search"] = "ok"
		}
	}
	if h.querier != nil {
		if err := h.querier.TestConnection(ctx); err != nil {
			checks["sql_engine"] = err.Error()
			status = "degraded"
		} else {
			checks["sql_engine"] = "ok"
		}
	}

	models.WriteJSON(w, http.StatusOK, models.HealthResponse{
		Status:  status,
		Version: version,
		Checks:  checks,
	})
}
