package handler

import (
	"net/http"
	"time"

	"github.com/factly/gopie/internal/models"
)

// ModelsHandler serves GET /v1/models.
type ModelsHandler struct {
	servedModel string
	created     int64
}

func NewModelsHandler(servedModel string) *ModelsHandler {
	return &ModelsHandler{servedModel: servedModel, created: time.Now().Unix()}
}

// List reports the single model this server exposes.
func (h *ModelsHandler) List(w http.ResponseWriter, _ *http.Request) {
	models.WriteJSON(w, http.StatusOK, models.ModelList{
		Object: "list",
		Data: []models.ModelInfo{{
			ID:      h.servedModel,
			Object:  "model",
			Created: h.created,
			OwnedBy: "gopie",
		}},
	})
}
