package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/service"
)

type IngredientHandler struct {
	ingredients *service.IngredientService
	logger      *slog.Logger
}

func NewIngredientHandler(ingredients *service.IngredientService, logger *slog.Logger) *IngredientHandler {
	return &IngredientHandler{ingredients: ingredients, logger: logger}
}

// HandleSearch lists ingredients whose name starts with ?name=, or all of
// them. The catalog is small and the list is not paginated.
//
// HTTP: GET /api/ingredients?name=<prefix>
func (h *IngredientHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	items, err := h.ingredients.Search(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []model.Ingredient{}
	}
	writeJSON(w, http.StatusOK, items)
}

// HTTP: GET /api/ingredients/{id}
func (h *IngredientHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "ingredient")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	item, err := h.ingredients.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
