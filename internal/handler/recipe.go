package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/foodgram/internal/metrics"
	"github.com/sakif/foodgram/internal/model"
	"github.com/sakif/foodgram/internal/repository"
	"github.com/sakif/foodgram/internal/service"
)

// RecipeHandler serves recipes, their favorite and cart toggles, short
// links and the shopping list download.
type RecipeHandler struct {
	recipes   *service.RecipeService
	relations *service.RelationService
	shopping  *service.ShoppingListService
	baseURL   string // public origin for short links; empty derives it from the request
	logger    *slog.Logger
}

func NewRecipeHandler(
	recipes *service.RecipeService,
	relations *service.RelationService,
	shopping *service.ShoppingListService,
	baseURL string,
	logger *slog.Logger,
) *RecipeHandler {
	return &RecipeHandler{
		recipes:   recipes,
		relations: relations,
		shopping:  shopping,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// recipeRequest is the body of create and update. Pointers distinguish a
// missing field from a zero value; ingredients stay raw for the validator.
type recipeRequest struct {
	Name        *string `json:"name"`
	Text        *string `json:"text"`
	CookingTime *int    `json:"cooking_time"`
	Image       *string `json:"image"`
	Ingredients any     `json:"ingredients"`
}

func (req recipeRequest) input() service.RecipeInput {
	return service.RecipeInput{
		Name:        req.Name,
		Text:        req.Text,
		CookingTime: req.CookingTime,
		Image:       req.Image,
		Ingredients: req.Ingredients,
	}
}

type shortLinkResponse struct {
	ShortLink string `json:"short-link"`
}

// =========================================================================
// CRUD
// =========================================================================

// HTTP: POST /api/recipes (auth)
func (h *RecipeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req recipeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	view, err := h.recipes.Create(r.Context(), userID, req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HTTP: PATCH /api/recipes/{id} (auth, author only)
func (h *RecipeHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	recipeID, err := pathID(r, "id", "recipe")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req recipeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	view, err := h.recipes.Update(r.Context(), userID, recipeID, req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HTTP: DELETE /api/recipes/{id} (auth, author only)
func (h *RecipeHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	recipeID, err := pathID(r, "id", "recipe")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.recipes.Delete(r.Context(), userID, recipeID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: GET /api/recipes/{id}
func (h *RecipeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	recipeID, err := pathID(r, "id", "recipe")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.recipes.Get(r.Context(), recipeID, viewerID(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleList returns recipes newest first.
//
// HTTP: GET /api/recipes?author=&is_favorited=0|1&is_in_shopping_cart=0|1&limit=&page=
func (h *RecipeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.RecipeFilter{
		ListOptions: listOptions(r),
		ViewerID:    viewerID(r),
		Favorited:   flagParam(q.Get("is_favorited")),
		InCart:      flagParam(q.Get("is_in_shopping_cart")),
	}
	if author, err := strconv.ParseInt(q.Get("author"), 10, 64); err == nil && author > 0 {
		filter.AuthorID = author
	}

	views, total, err := h.recipes.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(views, total))
}

// flagParam reads a 0|1 filter; anything else leaves the filter off.
func flagParam(v string) *bool {
	switch v {
	case "1", "true":
		t := true
		return &t
	case "0", "false":
		f := false
		return &f
	}
	return nil
}

// =========================================================================
// SHORT LINKS
// =========================================================================

// HTTP: GET /api/recipes/{id}/get-link
func (h *RecipeHandler) HandleGetLink(w http.ResponseWriter, r *http.Request) {
	recipeID, err := pathID(r, "id", "recipe")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	link, err := h.recipes.ShortLink(r.Context(), recipeID, h.origin(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, shortLinkResponse{ShortLink: link})
}

// HandleShortLink redirects a short link to the recipe page.
//
// HTTP: GET /s/{id}
func (h *RecipeHandler) HandleShortLink(w http.ResponseWriter, r *http.Request) {
	recipeID, err := pathID(r, "id", "recipe")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.recipes.ShortLink(r.Context(), recipeID, ""); err != nil {
		writeError(w, h.logger, err)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/recipes/%d", recipeID), http.StatusFound)
}

func (h *RecipeHandler) origin(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// =========================================================================
// FAVORITES AND CART
// =========================================================================

// HandleAddRelation returns the POST handler for /api/recipes/{id}/favorite
// or /api/recipes/{id}/shopping_cart (auth).
func (h *RecipeHandler) HandleAddRelation(kind model.RelationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		recipeID, err := pathID(r, "id", "recipe")
		if err != nil {
			writeError(w, h.logger, err)
			return
		}

		short, err := h.relations.Add(r.Context(), kind, userID, recipeID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, short)
	}
}

// HandleRemoveRelation is the DELETE counterpart of HandleAddRelation.
func (h *RecipeHandler) HandleRemoveRelation(kind model.RelationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		recipeID, err := pathID(r, "id", "recipe")
		if err != nil {
			writeError(w, h.logger, err)
			return
		}

		if err := h.relations.Remove(r.Context(), kind, userID, recipeID); err != nil {
			writeError(w, h.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleDownloadShoppingCart sends the aggregated shopping list as a text
// attachment. The report is rendered into memory first so a failure can
// still be answered with a JSON error.
//
// HTTP: GET /api/recipes/download_shopping_cart (auth)
func (h *RecipeHandler) HandleDownloadShoppingCart(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	list, err := h.shopping.Build(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var buf bytes.Buffer
	if err := service.RenderShoppingList(&buf, list); err != nil {
		writeError(w, h.logger, err)
		return
	}

	metrics.RecordShoppingListDownload()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", service.ShoppingListFilename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
