package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/internal/production/service"
	"github.com/craftline/craftline-backend/pkg/errors"
	"github.com/craftline/craftline-backend/pkg/httputil"
	"github.com/craftline/craftline-backend/pkg/logger"
)

// RecipeHandler handles recipe endpoints
type RecipeHandler struct {
	service *service.RecipeService
	logger  *logger.Logger
}

// NewRecipeHandler creates a new recipe handler
func NewRecipeHandler(svc *service.RecipeService, log *logger.Logger) *RecipeHandler {
	return &RecipeHandler{
		service: svc,
		logger:  log,
	}
}

// Create defines a new recipe
func (h *RecipeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRecipeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	recipe, err := h.service.CreateRecipe(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.Created(w, recipe)
}

// List lists recipes
func (h *RecipeHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	recipes, err := h.service.ListRecipes(r.Context(), activeOnly)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, recipes)
}

// Get returns a recipe with its items and cost rates
func (h *RecipeHandler) Get(w http.ResponseWriter, r *http.Request) {
	recipe, err := h.service.GetRecipe(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, recipe)
}

// Deactivate retires a recipe
func (h *RecipeHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeactivateRecipe(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.NoContent(w)
}

// Expand returns the flattened component requirements for a target quantity
func (h *RecipeHandler) Expand(w http.ResponseWriter, r *http.Request) {
	quantity, err := decimal.NewFromString(r.URL.Query().Get("quantity"))
	if err != nil {
		httputil.Error(w, errors.BadRequest("invalid quantity"))
		return
	}

	requirements, err := h.service.ExpandRecipe(r.Context(), chi.URLParam(r, "id"), quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, requirements)
}
