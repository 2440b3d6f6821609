package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/production/repository"
	"github.com/craftline/craftline-backend/pkg/database"
	"github.com/craftline/craftline-backend/pkg/errors"
	"github.com/craftline/craftline-backend/pkg/logger"
)

// RecipeItemRequest is one component line of a recipe definition
type RecipeItemRequest struct {
	ComponentKind   string          `json:"component_kind" validate:"required"`
	ComponentID     string          `json:"component_id" validate:"required"`
	Quantity        decimal.Decimal `json:"quantity" validate:"required"`
	Unit            string          `json:"unit" validate:"required"`
	WastePercentage decimal.Decimal `json:"waste_percentage"`
}

// RecipeCostRateRequest is one non-material cost category of a recipe
type RecipeCostRateRequest struct {
	Category    string          `json:"category" validate:"required,oneof=labor overhead management"`
	RatePerUnit decimal.Decimal `json:"rate_per_unit"`
	FixedRate   decimal.Decimal `json:"fixed_rate"`
}

// CreateRecipeRequest defines a new bill of materials
type CreateRecipeRequest struct {
	Name                  string                  `json:"name" validate:"required"`
	OutputKind            string                  `json:"output_kind" validate:"required"`
	OutputID              string                  `json:"output_id" validate:"required"`
	OutputQuantity        decimal.Decimal         `json:"output_quantity" validate:"required"`
	OutputUnit            string                  `json:"output_unit" validate:"required"`
	ProductionTimeMinutes int                     `json:"production_time_minutes" validate:"gte=0"`
	Items                 []RecipeItemRequest     `json:"items" validate:"required,min=1,dive"`
	CostRates             []RecipeCostRateRequest `json:"cost_rates" validate:"omitempty,dive"`
}

// RecipeService manages bill-of-materials definitions
type RecipeService struct {
	db         *database.DB
	recipeRepo *repository.RecipeRepository
	expander   *RecipeExpander
	items      domain.ItemLookup
	logger     *logger.Logger
}

// NewRecipeService creates a new recipe service
func NewRecipeService(db *database.DB, recipeRepo *repository.RecipeRepository, expander *RecipeExpander, items domain.ItemLookup, log *logger.Logger) *RecipeService {
	return &RecipeService{
		db:         db,
		recipeRepo: recipeRepo,
		expander:   expander,
		items:      items,
		logger:     log,
	}
}

// CreateRecipe validates and stores a recipe. The recipe is expanded once
// inside the transaction, so a definition that closes a cycle in the BOM
// graph or lacks a unit conversion path is rejected before it persists.
func (s *RecipeService) CreateRecipe(ctx context.Context, req *CreateRecipeRequest) (*repository.Recipe, error) {
	outputRef, err := parseItemRef(req.OutputKind, req.OutputID)
	if err != nil {
		return nil, err
	}
	if outputRef.Kind == domain.KindMaterial {
		return nil, errors.BadRequest("a recipe cannot produce a raw material")
	}
	if !req.OutputQuantity.IsPositive() {
		return nil, errors.InvalidQuantity("output quantity must be positive")
	}
	if _, err := s.items.Lookup(ctx, outputRef); err != nil {
		return nil, err
	}

	recipe := &repository.Recipe{
		Name:                  req.Name,
		OutputKind:            outputRef.Kind,
		OutputID:              outputRef.ID,
		OutputQuantity:        req.OutputQuantity,
		OutputUnit:            req.OutputUnit,
		ProductionTimeMinutes: req.ProductionTimeMinutes,
		IsActive:              true,
	}
	for _, item := range req.Items {
		componentRef, err := parseItemRef(item.ComponentKind, item.ComponentID)
		if err != nil {
			return nil, err
		}
		if componentRef == outputRef {
			return nil, errors.RecipeCycleDetected(outputRef.Key())
		}
		if !item.Quantity.IsPositive() {
			return nil, errors.InvalidQuantity("component quantity must be positive")
		}
		if item.WastePercentage.IsNegative() {
			return nil, errors.InvalidQuantity("waste percentage cannot be negative")
		}
		if _, err := s.items.Lookup(ctx, componentRef); err != nil {
			return nil, err
		}
		recipe.Items = append(recipe.Items, &repository.RecipeItem{
			ComponentKind:   componentRef.Kind,
			ComponentID:     componentRef.ID,
			Quantity:        item.Quantity,
			Unit:            item.Unit,
			WastePercentage: item.WastePercentage,
		})
	}
	for _, rate := range req.CostRates {
		recipe.CostRates = append(recipe.CostRates, &repository.RecipeCostRate{
			Category:    rate.Category,
			RatePerUnit: rate.RatePerUnit,
			FixedRate:   rate.FixedRate,
		})
	}

	err = s.db.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.recipeRepo.Create(txCtx, recipe); err != nil {
			return err
		}
		// Expanding once catches cycles the new recipe closes and missing
		// unit conversions; a failure rolls the insert back.
		_, err := s.expander.ExpandRecursive(txCtx, recipe, recipe.OutputQuantity)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("recipe_id", recipe.ID).Str("name", recipe.Name).Msg("recipe created")
	return recipe, nil
}

// GetRecipe returns a recipe with items and cost rates.
func (s *RecipeService) GetRecipe(ctx context.Context, id string) (*repository.Recipe, error) {
	return s.recipeRepo.GetByID(ctx, id)
}

// ListRecipes returns recipes, optionally only active ones.
func (s *RecipeService) ListRecipes(ctx context.Context, activeOnly bool) ([]*repository.Recipe, error) {
	return s.recipeRepo.List(ctx, activeOnly)
}

// DeactivateRecipe retires a recipe from future production.
func (s *RecipeService) DeactivateRecipe(ctx context.Context, id string) error {
	return s.recipeRepo.Deactivate(ctx, id)
}

// ExpandRecipe returns the flattened component requirements for a target
// quantity, without touching stock.
func (s *RecipeService) ExpandRecipe(ctx context.Context, id string, targetQuantity decimal.Decimal) ([]*ComponentRequirement, error) {
	recipe, err := s.recipeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.expander.ExpandRecursive(ctx, recipe, targetQuantity)
}

func parseItemRef(kind, id string) (domain.ItemRef, error) {
	k, err := domain.ParseItemKind(kind)
	if err != nil {
		return domain.ItemRef{}, err
	}
	if id == "" {
		return domain.ItemRef{}, errors.BadRequest("item id is required")
	}
	return domain.ItemRef{Kind: k, ID: id}, nil
}
