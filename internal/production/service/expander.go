package service

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/production/repository"
	"github.com/craftline/craftline-backend/pkg/errors"
)

// RecipeSource supplies recipes for expansion.
type RecipeSource interface {
	GetByID(ctx context.Context, id string) (*repository.Recipe, error)
	GetByOutput(ctx context.Context, ref domain.ItemRef) (*repository.Recipe, error)
}

// QuantityConverter converts a quantity between units of one item.
type QuantityConverter interface {
	Convert(ctx context.Context, ref domain.ItemRef, quantity decimal.Decimal, fromUnit, toUnit string) (decimal.Decimal, error)
}

// ComponentRequirement is one line of an expanded bill of materials, in the
// component's stock unit. Quantity already includes waste; WasteQuantity is
// the waste share of it.
type ComponentRequirement struct {
	Component     domain.ItemRef  `json:"component"`
	Quantity      decimal.Decimal `json:"quantity"`
	WasteQuantity decimal.Decimal `json:"waste_quantity"`
	Unit          string          `json:"unit"`
}

// RecipeExpander flattens a recipe's bill of materials into component
// requirements for an arbitrary target quantity, optionally recursing
// through components that are themselves produced by a recipe.
type RecipeExpander struct {
	recipes   RecipeSource
	converter QuantityConverter
	items     domain.ItemLookup
}

// NewRecipeExpander creates a new recipe expander
func NewRecipeExpander(recipes RecipeSource, converter QuantityConverter, items domain.ItemLookup) *RecipeExpander {
	return &RecipeExpander{
		recipes:   recipes,
		converter: converter,
		items:     items,
	}
}

// Expand computes single-level component requirements for producing
// targetQuantity of the recipe's output. Per line:
// quantity * (targetQuantity / output_quantity) * (1 + waste_percentage/100),
// converted into the component's stock unit.
func (e *RecipeExpander) Expand(ctx context.Context, recipe *repository.Recipe, targetQuantity decimal.Decimal) ([]*ComponentRequirement, error) {
	if !targetQuantity.IsPositive() {
		return nil, errors.InvalidQuantity("target quantity must be positive")
	}
	if !recipe.OutputQuantity.IsPositive() {
		return nil, errors.BadRequest("recipe " + recipe.ID + " has a non-positive output quantity")
	}

	scale := targetQuantity.Div(recipe.OutputQuantity)
	hundred := decimal.NewFromInt(100)

	requirements := make([]*ComponentRequirement, 0, len(recipe.Items))
	for _, item := range recipe.Items {
		ref := item.ComponentRef()
		base := item.Quantity.Mul(scale)
		waste := base.Mul(item.WastePercentage.Div(hundred))
		required := base.Add(waste)

		stockUnit := item.Unit
		if descriptor, err := e.items.Lookup(ctx, ref); err == nil && descriptor.Unit != "" {
			stockUnit = descriptor.Unit
		}
		converted, err := e.converter.Convert(ctx, ref, required, item.Unit, stockUnit)
		if err != nil {
			return nil, err
		}
		convertedWaste, err := e.converter.Convert(ctx, ref, waste, item.Unit, stockUnit)
		if err != nil {
			return nil, err
		}

		requirements = append(requirements, &ComponentRequirement{
			Component:     ref,
			Quantity:      converted,
			WasteQuantity: convertedWaste,
			Unit:          stockUnit,
		})
	}
	return requirements, nil
}

// ExpandRecursive flattens nested bills of materials down to components that
// no active recipe produces. A component produced by a recipe already on the
// current expansion path means the BOM graph has a cycle.
func (e *RecipeExpander) ExpandRecursive(ctx context.Context, recipe *repository.Recipe, targetQuantity decimal.Decimal) ([]*ComponentRequirement, error) {
	acc := make(map[string]*ComponentRequirement)
	path := map[string]bool{recipe.ID: true}
	if err := e.expandInto(ctx, recipe, targetQuantity, path, acc); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(acc))
	for key := range acc {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	requirements := make([]*ComponentRequirement, 0, len(acc))
	for _, key := range keys {
		requirements = append(requirements, acc[key])
	}
	return requirements, nil
}

func (e *RecipeExpander) expandInto(ctx context.Context, recipe *repository.Recipe, targetQuantity decimal.Decimal, path map[string]bool, acc map[string]*ComponentRequirement) error {
	requirements, err := e.Expand(ctx, recipe, targetQuantity)
	if err != nil {
		return err
	}

	for _, req := range requirements {
		if req.Component.Kind == domain.KindMaterial {
			accumulate(acc, req)
			continue
		}

		nested, err := e.recipes.GetByOutput(ctx, req.Component)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				// Produced items without a recipe are stocked directly.
				accumulate(acc, req)
				continue
			}
			return err
		}
		if path[nested.ID] {
			return errors.RecipeCycleDetected(nested.ID)
		}

		nestedTarget, err := e.converter.Convert(ctx, req.Component, req.Quantity, req.Unit, nested.OutputUnit)
		if err != nil {
			return err
		}

		path[nested.ID] = true
		if err := e.expandInto(ctx, nested, nestedTarget, path, acc); err != nil {
			return err
		}
		delete(path, nested.ID)
	}
	return nil
}

func accumulate(acc map[string]*ComponentRequirement, req *ComponentRequirement) {
	key := req.Component.Key()
	if existing, ok := acc[key]; ok {
		existing.Quantity = existing.Quantity.Add(req.Quantity)
		existing.WasteQuantity = existing.WasteQuantity.Add(req.WasteQuantity)
		return
	}
	acc[key] = &ComponentRequirement{
		Component:     req.Component,
		Quantity:      req.Quantity,
		WasteQuantity: req.WasteQuantity,
		Unit:          req.Unit,
	}
}
