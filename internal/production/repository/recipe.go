package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/pkg/database"
	"github.com/craftline/craftline-backend/pkg/errors"
)

// Recipe is a bill of materials: producing OutputQuantity of the output item
// consumes the component quantities listed in Items.
type Recipe struct {
	ID                    string          `db:"id" json:"id"`
	Name                  string          `db:"name" json:"name"`
	OutputKind            domain.ItemKind `db:"output_kind" json:"output_kind"`
	OutputID              string          `db:"output_id" json:"output_id"`
	OutputQuantity        decimal.Decimal `db:"output_quantity" json:"output_quantity"`
	OutputUnit            string          `db:"output_unit" json:"output_unit"`
	ProductionTimeMinutes int             `db:"production_time_minutes" json:"production_time_minutes"`
	IsActive              bool            `db:"is_active" json:"is_active"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`

	Items     []*RecipeItem     `db:"-" json:"items,omitempty"`
	CostRates []*RecipeCostRate `db:"-" json:"cost_rates,omitempty"`
}

// OutputRef returns the recipe's output item reference.
func (r *Recipe) OutputRef() domain.ItemRef {
	return domain.ItemRef{Kind: r.OutputKind, ID: r.OutputID}
}

// RecipeItem is one component line: Quantity of the component in Unit per
// OutputQuantity of the recipe, inflated by WastePercentage when expanded.
type RecipeItem struct {
	ID              string          `db:"id" json:"id"`
	RecipeID        string          `db:"recipe_id" json:"recipe_id"`
	ComponentKind   domain.ItemKind `db:"component_kind" json:"component_kind"`
	ComponentID     string          `db:"component_id" json:"component_id"`
	Quantity        decimal.Decimal `db:"quantity" json:"quantity"`
	Unit            string          `db:"unit" json:"unit"`
	WastePercentage decimal.Decimal `db:"waste_percentage" json:"waste_percentage"`
}

// ComponentRef returns the component's item reference.
func (i *RecipeItem) ComponentRef() domain.ItemRef {
	return domain.ItemRef{Kind: i.ComponentKind, ID: i.ComponentID}
}

// RecipeCostRate adds non-material cost per category when a batch completes:
// rate_per_unit times actual quantity, plus fixed_rate per run.
type RecipeCostRate struct {
	ID          string          `db:"id" json:"id"`
	RecipeID    string          `db:"recipe_id" json:"recipe_id"`
	Category    string          `db:"category" json:"category"`
	RatePerUnit decimal.Decimal `db:"rate_per_unit" json:"rate_per_unit"`
	FixedRate   decimal.Decimal `db:"fixed_rate" json:"fixed_rate"`
}

// RecipeRepository handles recipe persistence
type RecipeRepository struct {
	db *database.DB
}

// NewRecipeRepository creates a new recipe repository
func NewRecipeRepository(db *database.DB) *RecipeRepository {
	return &RecipeRepository{db: db}
}

// Create inserts a recipe with its items and cost rates.
func (r *RecipeRepository) Create(ctx context.Context, recipe *Recipe) error {
	if recipe.ID == "" {
		recipe.ID = uuid.New().String()
	}
	query := `
		INSERT INTO recipes (id, name, output_kind, output_id, output_quantity, output_unit, production_time_minutes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	row := r.db.Executor(ctx).QueryRowxContext(ctx, query,
		recipe.ID, recipe.Name, recipe.OutputKind, recipe.OutputID, recipe.OutputQuantity,
		recipe.OutputUnit, recipe.ProductionTimeMinutes, recipe.IsActive,
	)
	if err := row.Scan(&recipe.CreatedAt, &recipe.UpdatedAt); err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}

	for _, item := range recipe.Items {
		item.RecipeID = recipe.ID
		if err := r.createItem(ctx, item); err != nil {
			return err
		}
	}
	for _, rate := range recipe.CostRates {
		rate.RecipeID = recipe.ID
		if err := r.createCostRate(ctx, rate); err != nil {
			return err
		}
	}
	return nil
}

func (r *RecipeRepository) createItem(ctx context.Context, item *RecipeItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	query := `
		INSERT INTO recipe_items (id, recipe_id, component_kind, component_id, quantity, unit, waste_percentage)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		item.ID, item.RecipeID, item.ComponentKind, item.ComponentID,
		item.Quantity, item.Unit, item.WastePercentage,
	)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

func (r *RecipeRepository) createCostRate(ctx context.Context, rate *RecipeCostRate) error {
	if rate.ID == "" {
		rate.ID = uuid.New().String()
	}
	query := `
		INSERT INTO recipe_cost_rates (id, recipe_id, category, rate_per_unit, fixed_rate)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		rate.ID, rate.RecipeID, rate.Category, rate.RatePerUnit, rate.FixedRate,
	)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// GetByID returns a recipe with its items and cost rates.
func (r *RecipeRepository) GetByID(ctx context.Context, id string) (*Recipe, error) {
	var recipe Recipe
	query := `SELECT * FROM recipes WHERE id = $1`
	if err := r.db.Executor(ctx).GetContext(ctx, &recipe, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("recipe")
		}
		return nil, err
	}
	if err := r.loadChildren(ctx, &recipe); err != nil {
		return nil, err
	}
	return &recipe, nil
}

// GetByOutput returns the active recipe producing an item, if any. This is
// the default recipe used when a product appears as a component in another
// recipe's bill of materials.
func (r *RecipeRepository) GetByOutput(ctx context.Context, ref domain.ItemRef) (*Recipe, error) {
	var recipe Recipe
	query := `
		SELECT * FROM recipes
		WHERE output_kind = $1 AND output_id = $2 AND is_active = true
		ORDER BY created_at DESC
		LIMIT 1
	`
	if err := r.db.Executor(ctx).GetContext(ctx, &recipe, query, ref.Kind, ref.ID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("recipe for item " + ref.Key())
		}
		return nil, err
	}
	if err := r.loadChildren(ctx, &recipe); err != nil {
		return nil, err
	}
	return &recipe, nil
}

// List returns recipes, optionally only active ones.
func (r *RecipeRepository) List(ctx context.Context, activeOnly bool) ([]*Recipe, error) {
	var recipes []*Recipe
	query := `SELECT * FROM recipes ORDER BY name`
	if activeOnly {
		query = `SELECT * FROM recipes WHERE is_active = true ORDER BY name`
	}
	if err := r.db.Executor(ctx).SelectContext(ctx, &recipes, query); err != nil {
		return nil, err
	}
	for _, recipe := range recipes {
		if err := r.loadChildren(ctx, recipe); err != nil {
			return nil, err
		}
	}
	return recipes, nil
}

// Deactivate retires a recipe. Completed batches keep referencing it, so
// recipes are never hard-deleted.
func (r *RecipeRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE recipes SET is_active = false, updated_at = NOW() WHERE id = $1`
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("recipe")
	}
	return nil
}

func (r *RecipeRepository) loadChildren(ctx context.Context, recipe *Recipe) error {
	itemsQuery := `SELECT * FROM recipe_items WHERE recipe_id = $1 ORDER BY component_kind, component_id`
	if err := r.db.Executor(ctx).SelectContext(ctx, &recipe.Items, itemsQuery, recipe.ID); err != nil {
		return err
	}
	ratesQuery := `SELECT * FROM recipe_cost_rates WHERE recipe_id = $1 ORDER BY category`
	return r.db.Executor(ctx).SelectContext(ctx, &recipe.CostRates, ratesQuery, recipe.ID)
}
