package database

import (
	"strings"

	"github.com/lib/pq"

	"github.com/craftline/craftline-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_positive"):
		return errors.InvalidQuantity("quantity must be positive")

	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.InvalidQuantity("quantity must not be negative")

	case strings.Contains(constraint, "price_non_negative"):
		return errors.Validation(map[string]string{
			"price_per_unit": "must not be negative",
		})

	case strings.Contains(constraint, "status_valid"):
		return errors.Validation(map[string]string{
			"status": "is not a recognized lifecycle state",
		})

	case strings.Contains(constraint, "item_kind_valid"):
		return errors.Validation(map[string]string{
			"item_kind": "must be one of: material, product, product_variant",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "inventory_balances"):
		return "a balance row already exists for this item"
	case strings.Contains(constraint, "unit_conversions"):
		return "a conversion factor already exists for this unit pair"
	case strings.Contains(constraint, "recipe_items"):
		return "this component is already part of the recipe"
	default:
		return "a record with these values already exists"
	}
}
