package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/pkg/database"
)

// UnitConversion is a per-item conversion factor: one from_unit equals
// factor to_unit. The converter also walks these inverted and chained.
type UnitConversion struct {
	ID        string          `db:"id" json:"id"`
	ItemKind  domain.ItemKind `db:"item_kind" json:"item_kind"`
	ItemID    string          `db:"item_id" json:"item_id"`
	FromUnit  string          `db:"from_unit" json:"from_unit"`
	ToUnit    string          `db:"to_unit" json:"to_unit"`
	Factor    decimal.Decimal `db:"factor" json:"factor"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// ConversionRepository handles unit conversion persistence
type ConversionRepository struct {
	db *database.DB
}

// NewConversionRepository creates a new conversion repository
func NewConversionRepository(db *database.DB) *ConversionRepository {
	return &ConversionRepository{db: db}
}

// Create inserts a conversion rule.
func (r *ConversionRepository) Create(ctx context.Context, conv *UnitConversion) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	query := `
		INSERT INTO unit_conversions (id, item_kind, item_id, from_unit, to_unit, factor)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.Executor(ctx).GetContext(ctx, &conv.CreatedAt, query,
		conv.ID, conv.ItemKind, conv.ItemID, conv.FromUnit, conv.ToUnit, conv.Factor,
	)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// ListByItem returns all conversion rules registered for an item.
func (r *ConversionRepository) ListByItem(ctx context.Context, ref domain.ItemRef) ([]*UnitConversion, error) {
	var convs []*UnitConversion
	query := `SELECT * FROM unit_conversions WHERE item_kind = $1 AND item_id = $2`
	if err := r.db.Executor(ctx).SelectContext(ctx, &convs, query, ref.Kind, ref.ID); err != nil {
		return nil, err
	}
	return convs, nil
}

// Delete removes a conversion rule.
func (r *ConversionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM unit_conversions WHERE id = $1`, id)
	return err
}
