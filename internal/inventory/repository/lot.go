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

// InventoryLot is one incoming delivery at a fixed purchase price.
// QuantityRemaining only ever decreases; a lot never recovers stock.
type InventoryLot struct {
	ID                string          `db:"id" json:"id"`
	ItemKind          domain.ItemKind `db:"item_kind" json:"item_kind"`
	ItemID            string          `db:"item_id" json:"item_id"`
	QuantityReceived  decimal.Decimal `db:"quantity_received" json:"quantity_received"`
	QuantityRemaining decimal.Decimal `db:"quantity_remaining" json:"quantity_remaining"`
	PricePerUnit      decimal.Decimal `db:"price_per_unit" json:"price_per_unit"`
	Unit              string          `db:"unit" json:"unit"`
	ReceivedAt        time.Time       `db:"received_at" json:"received_at"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// LotRepository handles inventory lot persistence
type LotRepository struct {
	db *database.DB
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *database.DB) *LotRepository {
	return &LotRepository{db: db}
}

// Create inserts a new lot. The ID is generated here when empty.
func (r *LotRepository) Create(ctx context.Context, lot *InventoryLot) error {
	if lot.ID == "" {
		lot.ID = uuid.New().String()
	}
	query := `
		INSERT INTO inventory_lots (id, item_kind, item_id, quantity_received, quantity_remaining, price_per_unit, unit, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.db.Executor(ctx).GetContext(ctx, &lot.CreatedAt, query,
		lot.ID, lot.ItemKind, lot.ItemID, lot.QuantityReceived, lot.QuantityRemaining,
		lot.PricePerUnit, lot.Unit, lot.ReceivedAt,
	)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// GetByID returns a single lot.
func (r *LotRepository) GetByID(ctx context.Context, id string) (*InventoryLot, error) {
	var lot InventoryLot
	query := `SELECT * FROM inventory_lots WHERE id = $1`
	if err := r.db.Executor(ctx).GetContext(ctx, &lot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("inventory lot")
		}
		return nil, err
	}
	return &lot, nil
}

// ListOpen returns the lots of an item that still have stock, ordered by
// received_at according to the costing strategy (oldest first for FIFO,
// newest first for LIFO). Average costing reads them FIFO for determinism.
func (r *LotRepository) ListOpen(ctx context.Context, ref domain.ItemRef, strategy domain.CostStrategy) ([]*InventoryLot, error) {
	order := "ASC"
	if strategy == domain.CostStrategyLIFO {
		order = "DESC"
	}
	var lots []*InventoryLot
	query := `
		SELECT * FROM inventory_lots
		WHERE item_kind = $1 AND item_id = $2 AND quantity_remaining > 0
		ORDER BY received_at ` + order + `, created_at ` + order
	if err := r.db.Executor(ctx).SelectContext(ctx, &lots, query, ref.Kind, ref.ID); err != nil {
		return nil, err
	}
	return lots, nil
}

// Decrement reduces a lot's remaining quantity. The WHERE guard makes the
// decrement fail rather than drive the lot negative under a racing writer.
func (r *LotRepository) Decrement(ctx context.Context, id string, by decimal.Decimal) error {
	query := `
		UPDATE inventory_lots
		SET quantity_remaining = quantity_remaining - $2
		WHERE id = $1 AND quantity_remaining >= $2
	`
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, id, by)
	if err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.InsufficientStock("lot " + id + " no longer holds the requested quantity")
	}
	return nil
}
