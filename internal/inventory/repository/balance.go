package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/pkg/database"
	"github.com/craftline/craftline-backend/pkg/errors"
)

// InventoryBalance is the single authoritative stock row per item. It is
// mutated only by the ledger; average_price is the quantity-weighted mean of
// all incoming lots still in stock.
type InventoryBalance struct {
	ItemKind      domain.ItemKind `db:"item_kind" json:"item_kind"`
	ItemID        string          `db:"item_id" json:"item_id"`
	TotalQuantity decimal.Decimal `db:"total_quantity" json:"total_quantity"`
	AveragePrice  decimal.Decimal `db:"average_price" json:"average_price"`
	Unit          string          `db:"unit" json:"unit"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Ref returns the item reference of the balance row.
func (b *InventoryBalance) Ref() domain.ItemRef {
	return domain.ItemRef{Kind: b.ItemKind, ID: b.ItemID}
}

// BalanceRepository handles inventory balance persistence
type BalanceRepository struct {
	db *database.DB
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *database.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// Get returns the balance row for an item.
func (r *BalanceRepository) Get(ctx context.Context, ref domain.ItemRef) (*InventoryBalance, error) {
	var balance InventoryBalance
	query := `SELECT * FROM inventory_balances WHERE item_kind = $1 AND item_id = $2`
	if err := r.db.Executor(ctx).GetContext(ctx, &balance, query, ref.Kind, ref.ID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("inventory balance")
		}
		return nil, err
	}
	return &balance, nil
}

// Upsert creates or replaces the balance row for an item.
func (r *BalanceRepository) Upsert(ctx context.Context, balance *InventoryBalance) error {
	query := `
		INSERT INTO inventory_balances (item_kind, item_id, total_quantity, average_price, unit, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (item_kind, item_id) DO UPDATE SET
			total_quantity = EXCLUDED.total_quantity,
			average_price = EXCLUDED.average_price,
			unit = EXCLUDED.unit,
			updated_at = NOW()
	`
	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		balance.ItemKind, balance.ItemID, balance.TotalQuantity, balance.AveragePrice, balance.Unit,
	)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// List returns all balance rows, ordered by item for stable output.
func (r *BalanceRepository) List(ctx context.Context) ([]*InventoryBalance, error) {
	var balances []*InventoryBalance
	query := `SELECT * FROM inventory_balances ORDER BY item_kind, item_id`
	if err := r.db.Executor(ctx).SelectContext(ctx, &balances, query); err != nil {
		return nil, err
	}
	return balances, nil
}

// ListBelow returns balance rows whose quantity is at or below the threshold.
func (r *BalanceRepository) ListBelow(ctx context.Context, threshold decimal.Decimal) ([]*InventoryBalance, error) {
	var balances []*InventoryBalance
	query := `SELECT * FROM inventory_balances WHERE total_quantity <= $1 ORDER BY total_quantity`
	if err := r.db.Executor(ctx).SelectContext(ctx, &balances, query, threshold); err != nil {
		return nil, err
	}
	return balances, nil
}
