package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/pkg/database"
)

// InventoryTransaction is one append-only ledger entry. Outgoing movements
// that span several lots produce one row per lot touched, each priced at
// that lot's purchase price.
type InventoryTransaction struct {
	ID           string                 `db:"id" json:"id"`
	ItemKind     domain.ItemKind        `db:"item_kind" json:"item_kind"`
	ItemID       string                 `db:"item_id" json:"item_id"`
	Type         domain.TransactionType `db:"type" json:"type"`
	Quantity     decimal.Decimal        `db:"quantity" json:"quantity"`
	PricePerUnit decimal.Decimal        `db:"price_per_unit" json:"price_per_unit"`
	Unit         string                 `db:"unit" json:"unit"`
	LotID        *string                `db:"lot_id" json:"lot_id,omitempty"`
	ActorID      string                 `db:"actor_id" json:"actor_id"`
	ActorName    string                 `db:"actor_name" json:"actor_name"`
	Note         *string                `db:"note" json:"note,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at"`
}

// TransactionFilter narrows history listings.
type TransactionFilter struct {
	From    *time.Time
	To      *time.Time
	Type    *domain.TransactionType
	Page    int
	PerPage int
}

// TransactionRepository handles ledger entry persistence
type TransactionRepository struct {
	db *database.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create appends a ledger entry.
func (r *TransactionRepository) Create(ctx context.Context, txn *InventoryTransaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	query := `
		INSERT INTO inventory_transactions (id, item_kind, item_id, type, quantity, price_per_unit, unit, lot_id, actor_id, actor_name, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	err := r.db.Executor(ctx).GetContext(ctx, &txn.CreatedAt, query,
		txn.ID, txn.ItemKind, txn.ItemID, txn.Type, txn.Quantity, txn.PricePerUnit,
		txn.Unit, txn.LotID, txn.ActorID, txn.ActorName, txn.Note,
	)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// ListByItem returns an item's ledger entries oldest first, paginated, with
// the total count for the filter.
func (r *TransactionRepository) ListByItem(ctx context.Context, ref domain.ItemRef, filter TransactionFilter) ([]*InventoryTransaction, int64, error) {
	where := `WHERE item_kind = $1 AND item_id = $2`
	args := []interface{}{ref.Kind, ref.ID}

	if filter.From != nil {
		args = append(args, *filter.From)
		where += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where += ` AND created_at <= $` + strconv.Itoa(len(args))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		where += ` AND type = $` + strconv.Itoa(len(args))
	}

	var total int64
	if err := r.db.Executor(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM inventory_transactions `+where, args...); err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}
	args = append(args, perPage, (page-1)*perPage)
	query := `SELECT * FROM inventory_transactions ` + where +
		` ORDER BY created_at ASC, id ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	var txns []*InventoryTransaction
	if err := r.db.Executor(ctx).SelectContext(ctx, &txns, query, args...); err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// SumByLot returns the total outgoing quantity recorded against a lot. Used
// by reconciliation checks.
func (r *TransactionRepository) SumByLot(ctx context.Context, lotID string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	query := `SELECT SUM(quantity) FROM inventory_transactions WHERE lot_id = $1 AND type = 'outgoing'`
	if err := r.db.Executor(ctx).GetContext(ctx, &sum, query, lotID); err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

