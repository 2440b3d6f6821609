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

// InventoryAudit is one physical counting session. Expected quantities and
// costs are snapshotted per item when the audit is created, so a count can
// be compared against the books as they stood at that moment.
type InventoryAudit struct {
	ID          string             `db:"id" json:"id"`
	Status      domain.AuditStatus `db:"status" json:"status"`
	Notes       *string            `db:"notes" json:"notes,omitempty"`
	CreatedBy   string             `db:"created_by" json:"created_by"`
	CompletedBy *string            `db:"completed_by" json:"completed_by,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	StartedAt   *time.Time         `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time         `db:"completed_at" json:"completed_at,omitempty"`
}

// InventoryAuditItem is one item line inside an audit. Actual quantity and
// the derived difference stay null until the first count is recorded.
type InventoryAuditItem struct {
	ID               string              `db:"id" json:"id"`
	AuditID          string              `db:"audit_id" json:"audit_id"`
	ItemKind         domain.ItemKind     `db:"item_kind" json:"item_kind"`
	ItemID           string              `db:"item_id" json:"item_id"`
	ItemName         string              `db:"item_name" json:"item_name"`
	Unit             string              `db:"unit" json:"unit"`
	ExpectedQuantity decimal.Decimal     `db:"expected_quantity" json:"expected_quantity"`
	CostPerUnit      decimal.Decimal     `db:"cost_per_unit" json:"cost_per_unit"`
	ActualQuantity   decimal.NullDecimal `db:"actual_quantity" json:"actual_quantity"`
	Difference       decimal.NullDecimal `db:"difference" json:"difference"`
	DifferenceCost   decimal.NullDecimal `db:"difference_cost" json:"difference_cost"`
	Notes            *string             `db:"notes" json:"notes,omitempty"`
	CountedBy        *string             `db:"counted_by" json:"counted_by,omitempty"`
	CountedAt        *time.Time          `db:"counted_at" json:"counted_at,omitempty"`
}

// Ref returns the item reference of the audit line.
func (i *InventoryAuditItem) Ref() domain.ItemRef {
	return domain.ItemRef{Kind: i.ItemKind, ID: i.ItemID}
}

// AuditItemHistory records every count of an audit line, including recounts.
type AuditItemHistory struct {
	ID          string              `db:"id" json:"id"`
	AuditItemID string              `db:"audit_item_id" json:"audit_item_id"`
	OldQuantity decimal.NullDecimal `db:"old_quantity" json:"old_quantity"`
	NewQuantity decimal.Decimal     `db:"new_quantity" json:"new_quantity"`
	CountedBy   string              `db:"counted_by" json:"counted_by"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
}

// AuditRepository handles audit persistence
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts the audit header.
func (r *AuditRepository) Create(ctx context.Context, audit *InventoryAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.New().String()
	}
	query := `
		INSERT INTO inventory_audits (id, status, notes, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := r.db.Executor(ctx).GetContext(ctx, &audit.CreatedAt, query,
		audit.ID, audit.Status, audit.Notes, audit.CreatedBy,
	)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// GetByID returns an audit header.
func (r *AuditRepository) GetByID(ctx context.Context, id string) (*InventoryAudit, error) {
	var audit InventoryAudit
	query := `SELECT * FROM inventory_audits WHERE id = $1`
	if err := r.db.Executor(ctx).GetContext(ctx, &audit, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("inventory audit")
		}
		return nil, err
	}
	return &audit, nil
}

// List returns audit headers newest first.
func (r *AuditRepository) List(ctx context.Context, status *domain.AuditStatus) ([]*InventoryAudit, error) {
	var audits []*InventoryAudit
	if status != nil {
		query := `SELECT * FROM inventory_audits WHERE status = $1 ORDER BY created_at DESC`
		if err := r.db.Executor(ctx).SelectContext(ctx, &audits, query, *status); err != nil {
			return nil, err
		}
		return audits, nil
	}
	query := `SELECT * FROM inventory_audits ORDER BY created_at DESC`
	if err := r.db.Executor(ctx).SelectContext(ctx, &audits, query); err != nil {
		return nil, err
	}
	return audits, nil
}

// UpdateStatus moves the audit to a new status, guarded by the expected
// current status so concurrent transitions cannot both win.
func (r *AuditRepository) UpdateStatus(ctx context.Context, id string, from, to domain.AuditStatus, completedBy *string) error {
	query := `
		UPDATE inventory_audits
		SET status = $3,
			completed_by = COALESCE($4, completed_by),
			started_at = CASE WHEN $3 = 'in_progress' THEN NOW() ELSE started_at END,
			completed_at = CASE WHEN $3 IN ('completed', 'cancelled') THEN NOW() ELSE completed_at END
		WHERE id = $1 AND status = $2
	`
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, id, from, to, completedBy)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.InvalidTransition(string(from), string(to))
	}
	return nil
}

// CreateItem inserts one snapshot line.
func (r *AuditRepository) CreateItem(ctx context.Context, item *InventoryAuditItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	query := `
		INSERT INTO inventory_audit_items (id, audit_id, item_kind, item_id, item_name, unit, expected_quantity, cost_per_unit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		item.ID, item.AuditID, item.ItemKind, item.ItemID, item.ItemName,
		item.Unit, item.ExpectedQuantity, item.CostPerUnit,
	)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// GetItem returns one audit line.
func (r *AuditRepository) GetItem(ctx context.Context, auditID, itemLineID string) (*InventoryAuditItem, error) {
	var item InventoryAuditItem
	query := `SELECT * FROM inventory_audit_items WHERE id = $1 AND audit_id = $2`
	if err := r.db.Executor(ctx).GetContext(ctx, &item, query, itemLineID, auditID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("audit item")
		}
		return nil, err
	}
	return &item, nil
}

// ListItems returns all lines of an audit in a stable order.
func (r *AuditRepository) ListItems(ctx context.Context, auditID string) ([]*InventoryAuditItem, error) {
	var items []*InventoryAuditItem
	query := `SELECT * FROM inventory_audit_items WHERE audit_id = $1 ORDER BY item_kind, item_id`
	if err := r.db.Executor(ctx).SelectContext(ctx, &items, query, auditID); err != nil {
		return nil, err
	}
	return items, nil
}

// RecordCount stores an actual quantity on a line and derives the difference
// columns. Recounts simply overwrite; AppendHistory keeps the trail.
func (r *AuditRepository) RecordCount(ctx context.Context, itemLineID string, actual decimal.Decimal, notes *string, countedBy string) error {
	query := `
		UPDATE inventory_audit_items
		SET actual_quantity = $2,
			difference = $2 - expected_quantity,
			difference_cost = ($2 - expected_quantity) * cost_per_unit,
			notes = COALESCE($3, notes),
			counted_by = $4,
			counted_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, itemLineID, actual, notes, countedBy)
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
		return errors.NotFound("audit item")
	}
	return nil
}

// AppendHistory records one count event for a line.
func (r *AuditRepository) AppendHistory(ctx context.Context, h *AuditItemHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	query := `
		INSERT INTO inventory_audit_item_history (id, audit_item_id, old_quantity, new_quantity, counted_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.Executor(ctx).GetContext(ctx, &h.CreatedAt, query,
		h.ID, h.AuditItemID, h.OldQuantity, h.NewQuantity, h.CountedBy,
	)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// ListItemHistory returns the count trail of a line, oldest first.
func (r *AuditRepository) ListItemHistory(ctx context.Context, itemLineID string) ([]*AuditItemHistory, error) {
	var history []*AuditItemHistory
	query := `SELECT * FROM inventory_audit_item_history WHERE audit_item_id = $1 ORDER BY created_at ASC`
	if err := r.db.Executor(ctx).SelectContext(ctx, &history, query, itemLineID); err != nil {
		return nil, err
	}
	return history, nil
}

// CountUncounted returns how many lines still have no recorded count.
func (r *AuditRepository) CountUncounted(ctx context.Context, auditID string) (int64, error) {
	var n int64
	query := `SELECT COUNT(*) FROM inventory_audit_items WHERE audit_id = $1 AND actual_quantity IS NULL`
	if err := r.db.Executor(ctx).GetContext(ctx, &n, query, auditID); err != nil {
		return 0, err
	}
	return n, nil
}
