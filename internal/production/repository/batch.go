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

// BatchStatus is the lifecycle state of a production batch.
type BatchStatus string

const (
	BatchStatusPlanned    BatchStatus = "planned"
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusCancelled  BatchStatus = "cancelled"
	BatchStatusFailed     BatchStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusCancelled || s == BatchStatusFailed
}

// ProductionBatch is one manufacturing run of a recipe.
type ProductionBatch struct {
	ID                string              `db:"id" json:"id"`
	RecipeID          string              `db:"recipe_id" json:"recipe_id"`
	Status            BatchStatus         `db:"status" json:"status"`
	Strategy          domain.CostStrategy `db:"strategy" json:"strategy"`
	PlannedQuantity   decimal.Decimal     `db:"planned_quantity" json:"planned_quantity"`
	ActualQuantity    decimal.NullDecimal `db:"actual_quantity" json:"actual_quantity"`
	UnitCost          decimal.NullDecimal `db:"unit_cost" json:"unit_cost"`
	TotalMaterialCost decimal.NullDecimal `db:"total_material_cost" json:"total_material_cost"`
	AdditionalCosts   decimal.NullDecimal `db:"additional_costs" json:"additional_costs"`
	Notes             *string             `db:"notes" json:"notes,omitempty"`
	CancelReason      *string             `db:"cancel_reason" json:"cancel_reason,omitempty"`
	PlannedStart      *time.Time          `db:"planned_start" json:"planned_start,omitempty"`
	StartedAt         *time.Time          `db:"started_at" json:"started_at,omitempty"`
	CompletedAt       *time.Time          `db:"completed_at" json:"completed_at,omitempty"`
	CreatedBy         string              `db:"created_by" json:"created_by"`
	CompletedBy       *string             `db:"completed_by" json:"completed_by,omitempty"`
	CreatedAt         time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at" json:"updated_at"`
}

// ComponentReservation is a soft hold on component stock for a started
// batch. It never decrements balances; availability checks net unexpired
// reservations out of what other batches may promise.
type ComponentReservation struct {
	ID            string          `db:"id" json:"id"`
	BatchID       string          `db:"batch_id" json:"batch_id"`
	ComponentKind domain.ItemKind `db:"component_kind" json:"component_kind"`
	ComponentID   string          `db:"component_id" json:"component_id"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	WasteQuantity decimal.Decimal `db:"waste_quantity" json:"waste_quantity"`
	Unit          string          `db:"unit" json:"unit"`
	ExpiresAt     time.Time       `db:"expires_at" json:"expires_at"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// ComponentRef returns the reserved component's item reference.
func (r *ComponentReservation) ComponentRef() domain.ItemRef {
	return domain.ItemRef{Kind: r.ComponentKind, ID: r.ComponentID}
}

// ComponentConsumption records actual stock drawn from one lot during
// production. A single component requirement spanning several lots produces
// one row per lot.
type ComponentConsumption struct {
	ID            string          `db:"id" json:"id"`
	BatchID       string          `db:"batch_id" json:"batch_id"`
	ComponentKind domain.ItemKind `db:"component_kind" json:"component_kind"`
	ComponentID   string          `db:"component_id" json:"component_id"`
	LotID         string          `db:"lot_id" json:"lot_id"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	PricePerUnit  decimal.Decimal `db:"price_per_unit" json:"price_per_unit"`
	Unit          string          `db:"unit" json:"unit"`
	WasteQuantity decimal.Decimal `db:"waste_quantity" json:"waste_quantity"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// BatchRepository handles production batch persistence
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch repository
func NewBatchRepository(db *database.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts a batch in planned state.
func (r *BatchRepository) Create(ctx context.Context, batch *ProductionBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	query := `
		INSERT INTO production_batches (id, recipe_id, status, strategy, planned_quantity, notes, planned_start, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	row := r.db.Executor(ctx).QueryRowxContext(ctx, query,
		batch.ID, batch.RecipeID, batch.Status, batch.Strategy, batch.PlannedQuantity,
		batch.Notes, batch.PlannedStart, batch.CreatedBy,
	)
	if err := row.Scan(&batch.CreatedAt, &batch.UpdatedAt); err != nil {
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// GetByID returns a batch.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*ProductionBatch, error) {
	var batch ProductionBatch
	query := `SELECT * FROM production_batches WHERE id = $1`
	if err := r.db.Executor(ctx).GetContext(ctx, &batch, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("production batch")
		}
		return nil, err
	}
	return &batch, nil
}

// List returns batches newest first, optionally filtered by status.
func (r *BatchRepository) List(ctx context.Context, status *BatchStatus) ([]*ProductionBatch, error) {
	var batches []*ProductionBatch
	if status != nil {
		query := `SELECT * FROM production_batches WHERE status = $1 ORDER BY created_at DESC`
		if err := r.db.Executor(ctx).SelectContext(ctx, &batches, query, *status); err != nil {
			return nil, err
		}
		return batches, nil
	}
	query := `SELECT * FROM production_batches ORDER BY created_at DESC`
	if err := r.db.Executor(ctx).SelectContext(ctx, &batches, query); err != nil {
		return nil, err
	}
	return batches, nil
}

// UpdateStatus transitions a batch, guarded by the expected current status.
// A zero affected-row count means another caller transitioned it first.
func (r *BatchRepository) UpdateStatus(ctx context.Context, id string, from, to BatchStatus, reason *string) error {
	query := `
		UPDATE production_batches
		SET status = $3,
			cancel_reason = COALESCE($4, cancel_reason),
			started_at = CASE WHEN $3 = 'in_progress' THEN NOW() ELSE started_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
	`
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, id, from, to, reason)
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

// Complete finalizes a batch with its actual output and costs. Guarded on
// in_progress so a second completion attempt fails instead of double
// counting.
func (r *BatchRepository) Complete(ctx context.Context, id string, actual, unitCost, materialCost, additionalCosts decimal.Decimal, notes *string, completedBy string) error {
	query := `
		UPDATE production_batches
		SET status = 'completed',
			actual_quantity = $2,
			unit_cost = $3,
			total_material_cost = $4,
			additional_costs = $5,
			notes = COALESCE($6, notes),
			completed_by = $7,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`
	result, err := r.db.Executor(ctx).ExecContext(ctx, query, id, actual, unitCost, materialCost, additionalCosts, notes, completedBy)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.InvalidTransition("completed or untracked", string(BatchStatusCompleted))
	}
	return nil
}

// CreateReservation inserts a component reservation.
func (r *BatchRepository) CreateReservation(ctx context.Context, res *ComponentReservation) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	query := `
		INSERT INTO component_reservations (id, batch_id, component_kind, component_id, quantity, waste_quantity, unit, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.db.Executor(ctx).GetContext(ctx, &res.CreatedAt, query,
		res.ID, res.BatchID, res.ComponentKind, res.ComponentID,
		res.Quantity, res.WasteQuantity, res.Unit, res.ExpiresAt,
	)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// ListReservations returns a batch's reservations.
func (r *BatchRepository) ListReservations(ctx context.Context, batchID string) ([]*ComponentReservation, error) {
	var reservations []*ComponentReservation
	query := `SELECT * FROM component_reservations WHERE batch_id = $1 ORDER BY component_kind, component_id`
	if err := r.db.Executor(ctx).SelectContext(ctx, &reservations, query, batchID); err != nil {
		return nil, err
	}
	return reservations, nil
}

// DeleteReservations releases all reservations of a batch.
func (r *BatchRepository) DeleteReservations(ctx context.Context, batchID string) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM component_reservations WHERE batch_id = $1`, batchID)
	return err
}

// SumActiveReservations returns the quantity of an item held by unexpired
// reservations, excluding a batch's own holds when excludeBatchID is set.
func (r *BatchRepository) SumActiveReservations(ctx context.Context, ref domain.ItemRef, now time.Time, excludeBatchID string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	query := `
		SELECT SUM(quantity) FROM component_reservations
		WHERE component_kind = $1 AND component_id = $2 AND expires_at > $3 AND batch_id <> $4
	`
	if err := r.db.Executor(ctx).GetContext(ctx, &sum, query, ref.Kind, ref.ID, now, excludeBatchID); err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// PurgeExpiredReservations removes reservations past their expiry. Called
// opportunistically from availability checks; there is no background sweeper.
func (r *BatchRepository) PurgeExpiredReservations(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`DELETE FROM component_reservations WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CreateConsumption records one lot draw for a batch.
func (r *BatchRepository) CreateConsumption(ctx context.Context, cons *ComponentConsumption) error {
	if cons.ID == "" {
		cons.ID = uuid.New().String()
	}
	query := `
		INSERT INTO component_consumptions (id, batch_id, component_kind, component_id, lot_id, quantity, price_per_unit, unit, waste_quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := r.db.Executor(ctx).GetContext(ctx, &cons.CreatedAt, query,
		cons.ID, cons.BatchID, cons.ComponentKind, cons.ComponentID, cons.LotID,
		cons.Quantity, cons.PricePerUnit, cons.Unit, cons.WasteQuantity,
	)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// ListConsumptions returns a batch's lot draws.
func (r *BatchRepository) ListConsumptions(ctx context.Context, batchID string) ([]*ComponentConsumption, error) {
	var consumptions []*ComponentConsumption
	query := `SELECT * FROM component_consumptions WHERE batch_id = $1 ORDER BY created_at, id`
	if err := r.db.Executor(ctx).SelectContext(ctx, &consumptions, query, batchID); err != nil {
		return nil, err
	}
	return consumptions, nil
}
