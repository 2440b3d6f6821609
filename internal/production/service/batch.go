package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	invservice "github.com/craftline/craftline-backend/internal/inventory/service"
	"github.com/craftline/craftline-backend/internal/production/events"
	"github.com/craftline/craftline-backend/internal/production/repository"
	"github.com/craftline/craftline-backend/pkg/actor"
	"github.com/craftline/craftline-backend/pkg/database"
	"github.com/craftline/craftline-backend/pkg/errors"
	"github.com/craftline/craftline-backend/pkg/logger"
)

// CreateBatchRequest plans a new production run
type CreateBatchRequest struct {
	RecipeID     string          `json:"recipe_id" validate:"required,uuid"`
	Quantity     decimal.Decimal `json:"quantity" validate:"required"`
	Strategy     string          `json:"strategy" validate:"omitempty,oneof=average fifo lifo"`
	PlannedStart *time.Time      `json:"planned_start"`
	Notes        *string         `json:"notes"`
}

// CompleteBatchRequest finishes a production run
type CompleteBatchRequest struct {
	ActualQuantity decimal.Decimal `json:"actual_quantity" validate:"required"`
	Notes          *string         `json:"notes"`
}

// Shortage describes one component whose stock cannot cover a requirement
type Shortage struct {
	Component domain.ItemRef  `json:"component"`
	Required  decimal.Decimal `json:"required"`
	Available decimal.Decimal `json:"available"`
	Unit      string          `json:"unit"`
}

// AvailabilityResult is the answer to "can this recipe be produced right now"
type AvailabilityResult struct {
	CanProduce   bool                    `json:"can_produce"`
	Requirements []*ComponentRequirement `json:"requirements"`
	Shortages    []Shortage              `json:"shortages,omitempty"`
}

// BatchResult bundles a batch with its reservations and consumptions
type BatchResult struct {
	Batch        *repository.ProductionBatch        `json:"batch"`
	Reservations []*repository.ComponentReservation `json:"reservations,omitempty"`
	Consumptions []*repository.ComponentConsumption `json:"consumptions,omitempty"`
}

// BatchService drives the production batch state machine. It owns batch,
// reservation and consumption rows, and delegates every stock mutation to
// the inventory ledger.
type BatchService struct {
	db             *database.DB
	batchRepo      *repository.BatchRepository
	recipeRepo     *repository.RecipeRepository
	expander       *RecipeExpander
	ledger         *invservice.LedgerService
	converter      QuantityConverter
	items          domain.ItemLookup
	batchLocks     *invservice.KeyedLocker
	publisher      *events.BatchEventPublisher
	clock          domain.Clock
	reservationTTL time.Duration
	logger         *logger.Logger
}

// NewBatchService creates a new batch service
func NewBatchService(
	db *database.DB,
	batchRepo *repository.BatchRepository,
	recipeRepo *repository.RecipeRepository,
	expander *RecipeExpander,
	ledger *invservice.LedgerService,
	converter QuantityConverter,
	items domain.ItemLookup,
	publisher *events.BatchEventPublisher,
	clock domain.Clock,
	reservationTTL time.Duration,
	log *logger.Logger,
) *BatchService {
	return &BatchService{
		db:             db,
		batchRepo:      batchRepo,
		recipeRepo:     recipeRepo,
		expander:       expander,
		ledger:         ledger,
		converter:      converter,
		items:          items,
		batchLocks:     invservice.NewKeyedLocker(),
		publisher:      publisher,
		clock:          clock,
		reservationTTL: reservationTTL,
		logger:         log,
	}
}

// CreateBatch plans a run. No stock is reserved or consumed yet.
func (s *BatchService) CreateBatch(ctx context.Context, req *CreateBatchRequest) (*repository.ProductionBatch, error) {
	if !req.Quantity.IsPositive() {
		return nil, errors.InvalidQuantity("planned quantity must be positive")
	}
	recipe, err := s.recipeRepo.GetByID(ctx, req.RecipeID)
	if err != nil {
		return nil, err
	}
	if !recipe.IsActive {
		return nil, errors.BadRequest("recipe " + recipe.ID + " is inactive")
	}

	strategy := s.ledger.DefaultStrategy()
	if req.Strategy != "" {
		strategy, err = domain.ParseCostStrategy(req.Strategy)
		if err != nil {
			return nil, err
		}
	}
	who := actor.FromContextOrSystem(ctx)

	batch := &repository.ProductionBatch{
		RecipeID:        recipe.ID,
		Status:          repository.BatchStatusPlanned,
		Strategy:        strategy,
		PlannedQuantity: req.Quantity,
		Notes:           req.Notes,
		PlannedStart:    req.PlannedStart,
		CreatedBy:       who.ID,
	}
	if err := s.batchRepo.Create(ctx, batch); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Str("recipe_id", recipe.ID).
		Str("planned_quantity", req.Quantity.String()).
		Msg("production batch created")
	s.publisher.PublishBatchCreated(ctx, batch.ID, recipe.ID, req.Quantity, who.ID)
	return batch, nil
}

// CheckAvailability expands the recipe and nets current balances against
// unexpired reservations held by other batches. Expired reservations are
// purged here; there is no background sweeper.
func (s *BatchService) CheckAvailability(ctx context.Context, recipeID string, quantity decimal.Decimal) (*AvailabilityResult, error) {
	recipe, err := s.recipeRepo.GetByID(ctx, recipeID)
	if err != nil {
		return nil, err
	}

	requirements, err := s.expander.ExpandRecursive(ctx, recipe, quantity)
	if err != nil {
		return nil, err
	}

	refs := make([]domain.ItemRef, len(requirements))
	for i, req := range requirements {
		refs[i] = req.Component
	}
	unlock := s.ledger.Locks().LockAll(refs)
	defer unlock()

	result, err := s.availabilityLocked(ctx, requirements, "")
	if err != nil {
		return nil, err
	}
	return result, nil
}

// availabilityLocked computes shortages. Callers hold the component locks.
func (s *BatchService) availabilityLocked(ctx context.Context, requirements []*ComponentRequirement, excludeBatchID string) (*AvailabilityResult, error) {
	now := s.clock.Now()
	if _, err := s.batchRepo.PurgeExpiredReservations(ctx, now); err != nil {
		return nil, err
	}

	result := &AvailabilityResult{CanProduce: true, Requirements: requirements}
	for _, req := range requirements {
		balance, err := s.ledger.GetBalance(ctx, req.Component)
		if err != nil {
			return nil, err
		}
		reserved, err := s.batchRepo.SumActiveReservations(ctx, req.Component, now, excludeBatchID)
		if err != nil {
			return nil, err
		}
		available := balance.TotalQuantity.Sub(reserved)
		if req.Quantity.GreaterThan(available) {
			result.CanProduce = false
			result.Shortages = append(result.Shortages, Shortage{
				Component: req.Component,
				Required:  req.Quantity,
				Available: available,
				Unit:      req.Unit,
			})
		}
	}
	return result, nil
}

// StartProduction moves a planned batch into progress, reserving every
// expanded component under one sorted multi-item lock. On any shortage the
// batch stays planned and nothing is reserved.
func (s *BatchService) StartProduction(ctx context.Context, batchID string) (*BatchResult, error) {
	unlockBatch := s.batchLocks.Lock(batchID)
	defer unlockBatch()

	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != repository.BatchStatusPlanned {
		return nil, errors.InvalidTransition(string(batch.Status), string(repository.BatchStatusInProgress))
	}
	recipe, err := s.recipeRepo.GetByID(ctx, batch.RecipeID)
	if err != nil {
		return nil, err
	}

	requirements, err := s.expander.ExpandRecursive(ctx, recipe, batch.PlannedQuantity)
	if err != nil {
		return nil, err
	}

	refs := make([]domain.ItemRef, len(requirements))
	for i, req := range requirements {
		refs[i] = req.Component
	}
	unlock := s.ledger.Locks().LockAll(refs)
	defer unlock()

	availability, err := s.availabilityLocked(ctx, requirements, batch.ID)
	if err != nil {
		return nil, err
	}
	if !availability.CanProduce {
		return nil, errors.InsufficientComponents(shortageMessage(availability.Shortages))
	}

	expiresAt := s.clock.Now().Add(s.reservationTTL)
	var reservations []*repository.ComponentReservation
	err = s.db.WithTx(ctx, func(txCtx context.Context) error {
		for _, req := range requirements {
			res := &repository.ComponentReservation{
				BatchID:       batch.ID,
				ComponentKind: req.Component.Kind,
				ComponentID:   req.Component.ID,
				Quantity:      req.Quantity,
				WasteQuantity: req.WasteQuantity,
				Unit:          req.Unit,
				ExpiresAt:     expiresAt,
			}
			if err := s.batchRepo.CreateReservation(txCtx, res); err != nil {
				return err
			}
			reservations = append(reservations, res)
		}
		return s.batchRepo.UpdateStatus(txCtx, batch.ID, repository.BatchStatusPlanned, repository.BatchStatusInProgress, nil)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Int("reservations", len(reservations)).
		Msg("production started")
	s.publisher.PublishBatchStarted(ctx, batch.ID, batch.RecipeID, len(reservations))

	batch.Status = repository.BatchStatusInProgress
	return &BatchResult{Batch: batch, Reservations: reservations}, nil
}

// CompleteProduction consumes the reserved components through the ledger,
// records per-lot consumptions, costs the run, and stocks the output item at
// its computed unit cost.
func (s *BatchService) CompleteProduction(ctx context.Context, batchID string, req *CompleteBatchRequest) (*BatchResult, error) {
	if !req.ActualQuantity.IsPositive() {
		return nil, errors.InvalidQuantity("actual quantity must be positive")
	}
	who := actor.FromContextOrSystem(ctx)

	unlockBatch := s.batchLocks.Lock(batchID)
	defer unlockBatch()

	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != repository.BatchStatusInProgress {
		return nil, errors.InvalidTransition(string(batch.Status), string(repository.BatchStatusCompleted))
	}
	recipe, err := s.recipeRepo.GetByID(ctx, batch.RecipeID)
	if err != nil {
		return nil, err
	}
	reservations, err := s.batchRepo.ListReservations(ctx, batchID)
	if err != nil {
		return nil, err
	}

	refs := make([]domain.ItemRef, 0, len(reservations)+1)
	for _, res := range reservations {
		refs = append(refs, res.ComponentRef())
	}
	refs = append(refs, recipe.OutputRef())
	unlock := s.ledger.Locks().LockAll(refs)
	defer unlock()

	outputUnit := recipe.OutputUnit
	if descriptor, err := s.items.Lookup(ctx, recipe.OutputRef()); err == nil && descriptor.Unit != "" {
		outputUnit = descriptor.Unit
	}
	outputQuantity, err := s.converter.Convert(ctx, recipe.OutputRef(), req.ActualQuantity, recipe.OutputUnit, outputUnit)
	if err != nil {
		return nil, err
	}

	note := "production batch " + batch.ID
	var consumptions []*repository.ComponentConsumption
	materialCost := decimal.Zero

	err = s.db.WithTx(ctx, func(txCtx context.Context) error {
		for _, res := range reservations {
			draws, err := s.ledger.RemoveStockLocked(txCtx, res.ComponentRef(), res.Quantity, batch.Strategy, &note)
			if err != nil {
				return err
			}
			for _, draw := range draws {
				waste := decimal.Zero
				if res.Quantity.IsPositive() {
					waste = res.WasteQuantity.Mul(draw.Quantity.Div(res.Quantity))
				}
				cons := &repository.ComponentConsumption{
					BatchID:       batch.ID,
					ComponentKind: res.ComponentKind,
					ComponentID:   res.ComponentID,
					LotID:         draw.LotID,
					Quantity:      draw.Quantity,
					PricePerUnit:  draw.PricePerUnit,
					Unit:          res.Unit,
					WasteQuantity: waste,
				}
				if err := s.batchRepo.CreateConsumption(txCtx, cons); err != nil {
					return err
				}
				consumptions = append(consumptions, cons)
				materialCost = materialCost.Add(draw.Cost())
			}
		}

		if err := s.batchRepo.DeleteReservations(txCtx, batch.ID); err != nil {
			return err
		}

		additionalCosts := decimal.Zero
		for _, rate := range recipe.CostRates {
			additionalCosts = additionalCosts.Add(rate.RatePerUnit.Mul(req.ActualQuantity)).Add(rate.FixedRate)
		}
		unitCost := materialCost.Add(additionalCosts).Div(outputQuantity)

		if err := s.batchRepo.Complete(txCtx, batch.ID, req.ActualQuantity, unitCost, materialCost, additionalCosts, req.Notes, who.ID); err != nil {
			return err
		}

		_, err := s.ledger.AddStockLocked(txCtx, recipe.OutputRef(), outputQuantity, unitCost, outputUnit, &note)
		if err != nil {
			return err
		}

		batch.Status = repository.BatchStatusCompleted
		batch.ActualQuantity = decimal.NewNullDecimal(req.ActualQuantity)
		batch.UnitCost = decimal.NewNullDecimal(unitCost)
		batch.TotalMaterialCost = decimal.NewNullDecimal(materialCost)
		batch.AdditionalCosts = decimal.NewNullDecimal(additionalCosts)
		batch.CompletedBy = &who.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("batch_id", batch.ID).
		Str("actual_quantity", req.ActualQuantity.String()).
		Str("unit_cost", batch.UnitCost.Decimal.String()).
		Msg("production completed")
	s.publisher.PublishBatchCompleted(ctx, batch.ID, batch.RecipeID, req.ActualQuantity,
		batch.UnitCost.Decimal, materialCost, who.ID)

	return &BatchResult{Batch: batch, Consumptions: consumptions}, nil
}

// CancelProduction abandons a planned or in-progress batch, releasing every
// reservation without consuming stock.
func (s *BatchService) CancelProduction(ctx context.Context, batchID, reason string) (*repository.ProductionBatch, error) {
	unlockBatch := s.batchLocks.Lock(batchID)
	defer unlockBatch()

	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status.Terminal() {
		return nil, errors.InvalidTransition(string(batch.Status), string(repository.BatchStatusCancelled))
	}

	err = s.db.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.batchRepo.DeleteReservations(txCtx, batch.ID); err != nil {
			return err
		}
		return s.batchRepo.UpdateStatus(txCtx, batch.ID, batch.Status, repository.BatchStatusCancelled, &reason)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("batch_id", batch.ID).Str("reason", reason).Msg("production cancelled")
	s.publisher.PublishBatchCancelled(ctx, batch.ID, reason)

	batch.Status = repository.BatchStatusCancelled
	batch.CancelReason = &reason
	return batch, nil
}

// ReportFailure marks an in-progress batch failed after an external failure
// report such as spoilage. Reserved stock is released, nothing is consumed.
func (s *BatchService) ReportFailure(ctx context.Context, batchID, reason string) (*repository.ProductionBatch, error) {
	unlockBatch := s.batchLocks.Lock(batchID)
	defer unlockBatch()

	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != repository.BatchStatusInProgress {
		return nil, errors.InvalidTransition(string(batch.Status), string(repository.BatchStatusFailed))
	}

	err = s.db.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.batchRepo.DeleteReservations(txCtx, batch.ID); err != nil {
			return err
		}
		return s.batchRepo.UpdateStatus(txCtx, batch.ID, repository.BatchStatusInProgress, repository.BatchStatusFailed, &reason)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn().Str("batch_id", batch.ID).Str("reason", reason).Msg("production failed")
	s.publisher.PublishBatchFailed(ctx, batch.ID, reason)

	batch.Status = repository.BatchStatusFailed
	batch.CancelReason = &reason
	return batch, nil
}

// EstimateProductionTime scales the recipe's production time to the target
// quantity. Informational only.
func (s *BatchService) EstimateProductionTime(ctx context.Context, recipeID string, quantity decimal.Decimal) (time.Duration, error) {
	if !quantity.IsPositive() {
		return 0, errors.InvalidQuantity("quantity must be positive")
	}
	recipe, err := s.recipeRepo.GetByID(ctx, recipeID)
	if err != nil {
		return 0, err
	}
	if !recipe.OutputQuantity.IsPositive() {
		return 0, errors.BadRequest("recipe " + recipe.ID + " has a non-positive output quantity")
	}

	minutes := decimal.NewFromInt(int64(recipe.ProductionTimeMinutes)).
		Mul(quantity.Div(recipe.OutputQuantity))
	return time.Duration(minutes.Mul(decimal.NewFromInt(int64(time.Minute))).IntPart()), nil
}

// GetBatch returns a batch with its reservations and consumptions.
func (s *BatchService) GetBatch(ctx context.Context, batchID string) (*BatchResult, error) {
	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	reservations, err := s.batchRepo.ListReservations(ctx, batchID)
	if err != nil {
		return nil, err
	}
	consumptions, err := s.batchRepo.ListConsumptions(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return &BatchResult{Batch: batch, Reservations: reservations, Consumptions: consumptions}, nil
}

// ListBatches returns batches, optionally filtered by status.
func (s *BatchService) ListBatches(ctx context.Context, status *repository.BatchStatus) ([]*repository.ProductionBatch, error) {
	return s.batchRepo.List(ctx, status)
}

func shortageMessage(shortages []Shortage) string {
	msg := "insufficient components:"
	for _, sh := range shortages {
		msg += " " + sh.Component.Key() + " requires " + sh.Required.String() +
			" " + sh.Unit + " but only " + sh.Available.String() + " available;"
	}
	return msg
}
