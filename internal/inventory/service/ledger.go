package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/inventory/events"
	"github.com/craftline/craftline-backend/internal/inventory/repository"
	"github.com/craftline/craftline-backend/pkg/actor"
	"github.com/craftline/craftline-backend/pkg/database"
	"github.com/craftline/craftline-backend/pkg/errors"
	"github.com/craftline/craftline-backend/pkg/logger"
)

// AddStockRequest represents an incoming stock delivery
type AddStockRequest struct {
	ItemKind     string          `json:"item_kind" validate:"required"`
	ItemID       string          `json:"item_id" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity" validate:"required"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Unit         string          `json:"unit"`
	ReceivedAt   *time.Time      `json:"received_at"`
	Note         *string         `json:"note"`
}

// RemoveStockRequest represents a stock draw-down
type RemoveStockRequest struct {
	ItemKind string          `json:"item_kind" validate:"required"`
	ItemID   string          `json:"item_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity" validate:"required"`
	Strategy string          `json:"strategy" validate:"omitempty,oneof=average fifo lifo"`
	Note     *string         `json:"note"`
}

// AdjustStockRequest represents a reconciliation adjustment
type AdjustStockRequest struct {
	ItemKind     string          `json:"item_kind" validate:"required"`
	ItemID       string          `json:"item_id" validate:"required"`
	Delta        decimal.Decimal `json:"delta" validate:"required"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Note         string          `json:"note" validate:"required"`
}

// LedgerService owns all stock mutations. Every quantity or cost change on
// an item goes through here, under that item's lock, inside one transaction.
type LedgerService struct {
	db              *database.DB
	balanceRepo     *repository.BalanceRepository
	lotRepo         *repository.LotRepository
	txnRepo         *repository.TransactionRepository
	items           domain.ItemLookup
	converter       *UnitConverter
	locks           *ItemLocker
	publisher       *events.StockEventPublisher
	clock           domain.Clock
	defaultStrategy domain.CostStrategy
	logger          *logger.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	db *database.DB,
	balanceRepo *repository.BalanceRepository,
	lotRepo *repository.LotRepository,
	txnRepo *repository.TransactionRepository,
	items domain.ItemLookup,
	converter *UnitConverter,
	locks *ItemLocker,
	publisher *events.StockEventPublisher,
	clock domain.Clock,
	defaultStrategy domain.CostStrategy,
	log *logger.Logger,
) *LedgerService {
	return &LedgerService{
		db:              db,
		balanceRepo:     balanceRepo,
		lotRepo:         lotRepo,
		txnRepo:         txnRepo,
		items:           items,
		converter:       converter,
		locks:           locks,
		publisher:       publisher,
		clock:           clock,
		defaultStrategy: defaultStrategy,
		logger:          log,
	}
}

// Locks exposes the item locker so the batch engine can hold the same locks
// across multi-item operations.
func (s *LedgerService) Locks() *ItemLocker {
	return s.locks
}

// DefaultStrategy returns the configured consumption strategy.
func (s *LedgerService) DefaultStrategy() domain.CostStrategy {
	return s.defaultStrategy
}

// AddStock receives a delivery: a new lot, an incoming transaction, and a
// balance update folding the delivery into the weighted average price.
func (s *LedgerService) AddStock(ctx context.Context, req *AddStockRequest) (*repository.InventoryLot, error) {
	ref, err := parseRef(req.ItemKind, req.ItemID)
	if err != nil {
		return nil, err
	}
	if !req.Quantity.IsPositive() {
		return nil, errors.InvalidQuantity("quantity must be positive")
	}
	if req.PricePerUnit.IsNegative() {
		return nil, errors.InvalidQuantity("price per unit cannot be negative")
	}

	item, err := s.items.Lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !item.Active {
		return nil, errors.BadRequest("item " + ref.Key() + " is inactive")
	}
	unit := req.Unit
	if unit == "" {
		unit = item.Unit
	}

	receivedAt := s.clock.Now()
	if req.ReceivedAt != nil {
		receivedAt = *req.ReceivedAt
	}
	who := actor.FromContextOrSystem(ctx)

	unlock := s.locks.Lock(ref)
	defer unlock()

	quantity := req.Quantity
	pricePerUnit := req.PricePerUnit
	var lot *repository.InventoryLot
	var newBalance *repository.InventoryBalance
	err = s.db.WithTx(ctx, func(txCtx context.Context) error {
		balance, err := s.getOrZeroBalance(txCtx, ref, unit)
		if err != nil {
			return err
		}

		// Deliveries arriving in a different unit than the stock is kept in
		// are converted before they touch the books. The price moves
		// inversely to the quantity so the delivery's total cost is
		// preserved.
		stockUnit := balance.Unit
		if stockUnit == "" {
			stockUnit = item.Unit
		}
		if stockUnit != "" && unit != stockUnit {
			converted, err := s.converter.Convert(txCtx, ref, quantity, unit, stockUnit)
			if err != nil {
				return err
			}
			pricePerUnit = pricePerUnit.Mul(quantity).Div(converted)
			quantity = converted
			unit = stockUnit
		}

		lot = &repository.InventoryLot{
			ItemKind:          ref.Kind,
			ItemID:            ref.ID,
			QuantityReceived:  quantity,
			QuantityRemaining: quantity,
			PricePerUnit:      pricePerUnit,
			Unit:              unit,
			ReceivedAt:        receivedAt,
		}
		if err := s.lotRepo.Create(txCtx, lot); err != nil {
			return err
		}

		txn := &repository.InventoryTransaction{
			ItemKind:     ref.Kind,
			ItemID:       ref.ID,
			Type:         domain.TransactionIncoming,
			Quantity:     quantity,
			PricePerUnit: pricePerUnit,
			Unit:         unit,
			LotID:        &lot.ID,
			ActorID:      who.ID,
			ActorName:    who.Name,
			Note:         req.Note,
		}
		if err := s.txnRepo.Create(txCtx, txn); err != nil {
			return err
		}

		balance.AveragePrice = weightedAverage(balance.TotalQuantity, balance.AveragePrice, quantity, pricePerUnit)
		balance.TotalQuantity = balance.TotalQuantity.Add(quantity)
		balance.Unit = unit
		if err := s.balanceRepo.Upsert(txCtx, balance); err != nil {
			return err
		}
		newBalance = balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("item", ref.Key()).
		Str("lot_id", lot.ID).
		Str("quantity", quantity.String()).
		Msg("stock added")
	s.publisher.PublishStockAdded(ctx, ref, lot.ID, quantity, pricePerUnit, unit,
		newBalance.TotalQuantity, newBalance.AveragePrice, who.ID)
	return lot, nil
}

// RemoveStock draws quantity out of an item's lots in strategy order,
// appending one outgoing transaction per lot touched at that lot's purchase
// price. The average price never changes on removal. All-or-nothing: when
// stock does not cover the request, nothing is persisted.
func (s *LedgerService) RemoveStock(ctx context.Context, req *RemoveStockRequest) ([]LotDraw, error) {
	ref, err := parseRef(req.ItemKind, req.ItemID)
	if err != nil {
		return nil, err
	}
	if !req.Quantity.IsPositive() {
		return nil, errors.InvalidQuantity("quantity must be positive")
	}
	strategy := s.defaultStrategy
	if req.Strategy != "" {
		strategy, err = domain.ParseCostStrategy(req.Strategy)
		if err != nil {
			return nil, err
		}
	}
	who := actor.FromContextOrSystem(ctx)

	unlock := s.locks.Lock(ref)
	defer unlock()

	draws, newBalance, err := s.removeLocked(ctx, ref, req.Quantity, strategy, req.Note, who)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("item", ref.Key()).
		Str("quantity", req.Quantity.String()).
		Int("lots_drawn", len(draws)).
		Msg("stock removed")
	s.publisher.PublishStockRemoved(ctx, ref, req.Quantity, len(draws), newBalance.TotalQuantity, who.ID)
	return draws, nil
}

// RemoveStockLocked is RemoveStock for callers that already hold the item's
// lock, such as the batch engine consuming several components under one
// sorted multi-item lock.
func (s *LedgerService) RemoveStockLocked(ctx context.Context, ref domain.ItemRef, quantity decimal.Decimal, strategy domain.CostStrategy, note *string) ([]LotDraw, error) {
	if !quantity.IsPositive() {
		return nil, errors.InvalidQuantity("quantity must be positive")
	}
	who := actor.FromContextOrSystem(ctx)
	draws, _, err := s.removeLocked(ctx, ref, quantity, strategy, note, who)
	return draws, err
}

// AddStockLocked is AddStock for callers that already hold the item's lock.
func (s *LedgerService) AddStockLocked(ctx context.Context, ref domain.ItemRef, quantity, pricePerUnit decimal.Decimal, unit string, note *string) (*repository.InventoryLot, error) {
	if !quantity.IsPositive() {
		return nil, errors.InvalidQuantity("quantity must be positive")
	}
	who := actor.FromContextOrSystem(ctx)

	var lot *repository.InventoryLot
	err := s.db.WithTx(ctx, func(txCtx context.Context) error {
		balance, err := s.getOrZeroBalance(txCtx, ref, unit)
		if err != nil {
			return err
		}

		if balance.Unit != "" && unit != balance.Unit {
			converted, err := s.converter.Convert(txCtx, ref, quantity, unit, balance.Unit)
			if err != nil {
				return err
			}
			pricePerUnit = pricePerUnit.Mul(quantity).Div(converted)
			quantity = converted
			unit = balance.Unit
		}

		lot = &repository.InventoryLot{
			ItemKind:          ref.Kind,
			ItemID:            ref.ID,
			QuantityReceived:  quantity,
			QuantityRemaining: quantity,
			PricePerUnit:      pricePerUnit,
			Unit:              unit,
			ReceivedAt:        s.clock.Now(),
		}
		if err := s.lotRepo.Create(txCtx, lot); err != nil {
			return err
		}

		txn := &repository.InventoryTransaction{
			ItemKind:     ref.Kind,
			ItemID:       ref.ID,
			Type:         domain.TransactionIncoming,
			Quantity:     quantity,
			PricePerUnit: pricePerUnit,
			Unit:         unit,
			LotID:        &lot.ID,
			ActorID:      who.ID,
			ActorName:    who.Name,
			Note:         note,
		}
		if err := s.txnRepo.Create(txCtx, txn); err != nil {
			return err
		}

		balance.AveragePrice = weightedAverage(balance.TotalQuantity, balance.AveragePrice, quantity, pricePerUnit)
		balance.TotalQuantity = balance.TotalQuantity.Add(quantity)
		balance.Unit = unit
		return s.balanceRepo.Upsert(txCtx, balance)
	})
	if err != nil {
		return nil, err
	}
	return lot, nil
}

func (s *LedgerService) removeLocked(ctx context.Context, ref domain.ItemRef, quantity decimal.Decimal, strategy domain.CostStrategy, note *string, who *actor.Actor) ([]LotDraw, *repository.InventoryBalance, error) {
	var draws []LotDraw
	var newBalance *repository.InventoryBalance
	err := s.db.WithTx(ctx, func(txCtx context.Context) error {
		balance, err := s.balanceRepo.Get(txCtx, ref)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return errors.InsufficientStock("no stock for item " + ref.Key())
			}
			return err
		}
		if quantity.GreaterThan(balance.TotalQuantity) {
			return errors.InsufficientStock(
				"requested " + quantity.String() + " of " + ref.Key() + " but only " + balance.TotalQuantity.String() + " available")
		}

		lots, err := s.lotRepo.ListOpen(txCtx, ref, strategy)
		if err != nil {
			return err
		}

		remaining := quantity
		for _, lot := range lots {
			if !remaining.IsPositive() {
				break
			}
			take := decimal.Min(remaining, lot.QuantityRemaining)
			if err := s.lotRepo.Decrement(txCtx, lot.ID, take); err != nil {
				return err
			}

			lotID := lot.ID
			txn := &repository.InventoryTransaction{
				ItemKind:     ref.Kind,
				ItemID:       ref.ID,
				Type:         domain.TransactionOutgoing,
				Quantity:     take,
				PricePerUnit: lot.PricePerUnit,
				Unit:         balance.Unit,
				LotID:        &lotID,
				ActorID:      who.ID,
				ActorName:    who.Name,
				Note:         note,
			}
			if err := s.txnRepo.Create(txCtx, txn); err != nil {
				return err
			}

			draws = append(draws, LotDraw{LotID: lot.ID, Quantity: take, PricePerUnit: lot.PricePerUnit})
			remaining = remaining.Sub(take)
		}
		if remaining.IsPositive() {
			// Balance said enough but the lots did not cover it. The
			// transaction rolls back so no partial decrement survives.
			return errors.InsufficientStock("lots for item " + ref.Key() + " do not cover the requested quantity")
		}

		balance.TotalQuantity = balance.TotalQuantity.Sub(quantity)
		if err := s.balanceRepo.Upsert(txCtx, balance); err != nil {
			return err
		}
		newBalance = balance
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return draws, newBalance, nil
}

// Adjust posts a reconciliation adjustment: it moves the balance by delta
// without touching lots. A negative delta that exceeds the balance clamps to
// zero and records the shortfall in the transaction note rather than
// failing, since a physical count may reveal discrepancies that predate it.
func (s *LedgerService) Adjust(ctx context.Context, req *AdjustStockRequest) (*repository.InventoryBalance, error) {
	ref, err := parseRef(req.ItemKind, req.ItemID)
	if err != nil {
		return nil, err
	}
	if req.Delta.IsZero() {
		return nil, errors.InvalidQuantity("adjustment delta must be non-zero")
	}
	who := actor.FromContextOrSystem(ctx)

	unlock := s.locks.Lock(ref)
	defer unlock()

	balance, err := s.adjustLocked(ctx, ref, req.Delta, req.PricePerUnit, req.Note, who)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("item", ref.Key()).
		Str("delta", req.Delta.String()).
		Str("new_quantity", balance.TotalQuantity.String()).
		Msg("stock adjusted")
	s.publisher.PublishStockAdjusted(ctx, ref, req.Delta, balance.TotalQuantity, who.ID, req.Note)
	return balance, nil
}

// AdjustLocked is Adjust for callers that already hold the item's lock.
func (s *LedgerService) AdjustLocked(ctx context.Context, ref domain.ItemRef, delta, pricePerUnit decimal.Decimal, note string) (*repository.InventoryBalance, error) {
	if delta.IsZero() {
		return nil, errors.InvalidQuantity("adjustment delta must be non-zero")
	}
	return s.adjustLocked(ctx, ref, delta, pricePerUnit, note, actor.FromContextOrSystem(ctx))
}

func (s *LedgerService) adjustLocked(ctx context.Context, ref domain.ItemRef, delta, pricePerUnit decimal.Decimal, note string, who *actor.Actor) (*repository.InventoryBalance, error) {
	var result *repository.InventoryBalance
	err := s.db.WithTx(ctx, func(txCtx context.Context) error {
		balance, err := s.getOrZeroBalance(txCtx, ref, "")
		if err != nil {
			return err
		}

		applied := delta
		newQuantity := balance.TotalQuantity.Add(delta)
		if newQuantity.IsNegative() {
			shortfall := newQuantity.Neg()
			applied = balance.TotalQuantity.Neg()
			newQuantity = decimal.Zero
			note = note + " (clamped to zero, shortfall " + shortfall.String() + ")"
		}

		if applied.IsPositive() {
			balance.AveragePrice = weightedAverage(balance.TotalQuantity, balance.AveragePrice, applied, pricePerUnit)
		}
		balance.TotalQuantity = newQuantity

		txn := &repository.InventoryTransaction{
			ItemKind:     ref.Kind,
			ItemID:       ref.ID,
			Type:         domain.TransactionAdjustment,
			Quantity:     applied,
			PricePerUnit: pricePerUnit,
			Unit:         balance.Unit,
			ActorID:      who.ID,
			ActorName:    who.Name,
			Note:         &note,
		}
		if err := s.txnRepo.Create(txCtx, txn); err != nil {
			return err
		}

		if err := s.balanceRepo.Upsert(txCtx, balance); err != nil {
			return err
		}
		result = balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetBalance returns an item's balance, zero-valued when the item has never
// moved through the ledger.
func (s *LedgerService) GetBalance(ctx context.Context, ref domain.ItemRef) (*repository.InventoryBalance, error) {
	balance, err := s.balanceRepo.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return &repository.InventoryBalance{ItemKind: ref.Kind, ItemID: ref.ID}, nil
		}
		return nil, err
	}
	return balance, nil
}

// GetHistory returns an item's transaction history oldest first.
func (s *LedgerService) GetHistory(ctx context.Context, ref domain.ItemRef, filter repository.TransactionFilter) ([]*repository.InventoryTransaction, int64, error) {
	return s.txnRepo.ListByItem(ctx, ref, filter)
}

// ListBalances returns all balances.
func (s *LedgerService) ListBalances(ctx context.Context) ([]*repository.InventoryBalance, error) {
	return s.balanceRepo.List(ctx)
}

// ListLowStock returns balances at or below the threshold.
func (s *LedgerService) ListLowStock(ctx context.Context, threshold decimal.Decimal) ([]*repository.InventoryBalance, error) {
	return s.balanceRepo.ListBelow(ctx, threshold)
}

func (s *LedgerService) getOrZeroBalance(ctx context.Context, ref domain.ItemRef, unit string) (*repository.InventoryBalance, error) {
	balance, err := s.balanceRepo.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return &repository.InventoryBalance{ItemKind: ref.Kind, ItemID: ref.ID, Unit: unit}, nil
		}
		return nil, err
	}
	return balance, nil
}

// weightedAverage folds an incoming quantity at a price into an existing
// average: (oldQty*oldAvg + addQty*addPrice) / (oldQty+addQty).
func weightedAverage(oldQty, oldAvg, addQty, addPrice decimal.Decimal) decimal.Decimal {
	total := oldQty.Add(addQty)
	if !total.IsPositive() {
		return decimal.Zero
	}
	return oldQty.Mul(oldAvg).Add(addQty.Mul(addPrice)).Div(total)
}

func parseRef(kind, id string) (domain.ItemRef, error) {
	k, err := domain.ParseItemKind(kind)
	if err != nil {
		return domain.ItemRef{}, err
	}
	if id == "" {
		return domain.ItemRef{}, errors.BadRequest("item id is required")
	}
	return domain.ItemRef{Kind: k, ID: id}, nil
}
