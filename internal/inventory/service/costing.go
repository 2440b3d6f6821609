package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/inventory/repository"
	"github.com/craftline/craftline-backend/pkg/errors"
	"github.com/craftline/craftline-backend/pkg/logger"
)

// LotDraw is one slice of an estimate or removal: this much from that lot at
// its purchase price.
type LotDraw struct {
	LotID        string          `json:"lot_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

// Cost returns quantity times price for the draw.
func (d LotDraw) Cost() decimal.Decimal {
	return d.Quantity.Mul(d.PricePerUnit)
}

// CostEstimate is the non-mutating answer to "what would consuming this
// quantity cost right now". Partial means stock did not cover the full
// quantity and the shortfall was priced at the last available lot's price
// (or zero when no lots exist).
type CostEstimate struct {
	Strategy  domain.CostStrategy `json:"strategy"`
	Quantity  decimal.Decimal     `json:"quantity"`
	UnitCost  decimal.Decimal     `json:"unit_cost"`
	TotalCost decimal.Decimal     `json:"total_cost"`
	Partial   bool                `json:"partial"`
	Breakdown []LotDraw           `json:"breakdown,omitempty"`
}

// EstimateCost prices a hypothetical consumption against a snapshot of an
// item's balance and open lots. It never mutates anything, so repeated calls
// against the same snapshot return identical results. Lots must be given
// oldest first; LIFO walks them from the other end.
func EstimateCost(balance *repository.InventoryBalance, lots []*repository.InventoryLot, quantity decimal.Decimal, strategy domain.CostStrategy) (*CostEstimate, error) {
	if !quantity.IsPositive() {
		return nil, errors.InvalidQuantity("estimate quantity must be positive")
	}

	estimate := &CostEstimate{Strategy: strategy, Quantity: quantity}

	if strategy == domain.CostStrategyAverage {
		estimate.UnitCost = balance.AveragePrice
		estimate.TotalCost = balance.AveragePrice.Mul(quantity)
		estimate.Partial = quantity.GreaterThan(balance.TotalQuantity)
		return estimate, nil
	}

	ordered := lots
	if strategy == domain.CostStrategyLIFO {
		ordered = make([]*repository.InventoryLot, len(lots))
		for i, lot := range lots {
			ordered[len(lots)-1-i] = lot
		}
	}

	remaining := quantity
	total := decimal.Zero
	lastPrice := decimal.Zero
	for _, lot := range ordered {
		if !remaining.IsPositive() {
			break
		}
		if !lot.QuantityRemaining.IsPositive() {
			continue
		}
		take := decimal.Min(remaining, lot.QuantityRemaining)
		estimate.Breakdown = append(estimate.Breakdown, LotDraw{
			LotID:        lot.ID,
			Quantity:     take,
			PricePerUnit: lot.PricePerUnit,
		})
		total = total.Add(take.Mul(lot.PricePerUnit))
		lastPrice = lot.PricePerUnit
		remaining = remaining.Sub(take)
	}

	if remaining.IsPositive() {
		estimate.Partial = true
		total = total.Add(remaining.Mul(lastPrice))
	}

	estimate.TotalCost = total
	estimate.UnitCost = total.Div(quantity)
	return estimate, nil
}

// CostingService answers cost estimation queries against the live ledger
type CostingService struct {
	balanceRepo *repository.BalanceRepository
	lotRepo     *repository.LotRepository
	logger      *logger.Logger
}

// NewCostingService creates a new costing service
func NewCostingService(balanceRepo *repository.BalanceRepository, lotRepo *repository.LotRepository, log *logger.Logger) *CostingService {
	return &CostingService{
		balanceRepo: balanceRepo,
		lotRepo:     lotRepo,
		logger:      log,
	}
}

// Estimate prices a hypothetical consumption of an item without touching
// the ledger.
func (s *CostingService) Estimate(ctx context.Context, ref domain.ItemRef, quantity decimal.Decimal, strategy domain.CostStrategy) (*CostEstimate, error) {
	balance, err := s.balanceRepo.Get(ctx, ref)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		balance = &repository.InventoryBalance{ItemKind: ref.Kind, ItemID: ref.ID}
	}

	// Lots oldest first; EstimateCost reorders for LIFO itself.
	lots, err := s.lotRepo.ListOpen(ctx, ref, domain.CostStrategyFIFO)
	if err != nil {
		return nil, err
	}

	return EstimateCost(balance, lots, quantity, strategy)
}
