package service_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/inventory/repository"
	"github.com/craftline/craftline-backend/internal/inventory/service"
	"github.com/craftline/craftline-backend/pkg/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// twoLots is the classic setup: an old lot of 5 at 10.00 and a newer lot of
// 5 at 20.00, oldest first as ListOpen returns them for FIFO.
func twoLots() (*repository.InventoryBalance, []*repository.InventoryLot) {
	balance := &repository.InventoryBalance{
		ItemKind:      domain.KindMaterial,
		ItemID:        "flour",
		TotalQuantity: dec("10"),
		AveragePrice:  dec("15"),
		Unit:          "kg",
	}
	lots := []*repository.InventoryLot{
		{ID: "lot-old", QuantityRemaining: dec("5"), PricePerUnit: dec("10")},
		{ID: "lot-new", QuantityRemaining: dec("5"), PricePerUnit: dec("20")},
	}
	return balance, lots
}

func TestEstimateCost_FIFO(t *testing.T) {
	balance, lots := twoLots()

	est, err := service.EstimateCost(balance, lots, dec("7"), domain.CostStrategyFIFO)
	require.NoError(t, err)

	// 5 @ 10 from the old lot, then 2 @ 20 from the new one.
	assert.True(t, est.TotalCost.Equal(dec("90")), "total = %s", est.TotalCost)
	assert.False(t, est.Partial)
	require.Len(t, est.Breakdown, 2)
	assert.Equal(t, "lot-old", est.Breakdown[0].LotID)
	assert.True(t, est.Breakdown[0].Quantity.Equal(dec("5")))
	assert.Equal(t, "lot-new", est.Breakdown[1].LotID)
	assert.True(t, est.Breakdown[1].Quantity.Equal(dec("2")))
}

func TestEstimateCost_LIFO(t *testing.T) {
	balance, lots := twoLots()

	est, err := service.EstimateCost(balance, lots, dec("7"), domain.CostStrategyLIFO)
	require.NoError(t, err)

	// 5 @ 20 from the new lot, then 2 @ 10 from the old one.
	assert.True(t, est.TotalCost.Equal(dec("120")), "total = %s", est.TotalCost)
	require.Len(t, est.Breakdown, 2)
	assert.Equal(t, "lot-new", est.Breakdown[0].LotID)
	assert.Equal(t, "lot-old", est.Breakdown[1].LotID)
}

func TestEstimateCost_Average(t *testing.T) {
	balance, lots := twoLots()

	est, err := service.EstimateCost(balance, lots, dec("7"), domain.CostStrategyAverage)
	require.NoError(t, err)

	// 7 @ running average 15, no per-lot breakdown.
	assert.True(t, est.UnitCost.Equal(dec("15")))
	assert.True(t, est.TotalCost.Equal(dec("105")))
	assert.Empty(t, est.Breakdown)
	assert.False(t, est.Partial)
}

func TestEstimateCost_PartialPricesShortfallAtLastLot(t *testing.T) {
	balance, lots := twoLots()

	est, err := service.EstimateCost(balance, lots, dec("12"), domain.CostStrategyFIFO)
	require.NoError(t, err)

	// Stock covers 10; the 2 unit shortfall is priced at the last lot drawn.
	assert.True(t, est.Partial)
	assert.True(t, est.TotalCost.Equal(dec("190")), "total = %s", est.TotalCost)
}

func TestEstimateCost_NoLots(t *testing.T) {
	balance := &repository.InventoryBalance{ItemKind: domain.KindMaterial, ItemID: "flour"}

	est, err := service.EstimateCost(balance, nil, dec("3"), domain.CostStrategyFIFO)
	require.NoError(t, err)

	assert.True(t, est.Partial)
	assert.True(t, est.TotalCost.IsZero())
	assert.Empty(t, est.Breakdown)
}

func TestEstimateCost_AveragePartial(t *testing.T) {
	balance, lots := twoLots()

	est, err := service.EstimateCost(balance, lots, dec("11"), domain.CostStrategyAverage)
	require.NoError(t, err)

	assert.True(t, est.Partial)
	assert.True(t, est.TotalCost.Equal(dec("165")))
}

func TestEstimateCost_RejectsNonPositiveQuantity(t *testing.T) {
	balance, lots := twoLots()

	for _, q := range []string{"0", "-1"} {
		_, err := service.EstimateCost(balance, lots, dec(q), domain.CostStrategyFIFO)
		assert.True(t, errors.Is(err, errors.ErrInvalidQuantity), "quantity %s", q)
	}
}

func TestEstimateCost_SkipsDrainedLots(t *testing.T) {
	balance, lots := twoLots()
	lots = append([]*repository.InventoryLot{
		{ID: "lot-empty", QuantityRemaining: decimal.Zero, PricePerUnit: dec("99")},
	}, lots...)

	est, err := service.EstimateCost(balance, lots, dec("5"), domain.CostStrategyFIFO)
	require.NoError(t, err)

	require.Len(t, est.Breakdown, 1)
	assert.Equal(t, "lot-old", est.Breakdown[0].LotID)
	assert.True(t, est.TotalCost.Equal(dec("50")))
}

// Estimates never mutate the snapshot, so two identical calls must agree.
func TestEstimateCost_Repeatable(t *testing.T) {
	balance, lots := twoLots()

	first, err := service.EstimateCost(balance, lots, dec("7"), domain.CostStrategyFIFO)
	require.NoError(t, err)
	second, err := service.EstimateCost(balance, lots, dec("7"), domain.CostStrategyFIFO)
	require.NoError(t, err)

	assert.True(t, first.TotalCost.Equal(second.TotalCost))
	assert.True(t, lots[0].QuantityRemaining.Equal(dec("5")), "snapshot must stay untouched")
}
