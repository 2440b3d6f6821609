package service_test

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/inventory/repository"
	"github.com/craftline/craftline-backend/internal/inventory/service"
	"github.com/craftline/craftline-backend/pkg/errors"
	"github.com/craftline/craftline-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}

	code := m.Run()
	suite.Cleanup(ctx)
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

// ledgerEnv wires a ledger service against the suite database, keeping the
// repositories around for direct assertions.
type ledgerEnv struct {
	ledger      *service.LedgerService
	balances    *repository.BalanceRepository
	lots        *repository.LotRepository
	txns        *repository.TransactionRepository
	conversions *repository.ConversionRepository
}

func newLedgerEnv(t *testing.T) *ledgerEnv {
	t.Helper()
	suite.Reset(t, context.Background())

	balances := repository.NewBalanceRepository(suite.DB)
	lots := repository.NewLotRepository(suite.DB)
	txns := repository.NewTransactionRepository(suite.DB)
	conversions := repository.NewConversionRepository(suite.DB)
	items := repository.NewItemCacheRepository(suite.DB)

	ledger := service.NewLedgerService(
		suite.DB, balances, lots, txns, items,
		service.NewUnitConverter(conversions),
		service.NewItemLocker(), nil, domain.SystemClock{},
		domain.CostStrategyFIFO, suite.Logger,
	)
	return &ledgerEnv{ledger: ledger, balances: balances, lots: lots, txns: txns, conversions: conversions}
}

func flour() domain.ItemRef {
	return domain.ItemRef{Kind: domain.KindMaterial, ID: "flour"}
}

func (e *ledgerEnv) addStock(t *testing.T, ctx context.Context, quantity, price string) *repository.InventoryLot {
	t.Helper()
	lot, err := e.ledger.AddStock(ctx, &service.AddStockRequest{
		ItemKind:     "material",
		ItemID:       "flour",
		Quantity:     testutil.Dec(t, quantity),
		PricePerUnit: testutil.Dec(t, price),
	})
	require.NoError(t, err)
	return lot
}

// openLotTotal sums quantity_remaining over an item's open lots.
func (e *ledgerEnv) openLotTotal(t *testing.T, ctx context.Context, ref domain.ItemRef) string {
	t.Helper()
	lots, err := e.lots.ListOpen(ctx, ref, domain.CostStrategyFIFO)
	require.NoError(t, err)
	total := testutil.Dec(t, "0")
	for _, lot := range lots {
		total = total.Add(lot.QuantityRemaining)
	}
	return total.String()
}

func TestLedgerService_AddStock_WeightedAverage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newLedgerEnv(t)
	ctx := testutil.SystemActorContext()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	env.addStock(t, ctx, "10", "2")
	env.addStock(t, ctx, "10", "4")

	balance, err := env.ledger.GetBalance(ctx, flour())
	require.NoError(t, err)
	assert.True(t, balance.TotalQuantity.Equal(testutil.Dec(t, "20")))
	assert.True(t, balance.AveragePrice.Equal(testutil.Dec(t, "3")), "avg = %s", balance.AveragePrice)
	assert.Equal(t, "kg", balance.Unit)

	// Balance must equal the sum of open lot remainders.
	assert.Equal(t, balance.TotalQuantity.String(), env.openLotTotal(t, ctx, flour()))
}

func TestLedgerService_AddStock_UnknownItem(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newLedgerEnv(t)
	ctx := testutil.SystemActorContext()

	_, err := env.ledger.AddStock(ctx, &service.AddStockRequest{
		ItemKind: "material",
		ItemID:   "unobtainium",
		Quantity: testutil.Dec(t, "1"),
	})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestLedgerService_RemoveStock_FIFO(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newLedgerEnv(t)
	ctx := testutil.SystemActorContext()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	oldLot := env.addStock(t, ctx, "5", "10")
	newLot := env.addStock(t, ctx, "5", "20")

	draws, err := env.ledger.RemoveStock(ctx, &service.RemoveStockRequest{
		ItemKind: "material",
		ItemID:   "flour",
		Quantity: testutil.Dec(t, "7"),
		Strategy: "fifo",
	})
	require.NoError(t, err)
	require.Len(t, draws, 2)
	assert.Equal(t, oldLot.ID, draws[0].LotID)
	assert.True(t, draws[0].Quantity.Equal(testutil.Dec(t, "5")))
	assert.Equal(t, newLot.ID, draws[1].LotID)
	assert.True(t, draws[1].Quantity.Equal(testutil.Dec(t, "2")))

	balance, err := env.ledger.GetBalance(ctx, flour())
	require.NoError(t, err)
	assert.True(t, balance.TotalQuantity.Equal(testutil.Dec(t, "3")))
	// Removal never moves the average.
	assert.True(t, balance.AveragePrice.Equal(testutil.Dec(t, "15")), "avg = %s", balance.AveragePrice)
	assert.Equal(t, "3", env.openLotTotal(t, ctx, flour()))

	// One outgoing ledger row per lot touched, priced at the lot's price.
	outgoing := domain.TransactionOutgoing
	history, total, err := env.ledger.GetHistory(ctx, flour(), repository.TransactionFilter{Type: &outgoing})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	prices := []string{history[0].PricePerUnit.String(), history[1].PricePerUnit.String()}
	assert.ElementsMatch(t, []string{"10", "20"}, prices)
}

func TestLedgerService_RemoveStock_LIFO(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newLedgerEnv(t)
	ctx := testutil.SystemActorContext()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	env.addStock(t, ctx, "5", "10")
	newLot := env.addStock(t, ctx, "5", "20")

	draws, err := env.ledger.RemoveStock(ctx, &service.RemoveStockRequest{
		ItemKind: "material",
		ItemID:   "flour",
		Quantity: testutil.Dec(t, "3"),
		Strategy: "lifo",
	})
	require.NoError(t, err)
	require.Len(t, draws, 1)
	assert.Equal(t, newLot.ID, draws[0].LotID)
	assert.True(t, draws[0].PricePerUnit.Equal(testutil.Dec(t, "20")))
}

func TestLedgerService_RemoveStock_InsufficientIsAllOrNothing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newLedgerEnv(t)
	ctx := testutil.SystemActorContext()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	env.addStock(t, ctx, "5", "10")

	_, err := env.ledger.RemoveStock(ctx, &service.RemoveStockRequest{
		ItemKind: "material",
		ItemID:   "flour",
		Quantity: testutil.Dec(t, "8"),
	})
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	// Nothing may have moved.
	balance, err := env.ledger.GetBalance(ctx, flour())
	require.NoError(t, err)
	assert.True(t, balance.TotalQuantity.Equal(testutil.Dec(t, "5")))
	assert.Equal(t, "5", env.openLotTotal(t, ctx, flour()))

	outgoing := domain.TransactionOutgoing
	_, total, err := env.ledger.GetHistory(ctx, flour(), repository.TransactionFilter{Type: &outgoing})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestLedgerService_Adjust_NegativeClampsToZero(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newLedgerEnv(t)
	ctx := testutil.SystemActorContext()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	env.addStock(t, ctx, "5", "2")

	balance, err := env.ledger.Adjust(ctx, &service.AdjustStockRequest{
		ItemKind: "material",
		ItemID:   "flour",
		Delta:    testutil.Dec(t, "-8"),
		Note:     "spoilage writeoff",
	})
	require.NoError(t, err)
	assert.True(t, balance.TotalQuantity.IsZero())

	adjustment := domain.TransactionAdjustment
	history, _, err := env.ledger.GetHistory(ctx, flour(), repository.TransactionFilter{Type: &adjustment})
	require.NoError(t, err)
	require.Len(t, history, 1)
	// The applied delta is clamped to the available quantity and the
	// shortfall lands in the note.
	assert.True(t, history[0].Quantity.Equal(testutil.Dec(t, "-5")), "applied = %s", history[0].Quantity)
	require.NotNil(t, history[0].Note)
	assert.Contains(t, *history[0].Note, "shortfall 3")
}

func TestLedgerService_Adjust_PositiveFoldsIntoAverage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newLedgerEnv(t)
	ctx := testutil.SystemActorContext()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	env.addStock(t, ctx, "10", "2")

	balance, err := env.ledger.Adjust(ctx, &service.AdjustStockRequest{
		ItemKind:     "material",
		ItemID:       "flour",
		Delta:        testutil.Dec(t, "10"),
		PricePerUnit: testutil.Dec(t, "4"),
		Note:         "found during audit",
	})
	require.NoError(t, err)
	assert.True(t, balance.TotalQuantity.Equal(testutil.Dec(t, "20")))
	assert.True(t, balance.AveragePrice.Equal(testutil.Dec(t, "3")), "avg = %s", balance.AveragePrice)

	// Adjustments move the balance but never touch lots, so lot remainders
	// now intentionally undershoot the balance.
	assert.Equal(t, "10", env.openLotTotal(t, ctx, flour()))
}

func TestLedgerService_GetBalance_UnknownItemIsZero(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newLedgerEnv(t)
	ctx := testutil.SystemActorContext()

	balance, err := env.ledger.GetBalance(ctx, domain.ItemRef{Kind: domain.KindMaterial, ID: "never-seen"})
	require.NoError(t, err)
	assert.True(t, balance.TotalQuantity.IsZero())
	assert.True(t, balance.AveragePrice.IsZero())
}

func TestLedgerService_GetHistory_Pagination(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newLedgerEnv(t)
	ctx := testutil.SystemActorContext()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	for i := 0; i < 5; i++ {
		env.addStock(t, ctx, "1", "2")
	}

	page1, total, err := env.ledger.GetHistory(ctx, flour(), repository.TransactionFilter{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, page1, 2)

	page3, _, err := env.ledger.GetHistory(ctx, flour(), repository.TransactionFilter{Page: 3, PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, page3, 1)
}

func TestLedgerService_AddStockConvertsIncomingUnits(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newLedgerEnv(t)
	ctx := testutil.SystemActorContext()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	require.NoError(t, env.conversions.Create(ctx, &repository.UnitConversion{
		ItemKind: domain.KindMaterial,
		ItemID:   "flour",
		FromUnit: "kg",
		ToUnit:   "g",
		Factor:   testutil.Dec(t, "1000"),
	}))

	// 9 kg at 2.00/kg establishes the balance in kg.
	env.addStock(t, ctx, "9", "2")

	lot, err := env.ledger.AddStock(ctx, &service.AddStockRequest{
		ItemKind:     "material",
		ItemID:       "flour",
		Quantity:     testutil.Dec(t, "1000"),
		PricePerUnit: testutil.Dec(t, "0.003"),
		Unit:         "g",
	})
	require.NoError(t, err)

	// 1000 g at 0.003/g lands as 1 kg at 3.00/kg: same total cost.
	assert.Equal(t, "kg", lot.Unit)
	assert.True(t, lot.QuantityReceived.Equal(testutil.Dec(t, "1")))
	assert.True(t, lot.PricePerUnit.Equal(testutil.Dec(t, "3")))

	balance, err := env.ledger.GetBalance(ctx, flour())
	require.NoError(t, err)
	assert.Equal(t, "kg", balance.Unit)
	assert.True(t, balance.TotalQuantity.Equal(testutil.Dec(t, "10")))
	assert.True(t, balance.AveragePrice.Equal(testutil.Dec(t, "2.1")))
	assert.Equal(t, "10", env.openLotTotal(t, ctx, flour()))
}

func TestLedgerService_AddStockRejectsUnconvertibleUnit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newLedgerEnv(t)
	ctx := testutil.SystemActorContext()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	env.addStock(t, ctx, "9", "2")

	_, err := env.ledger.AddStock(ctx, &service.AddStockRequest{
		ItemKind:     "material",
		ItemID:       "flour",
		Quantity:     testutil.Dec(t, "3"),
		PricePerUnit: testutil.Dec(t, "5"),
		Unit:         "barrel",
	})
	assert.True(t, errors.Is(err, errors.ErrUnitConversionMissing))

	// Nothing landed on the books.
	balance, err := env.ledger.GetBalance(ctx, flour())
	require.NoError(t, err)
	assert.True(t, balance.TotalQuantity.Equal(testutil.Dec(t, "9")))
	assert.Equal(t, "9", env.openLotTotal(t, ctx, flour()))
}
