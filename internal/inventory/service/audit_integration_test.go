package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/inventory/repository"
	"github.com/craftline/craftline-backend/internal/inventory/service"
	"github.com/craftline/craftline-backend/pkg/errors"
	"github.com/craftline/craftline-backend/pkg/testutil"
)

type auditEnv struct {
	*ledgerEnv
	audits *service.AuditService
}

func newAuditEnv(t *testing.T) *auditEnv {
	t.Helper()
	env := newLedgerEnv(t)
	items := repository.NewItemCacheRepository(suite.DB)
	audits := service.NewAuditService(
		suite.DB,
		repository.NewAuditRepository(suite.DB),
		env.balances,
		env.ledger,
		items,
		nil,
		suite.Logger,
	)
	return &auditEnv{ledgerEnv: env, audits: audits}
}

func TestAuditService_FullReconciliation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newAuditEnv(t)
	ctx := testutil.SystemActorContext()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	// Books say 50 kg at 2.00.
	env.addStock(t, ctx, "50", "2")

	created, err := env.audits.CreateAudit(ctx, &service.CreateAuditRequest{})
	require.NoError(t, err)
	require.Len(t, created.Items, 1)
	line := created.Items[0]
	assert.Equal(t, domain.AuditStatusDraft, created.Audit.Status)
	assert.True(t, line.ExpectedQuantity.Equal(testutil.Dec(t, "50")))
	assert.True(t, line.CostPerUnit.Equal(testutil.Dec(t, "2")))

	require.NoError(t, env.audits.StartAudit(ctx, created.Audit.ID))

	// The shelf only holds 48.
	counted, err := env.audits.RecordCount(ctx, created.Audit.ID, line.ID, &service.RecordCountRequest{
		ActualQuantity: testutil.Dec(t, "48"),
	})
	require.NoError(t, err)
	require.True(t, counted.Difference.Valid)
	assert.True(t, counted.Difference.Decimal.Equal(testutil.Dec(t, "-2")))
	require.True(t, counted.DifferenceCost.Valid)
	assert.True(t, counted.DifferenceCost.Decimal.Equal(testutil.Dec(t, "-4")))

	completed, err := env.audits.CompleteAudit(ctx, created.Audit.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditStatusCompleted, completed.Audit.Status)

	// The adjustment landed on the ledger at the snapshot cost.
	balance, err := env.ledger.GetBalance(ctx, flour())
	require.NoError(t, err)
	assert.True(t, balance.TotalQuantity.Equal(testutil.Dec(t, "48")))
	assert.True(t, balance.AveragePrice.Equal(testutil.Dec(t, "2")))

	adjustment := domain.TransactionAdjustment
	history, _, err := env.ledger.GetHistory(ctx, flour(), repository.TransactionFilter{Type: &adjustment})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Quantity.Equal(testutil.Dec(t, "-2")))
}

func TestAuditService_CompleteWithoutAdjustments(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newAuditEnv(t)
	ctx := testutil.SystemActorContext()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	env.addStock(t, ctx, "50", "2")

	created, err := env.audits.CreateAudit(ctx, &service.CreateAuditRequest{})
	require.NoError(t, err)
	require.NoError(t, env.audits.StartAudit(ctx, created.Audit.ID))

	_, err = env.audits.RecordCount(ctx, created.Audit.ID, created.Items[0].ID, &service.RecordCountRequest{
		ActualQuantity: testutil.Dec(t, "45"),
	})
	require.NoError(t, err)

	// Completing without applying keeps the books as they are.
	_, err = env.audits.CompleteAudit(ctx, created.Audit.ID, false)
	require.NoError(t, err)

	balance, err := env.ledger.GetBalance(ctx, flour())
	require.NoError(t, err)
	assert.True(t, balance.TotalQuantity.Equal(testutil.Dec(t, "50")))
}

func TestAuditService_RecordCountRequiresInProgress(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newAuditEnv(t)
	ctx := testutil.SystemActorContext()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	env.addStock(t, ctx, "10", "1")

	created, err := env.audits.CreateAudit(ctx, &service.CreateAuditRequest{})
	require.NoError(t, err)

	// Still draft, counting must be rejected.
	_, err = env.audits.RecordCount(ctx, created.Audit.ID, created.Items[0].ID, &service.RecordCountRequest{
		ActualQuantity: testutil.Dec(t, "9"),
	})
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
}

func TestAuditService_CompleteIsNotRepeatable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newAuditEnv(t)
	ctx := testutil.SystemActorContext()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	env.addStock(t, ctx, "10", "1")

	created, err := env.audits.CreateAudit(ctx, &service.CreateAuditRequest{})
	require.NoError(t, err)
	require.NoError(t, env.audits.StartAudit(ctx, created.Audit.ID))
	_, err = env.audits.RecordCount(ctx, created.Audit.ID, created.Items[0].ID, &service.RecordCountRequest{
		ActualQuantity: testutil.Dec(t, "8"),
	})
	require.NoError(t, err)

	_, err = env.audits.CompleteAudit(ctx, created.Audit.ID, true)
	require.NoError(t, err)

	// A second completion must fail and must not double the adjustment.
	_, err = env.audits.CompleteAudit(ctx, created.Audit.ID, true)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))

	balance, err := env.ledger.GetBalance(ctx, flour())
	require.NoError(t, err)
	assert.True(t, balance.TotalQuantity.Equal(testutil.Dec(t, "8")))
}

func TestAuditService_CancelLeavesBooksUntouched(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newAuditEnv(t)
	ctx := testutil.SystemActorContext()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")

	env.addStock(t, ctx, "10", "1")

	created, err := env.audits.CreateAudit(ctx, &service.CreateAuditRequest{})
	require.NoError(t, err)
	require.NoError(t, env.audits.StartAudit(ctx, created.Audit.ID))
	require.NoError(t, env.audits.CancelAudit(ctx, created.Audit.ID))

	result, err := env.audits.GetAudit(ctx, created.Audit.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuditStatusCancelled, result.Audit.Status)

	balance, err := env.ledger.GetBalance(ctx, flour())
	require.NoError(t, err)
	assert.True(t, balance.TotalQuantity.Equal(testutil.Dec(t, "10")))
}

func TestAuditService_ScopedAudit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := newAuditEnv(t)
	ctx := testutil.SystemActorContext()
	suite.SeedCatalogItem(t, ctx, "material", "flour", "Wheat Flour", "kg")
	suite.SeedCatalogItem(t, ctx, "material", "salt", "Sea Salt", "kg")

	env.addStock(t, ctx, "10", "1")
	_, err := env.ledger.AddStock(ctx, &service.AddStockRequest{
		ItemKind: "material", ItemID: "salt",
		Quantity:     testutil.Dec(t, "5"),
		PricePerUnit: testutil.Dec(t, "3"),
	})
	require.NoError(t, err)

	created, err := env.audits.CreateAudit(ctx, &service.CreateAuditRequest{
		Scope: []service.ItemRefRequest{{ItemKind: "material", ItemID: "salt"}},
	})
	require.NoError(t, err)
	require.Len(t, created.Items, 1)
	assert.Equal(t, "salt", created.Items[0].ItemID)
}
