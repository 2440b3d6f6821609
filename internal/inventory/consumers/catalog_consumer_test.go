package consumers_test

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

// The consumer handlers reduce to Upsert and Deactivate on the catalog
// projection; these tests drive that path the way handleItemUpserted and
// handleItemRemoved do.

func TestCatalogProjection_UpsertThenLookup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	repo := repository.NewItemCacheRepository(suite.DB)

	err := repo.Upsert(ctx, &repository.CatalogItem{
		ItemKind: domain.KindMaterial,
		ItemID:   "flour",
		Name:     "Wheat Flour",
		Unit:     "kg",
		Active:   true,
	})
	require.NoError(t, err)

	descriptor, err := repo.Lookup(ctx, domain.ItemRef{Kind: domain.KindMaterial, ID: "flour"})
	require.NoError(t, err)
	assert.Equal(t, "Wheat Flour", descriptor.Name)
	assert.Equal(t, "kg", descriptor.Unit)
	assert.True(t, descriptor.Active)
}

func TestCatalogProjection_UpsertOverwrites(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	repo := repository.NewItemCacheRepository(suite.DB)

	require.NoError(t, repo.Upsert(ctx, &repository.CatalogItem{
		ItemKind: domain.KindMaterial, ItemID: "flour", Name: "Flour", Unit: "kg", Active: true,
	}))
	// A later event for the same item replaces the projection in place.
	require.NoError(t, repo.Upsert(ctx, &repository.CatalogItem{
		ItemKind: domain.KindMaterial, ItemID: "flour", Name: "Type 550 Flour", Unit: "g", Active: true,
	}))

	descriptor, err := repo.Lookup(ctx, domain.ItemRef{Kind: domain.KindMaterial, ID: "flour"})
	require.NoError(t, err)
	assert.Equal(t, "Type 550 Flour", descriptor.Name)
	assert.Equal(t, "g", descriptor.Unit)
}

func TestCatalogProjection_RemoveDeactivates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	repo := repository.NewItemCacheRepository(suite.DB)
	ref := domain.ItemRef{Kind: domain.KindProduct, ID: "bread"}

	require.NoError(t, repo.Upsert(ctx, &repository.CatalogItem{
		ItemKind: ref.Kind, ItemID: ref.ID, Name: "Bread", Unit: "pcs", Active: true,
	}))
	require.NoError(t, repo.Deactivate(ctx, ref))

	// The row survives so historical transactions keep resolving, but the
	// item is no longer active.
	descriptor, err := repo.Lookup(ctx, ref)
	require.NoError(t, err)
	assert.False(t, descriptor.Active)
}

func TestCatalogProjection_LookupUnknownItem(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	suite.Reset(t, ctx)
	repo := repository.NewItemCacheRepository(suite.DB)

	_, err := repo.Lookup(ctx, domain.ItemRef{Kind: domain.KindMaterial, ID: "missing"})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
