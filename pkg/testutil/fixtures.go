package testutil

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/pkg/actor"
)

// SystemActorContext returns a context attributed to a named test actor.
func SystemActorContext() context.Context {
	return actor.WithActor(context.Background(), &actor.Actor{
		ID:   "00000000-0000-0000-0000-000000000001",
		Name: "Test Runner",
	})
}

// Dec parses a decimal literal, failing the test on bad input.
func Dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("invalid decimal literal %q: %v", s, err)
	}
	return d
}

// SeedCatalogItem registers an item in the cached catalog projection so
// ledger operations can resolve it.
func (s *IntegrationSuite) SeedCatalogItem(t *testing.T, ctx context.Context, kind, id, name, unit string) {
	t.Helper()
	_, err := s.RawDB.ExecContext(ctx, `
		INSERT INTO catalog_items (item_kind, item_id, name, unit, active)
		VALUES ($1, $2, $3, $4, true)
		ON CONFLICT (item_kind, item_id) DO UPDATE SET name = $3, unit = $4, active = true
	`, kind, id, name, unit)
	if err != nil {
		t.Fatalf("failed to seed catalog item %s:%s: %v", kind, id, err)
	}
}
