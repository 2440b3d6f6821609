package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/pkg/database"
	"github.com/craftline/craftline-backend/pkg/errors"
)

// CatalogItem is a locally cached projection of the catalog service's items,
// kept current by the catalog event consumer. The ledger only needs the
// display name, stock unit and active flag.
type CatalogItem struct {
	ItemKind  domain.ItemKind `db:"item_kind" json:"item_kind"`
	ItemID    string          `db:"item_id" json:"item_id"`
	Name      string          `db:"name" json:"name"`
	Unit      string          `db:"unit" json:"unit"`
	Active    bool            `db:"active" json:"active"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// ItemCacheRepository handles the cached catalog item projection
type ItemCacheRepository struct {
	db *database.DB
}

// NewItemCacheRepository creates a new item cache repository
func NewItemCacheRepository(db *database.DB) *ItemCacheRepository {
	return &ItemCacheRepository{db: db}
}

// Upsert stores or refreshes a cached item.
func (r *ItemCacheRepository) Upsert(ctx context.Context, item *CatalogItem) error {
	query := `
		INSERT INTO catalog_items (item_kind, item_id, name, unit, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (item_kind, item_id) DO UPDATE SET
			name = EXCLUDED.name,
			unit = EXCLUDED.unit,
			active = EXCLUDED.active,
			updated_at = NOW()
	`
	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		item.ItemKind, item.ItemID, item.Name, item.Unit, item.Active,
	)
	if mapped := database.MapPQError(err); mapped != nil {
		return mapped
	}
	return err
}

// Deactivate marks a cached item inactive. The row is kept so historical
// ledger entries still resolve to a name.
func (r *ItemCacheRepository) Deactivate(ctx context.Context, ref domain.ItemRef) error {
	query := `UPDATE catalog_items SET active = false, updated_at = NOW() WHERE item_kind = $1 AND item_id = $2`
	_, err := r.db.Executor(ctx).ExecContext(ctx, query, ref.Kind, ref.ID)
	return err
}

// Lookup implements domain.ItemLookup against the cached projection.
func (r *ItemCacheRepository) Lookup(ctx context.Context, ref domain.ItemRef) (*domain.ItemDescriptor, error) {
	var item CatalogItem
	query := `SELECT * FROM catalog_items WHERE item_kind = $1 AND item_id = $2`
	if err := r.db.Executor(ctx).GetContext(ctx, &item, query, ref.Kind, ref.ID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("item " + ref.Key())
		}
		return nil, err
	}
	return &domain.ItemDescriptor{Name: item.Name, Unit: item.Unit, Active: item.Active}, nil
}
