package testutil

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema is the inventory service schema used by integration tests. It
// mirrors the production migrations.
const Schema = `
	CREATE TABLE IF NOT EXISTS catalog_items (
		item_kind VARCHAR(32) NOT NULL,
		item_id VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		unit VARCHAR(32) NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (item_kind, item_id),
		CONSTRAINT item_kind_valid CHECK (item_kind IN ('material', 'product', 'product_variant'))
	);

	CREATE TABLE IF NOT EXISTS inventory_balances (
		item_kind VARCHAR(32) NOT NULL,
		item_id VARCHAR(64) NOT NULL,
		total_quantity NUMERIC(18,6) NOT NULL DEFAULT 0,
		average_price NUMERIC(18,6) NOT NULL DEFAULT 0,
		unit VARCHAR(32) NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (item_kind, item_id),
		CONSTRAINT quantity_non_negative CHECK (total_quantity >= 0),
		CONSTRAINT price_non_negative CHECK (average_price >= 0)
	);

	CREATE TABLE IF NOT EXISTS inventory_lots (
		id UUID PRIMARY KEY,
		item_kind VARCHAR(32) NOT NULL,
		item_id VARCHAR(64) NOT NULL,
		quantity_received NUMERIC(18,6) NOT NULL,
		quantity_remaining NUMERIC(18,6) NOT NULL,
		price_per_unit NUMERIC(18,6) NOT NULL,
		unit VARCHAR(32) NOT NULL,
		received_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT quantity_positive CHECK (quantity_received > 0),
		CONSTRAINT remaining_non_negative CHECK (quantity_remaining >= 0),
		CONSTRAINT lot_price_non_negative CHECK (price_per_unit >= 0)
	);
	CREATE INDEX IF NOT EXISTS idx_inventory_lots_item ON inventory_lots (item_kind, item_id, received_at);

	CREATE TABLE IF NOT EXISTS inventory_transactions (
		id UUID PRIMARY KEY,
		item_kind VARCHAR(32) NOT NULL,
		item_id VARCHAR(64) NOT NULL,
		type VARCHAR(16) NOT NULL,
		quantity NUMERIC(18,6) NOT NULL,
		price_per_unit NUMERIC(18,6) NOT NULL DEFAULT 0,
		unit VARCHAR(32) NOT NULL DEFAULT '',
		lot_id UUID,
		actor_id VARCHAR(64) NOT NULL DEFAULT '',
		actor_name VARCHAR(255) NOT NULL DEFAULT '',
		note TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT type_valid CHECK (type IN ('incoming', 'outgoing', 'adjustment'))
	);
	CREATE INDEX IF NOT EXISTS idx_inventory_transactions_item ON inventory_transactions (item_kind, item_id, created_at);

	CREATE TABLE IF NOT EXISTS unit_conversions (
		id UUID PRIMARY KEY,
		item_kind VARCHAR(32) NOT NULL,
		item_id VARCHAR(64) NOT NULL,
		from_unit VARCHAR(32) NOT NULL,
		to_unit VARCHAR(32) NOT NULL,
		factor NUMERIC(18,9) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT factor_positive CHECK (factor > 0),
		UNIQUE (item_kind, item_id, from_unit, to_unit)
	);

	CREATE TABLE IF NOT EXISTS recipes (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		output_kind VARCHAR(32) NOT NULL,
		output_id VARCHAR(64) NOT NULL,
		output_quantity NUMERIC(18,6) NOT NULL,
		output_unit VARCHAR(32) NOT NULL,
		production_time_minutes INT NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT output_quantity_positive CHECK (output_quantity > 0)
	);

	CREATE TABLE IF NOT EXISTS recipe_items (
		id UUID PRIMARY KEY,
		recipe_id UUID NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
		component_kind VARCHAR(32) NOT NULL,
		component_id VARCHAR(64) NOT NULL,
		quantity NUMERIC(18,6) NOT NULL,
		unit VARCHAR(32) NOT NULL,
		waste_percentage NUMERIC(8,4) NOT NULL DEFAULT 0,
		CONSTRAINT component_quantity_positive CHECK (quantity > 0),
		CONSTRAINT waste_non_negative CHECK (waste_percentage >= 0),
		UNIQUE (recipe_id, component_kind, component_id)
	);

	CREATE TABLE IF NOT EXISTS recipe_cost_rates (
		id UUID PRIMARY KEY,
		recipe_id UUID NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
		category VARCHAR(32) NOT NULL,
		rate_per_unit NUMERIC(18,6) NOT NULL DEFAULT 0,
		fixed_rate NUMERIC(18,6) NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS production_batches (
		id UUID PRIMARY KEY,
		recipe_id UUID NOT NULL REFERENCES recipes(id),
		status VARCHAR(16) NOT NULL,
		strategy VARCHAR(16) NOT NULL,
		planned_quantity NUMERIC(18,6) NOT NULL,
		actual_quantity NUMERIC(18,6),
		unit_cost NUMERIC(18,6),
		total_material_cost NUMERIC(18,6),
		additional_costs NUMERIC(18,6),
		notes TEXT,
		cancel_reason TEXT,
		planned_start TIMESTAMPTZ,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		created_by VARCHAR(64) NOT NULL DEFAULT '',
		completed_by VARCHAR(64),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT status_valid CHECK (status IN ('planned', 'in_progress', 'completed', 'cancelled', 'failed')),
		CONSTRAINT planned_quantity_positive CHECK (planned_quantity > 0)
	);

	CREATE TABLE IF NOT EXISTS component_reservations (
		id UUID PRIMARY KEY,
		batch_id UUID NOT NULL REFERENCES production_batches(id) ON DELETE CASCADE,
		component_kind VARCHAR(32) NOT NULL,
		component_id VARCHAR(64) NOT NULL,
		quantity NUMERIC(18,6) NOT NULL,
		waste_quantity NUMERIC(18,6) NOT NULL DEFAULT 0,
		unit VARCHAR(32) NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_component_reservations_item ON component_reservations (component_kind, component_id, expires_at);

	CREATE TABLE IF NOT EXISTS component_consumptions (
		id UUID PRIMARY KEY,
		batch_id UUID NOT NULL REFERENCES production_batches(id) ON DELETE CASCADE,
		component_kind VARCHAR(32) NOT NULL,
		component_id VARCHAR(64) NOT NULL,
		lot_id UUID NOT NULL,
		quantity NUMERIC(18,6) NOT NULL,
		price_per_unit NUMERIC(18,6) NOT NULL,
		unit VARCHAR(32) NOT NULL,
		waste_quantity NUMERIC(18,6) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS inventory_audits (
		id UUID PRIMARY KEY,
		status VARCHAR(16) NOT NULL,
		notes TEXT,
		created_by VARCHAR(64) NOT NULL DEFAULT '',
		completed_by VARCHAR(64),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		CONSTRAINT audit_status_valid CHECK (status IN ('draft', 'in_progress', 'completed', 'cancelled'))
	);

	CREATE TABLE IF NOT EXISTS inventory_audit_items (
		id UUID PRIMARY KEY,
		audit_id UUID NOT NULL REFERENCES inventory_audits(id) ON DELETE CASCADE,
		item_kind VARCHAR(32) NOT NULL,
		item_id VARCHAR(64) NOT NULL,
		item_name VARCHAR(255) NOT NULL DEFAULT '',
		unit VARCHAR(32) NOT NULL DEFAULT '',
		expected_quantity NUMERIC(18,6) NOT NULL,
		cost_per_unit NUMERIC(18,6) NOT NULL DEFAULT 0,
		actual_quantity NUMERIC(18,6),
		difference NUMERIC(18,6),
		difference_cost NUMERIC(18,6),
		notes TEXT,
		counted_by VARCHAR(64),
		counted_at TIMESTAMPTZ,
		UNIQUE (audit_id, item_kind, item_id)
	);

	CREATE TABLE IF NOT EXISTS inventory_audit_item_history (
		id UUID PRIMARY KEY,
		audit_item_id UUID NOT NULL REFERENCES inventory_audit_items(id) ON DELETE CASCADE,
		old_quantity NUMERIC(18,6),
		new_quantity NUMERIC(18,6) NOT NULL,
		counted_by VARCHAR(64) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

// tables in dependency order for truncation.
var tables = []string{
	"inventory_audit_item_history",
	"inventory_audit_items",
	"inventory_audits",
	"component_consumptions",
	"component_reservations",
	"production_batches",
	"recipe_cost_rates",
	"recipe_items",
	"recipes",
	"unit_conversions",
	"inventory_transactions",
	"inventory_lots",
	"inventory_balances",
	"catalog_items",
}

// ApplySchema creates all inventory service tables.
func ApplySchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// TruncateAll wipes every table between tests.
func TruncateAll(ctx context.Context, db *sqlx.DB) error {
	for _, table := range tables {
		if _, err := db.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}
	return nil
}
