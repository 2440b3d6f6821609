package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	// Stock events
	EventStockAdded    = "stock.added"
	EventStockRemoved  = "stock.removed"
	EventStockAdjusted = "stock.adjusted"

	// Production events
	EventBatchCreated   = "production.batch.created"
	EventBatchStarted   = "production.batch.started"
	EventBatchCompleted = "production.batch.completed"
	EventBatchCancelled = "production.batch.cancelled"
	EventBatchFailed    = "production.batch.failed"

	// Audit events
	EventAuditCompleted = "stock.audit.completed"

	// Catalog events (consumed; published by the catalog service that owns items)
	EventCatalogItemUpserted = "catalog.item.upserted"
	EventCatalogItemRemoved  = "catalog.item.removed"
)

// Exchange names
const (
	ExchangeStockEvents      = "stock.events"
	ExchangeProductionEvents = "production.events"
	ExchangeCatalogEvents    = "catalog.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Stock events

// StockAddedEvent is published when a new lot is received into stock
type StockAddedEvent struct {
	ItemKind     string          `json:"item_kind"`
	ItemID       string          `json:"item_id"`
	LotID        string          `json:"lot_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Unit         string          `json:"unit"`
	NewBalance   decimal.Decimal `json:"new_balance"`
	AveragePrice decimal.Decimal `json:"average_price"`
	Actor        string          `json:"actor"`
}

// StockRemovedEvent is published when stock is drawn down across lots
type StockRemovedEvent struct {
	ItemKind   string          `json:"item_kind"`
	ItemID     string          `json:"item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	LotsDrawn  int             `json:"lots_drawn"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Actor      string          `json:"actor"`
}

// StockAdjustedEvent is published when a reconciliation adjustment posts
type StockAdjustedEvent struct {
	ItemKind   string          `json:"item_kind"`
	ItemID     string          `json:"item_id"`
	Delta      decimal.Decimal `json:"delta"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Actor      string          `json:"actor"`
	Note       string          `json:"note,omitempty"`
}

// Production events

// BatchCreatedEvent is published when a production batch is planned
type BatchCreatedEvent struct {
	BatchID         string          `json:"batch_id"`
	RecipeID        string          `json:"recipe_id"`
	PlannedQuantity decimal.Decimal `json:"planned_quantity"`
	CreatedBy       string          `json:"created_by"`
}

// BatchStartedEvent is published when a batch reserves its components
type BatchStartedEvent struct {
	BatchID      string `json:"batch_id"`
	RecipeID     string `json:"recipe_id"`
	Reservations int    `json:"reservations"`
}

// BatchCompletedEvent is published when a batch finishes and its output is stocked
type BatchCompletedEvent struct {
	BatchID           string          `json:"batch_id"`
	RecipeID          string          `json:"recipe_id"`
	ActualQuantity    decimal.Decimal `json:"actual_quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	TotalMaterialCost decimal.Decimal `json:"total_material_cost"`
	CompletedBy       string          `json:"completed_by"`
}

// BatchCancelledEvent is published when a batch is cancelled
type BatchCancelledEvent struct {
	BatchID string `json:"batch_id"`
	Reason  string `json:"reason"`
}

// BatchFailedEvent is published when an external failure report marks a batch failed
type BatchFailedEvent struct {
	BatchID string `json:"batch_id"`
	Reason  string `json:"reason"`
}

// Audit events

// AuditCompletedEvent is published when an inventory audit completes
type AuditCompletedEvent struct {
	AuditID            string `json:"audit_id"`
	ItemsCounted       int    `json:"items_counted"`
	AdjustmentsApplied bool   `json:"adjustments_applied"`
	CompletedBy        string `json:"completed_by"`
}

// Catalog events (consumed)

// CatalogItemUpsertedEvent describes a stockable item created or updated in
// the external catalog
type CatalogItemUpsertedEvent struct {
	ItemKind string `json:"item_kind"`
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	Active   bool   `json:"active"`
}

// CatalogItemRemovedEvent describes an item deactivated in the external catalog
type CatalogItemRemovedEvent struct {
	ItemKind string `json:"item_kind"`
	ItemID   string `json:"item_id"`
}
