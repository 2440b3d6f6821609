package events

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/pkg/logger"
	"github.com/craftline/craftline-backend/pkg/messaging"
)

// StockEventPublisher publishes stock movement events. A nil publisher is
// valid and drops events, which keeps the ledger usable without a broker.
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new stock event publisher
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "inventory-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishStockAdded publishes a stock added event
func (p *StockEventPublisher) PublishStockAdded(ctx context.Context, ref domain.ItemRef, lotID string, quantity, pricePerUnit decimal.Decimal, unit string, newBalance, averagePrice decimal.Decimal, actor string) {
	if p == nil {
		return
	}
	data := messaging.StockAddedEvent{
		ItemKind:     string(ref.Kind),
		ItemID:       ref.ID,
		LotID:        lotID,
		Quantity:     quantity,
		PricePerUnit: pricePerUnit,
		Unit:         unit,
		NewBalance:   newBalance,
		AveragePrice: averagePrice,
		Actor:        actor,
	}
	if err := p.publisher.Publish(ctx, messaging.EventStockAdded, data); err != nil {
		p.logger.Error().Err(err).Str("item", ref.Key()).Msg("failed to publish stock added event")
	}
}

// PublishStockRemoved publishes a stock removed event
func (p *StockEventPublisher) PublishStockRemoved(ctx context.Context, ref domain.ItemRef, quantity decimal.Decimal, lotsDrawn int, newBalance decimal.Decimal, actor string) {
	if p == nil {
		return
	}
	data := messaging.StockRemovedEvent{
		ItemKind:   string(ref.Kind),
		ItemID:     ref.ID,
		Quantity:   quantity,
		LotsDrawn:  lotsDrawn,
		NewBalance: newBalance,
		Actor:      actor,
	}
	if err := p.publisher.Publish(ctx, messaging.EventStockRemoved, data); err != nil {
		p.logger.Error().Err(err).Str("item", ref.Key()).Msg("failed to publish stock removed event")
	}
}

// PublishStockAdjusted publishes a stock adjusted event
func (p *StockEventPublisher) PublishStockAdjusted(ctx context.Context, ref domain.ItemRef, delta, newBalance decimal.Decimal, actor, note string) {
	if p == nil {
		return
	}
	data := messaging.StockAdjustedEvent{
		ItemKind:   string(ref.Kind),
		ItemID:     ref.ID,
		Delta:      delta,
		NewBalance: newBalance,
		Actor:      actor,
		Note:       note,
	}
	if err := p.publisher.Publish(ctx, messaging.EventStockAdjusted, data); err != nil {
		p.logger.Error().Err(err).Str("item", ref.Key()).Msg("failed to publish stock adjusted event")
	}
}

// PublishAuditCompleted publishes an audit completed event
func (p *StockEventPublisher) PublishAuditCompleted(ctx context.Context, auditID string, itemsCounted int, adjustmentsApplied bool, completedBy string) {
	if p == nil {
		return
	}
	data := messaging.AuditCompletedEvent{
		AuditID:            auditID,
		ItemsCounted:       itemsCounted,
		AdjustmentsApplied: adjustmentsApplied,
		CompletedBy:        completedBy,
	}
	if err := p.publisher.Publish(ctx, messaging.EventAuditCompleted, data); err != nil {
		p.logger.Error().Err(err).Str("audit_id", auditID).Msg("failed to publish audit completed event")
	}
}
