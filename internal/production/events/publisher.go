package events

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/pkg/logger"
	"github.com/craftline/craftline-backend/pkg/messaging"
)

// BatchEventPublisher publishes production batch lifecycle events. A nil
// publisher drops events, which keeps the engine usable without a broker.
type BatchEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewBatchEventPublisher creates a new batch event publisher
func NewBatchEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*BatchEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeProductionEvents, "inventory-service", log)
	if err != nil {
		return nil, err
	}

	return &BatchEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishBatchCreated publishes a batch created event
func (p *BatchEventPublisher) PublishBatchCreated(ctx context.Context, batchID, recipeID string, plannedQuantity decimal.Decimal, createdBy string) {
	if p == nil {
		return
	}
	data := messaging.BatchCreatedEvent{
		BatchID:         batchID,
		RecipeID:        recipeID,
		PlannedQuantity: plannedQuantity,
		CreatedBy:       createdBy,
	}
	if err := p.publisher.Publish(ctx, messaging.EventBatchCreated, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batchID).Msg("failed to publish batch created event")
	}
}

// PublishBatchStarted publishes a batch started event
func (p *BatchEventPublisher) PublishBatchStarted(ctx context.Context, batchID, recipeID string, reservations int) {
	if p == nil {
		return
	}
	data := messaging.BatchStartedEvent{
		BatchID:      batchID,
		RecipeID:     recipeID,
		Reservations: reservations,
	}
	if err := p.publisher.Publish(ctx, messaging.EventBatchStarted, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batchID).Msg("failed to publish batch started event")
	}
}

// PublishBatchCompleted publishes a batch completed event
func (p *BatchEventPublisher) PublishBatchCompleted(ctx context.Context, batchID, recipeID string, actualQuantity, unitCost, totalMaterialCost decimal.Decimal, completedBy string) {
	if p == nil {
		return
	}
	data := messaging.BatchCompletedEvent{
		BatchID:           batchID,
		RecipeID:          recipeID,
		ActualQuantity:    actualQuantity,
		UnitCost:          unitCost,
		TotalMaterialCost: totalMaterialCost,
		CompletedBy:       completedBy,
	}
	if err := p.publisher.Publish(ctx, messaging.EventBatchCompleted, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batchID).Msg("failed to publish batch completed event")
	}
}

// PublishBatchCancelled publishes a batch cancelled event
func (p *BatchEventPublisher) PublishBatchCancelled(ctx context.Context, batchID, reason string) {
	if p == nil {
		return
	}
	data := messaging.BatchCancelledEvent{BatchID: batchID, Reason: reason}
	if err := p.publisher.Publish(ctx, messaging.EventBatchCancelled, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batchID).Msg("failed to publish batch cancelled event")
	}
}

// PublishBatchFailed publishes a batch failed event
func (p *BatchEventPublisher) PublishBatchFailed(ctx context.Context, batchID, reason string) {
	if p == nil {
		return
	}
	data := messaging.BatchFailedEvent{BatchID: batchID, Reason: reason}
	if err := p.publisher.Publish(ctx, messaging.EventBatchFailed, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", batchID).Msg("failed to publish batch failed event")
	}
}
