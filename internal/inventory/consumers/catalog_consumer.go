package consumers

import (
	"context"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/inventory/repository"
	"github.com/craftline/craftline-backend/pkg/logger"
	"github.com/craftline/craftline-backend/pkg/messaging"
)

// CatalogEventConsumer keeps the local catalog item projection in sync with
// the external catalog service.
type CatalogEventConsumer struct {
	consumer      *messaging.Consumer
	itemCacheRepo *repository.ItemCacheRepository
	logger        *logger.Logger
}

// NewCatalogEventConsumer creates a new catalog event consumer
func NewCatalogEventConsumer(
	rmq *messaging.RabbitMQ,
	itemCacheRepo *repository.ItemCacheRepository,
	log *logger.Logger,
) (*CatalogEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "inventory-service.catalog-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeCatalogEvents, "catalog.item.#"); err != nil {
		return nil, err
	}

	c := &CatalogEventConsumer{
		consumer:      consumer,
		itemCacheRepo: itemCacheRepo,
		logger:        log,
	}

	consumer.RegisterHandler(messaging.EventCatalogItemUpserted, c.handleItemUpserted)
	consumer.RegisterHandler(messaging.EventCatalogItemRemoved, c.handleItemRemoved)

	return c, nil
}

// Start starts consuming messages
func (c *CatalogEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *CatalogEventConsumer) handleItemUpserted(ctx context.Context, event *messaging.Event) error {
	var data messaging.CatalogItemUpsertedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	kind, err := domain.ParseItemKind(data.ItemKind)
	if err != nil {
		// Unknown kinds are dropped, not retried; a redelivery cannot fix them.
		c.logger.Warn().Str("item_kind", data.ItemKind).Str("item_id", data.ItemID).Msg("ignoring catalog event with unknown item kind")
		return nil
	}

	c.logger.Info().
		Str("item", data.ItemKind+":"+data.ItemID).
		Str("name", data.Name).
		Msg("received catalog item upserted event")

	return c.itemCacheRepo.Upsert(ctx, &repository.CatalogItem{
		ItemKind: kind,
		ItemID:   data.ItemID,
		Name:     data.Name,
		Unit:     data.Unit,
		Active:   data.Active,
	})
}

func (c *CatalogEventConsumer) handleItemRemoved(ctx context.Context, event *messaging.Event) error {
	var data messaging.CatalogItemRemovedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	kind, err := domain.ParseItemKind(data.ItemKind)
	if err != nil {
		c.logger.Warn().Str("item_kind", data.ItemKind).Str("item_id", data.ItemID).Msg("ignoring catalog event with unknown item kind")
		return nil
	}

	c.logger.Info().
		Str("item", data.ItemKind+":"+data.ItemID).
		Msg("received catalog item removed event")

	return c.itemCacheRepo.Deactivate(ctx, domain.ItemRef{Kind: kind, ID: data.ItemID})
}
