package kafka

import (
	"context"
	"fmt"

	generalDomain "github.com/sakashimaa/go-order-service/pkg/domain"
	"github.com/sakashimaa/go-order-service/pkg/messaging"
	"github.com/sakashimaa/go-order-service/pkg/mylogger"
	"go.uber.org/zap"
)

// ProductEvent is one of ProductCreated, ProductUpdated, ProductDeleted or
// UnknownEvent.
type ProductEvent interface {
	productEvent()
}

type ProductCreated struct {
	generalDomain.ProductCreatedEvent
}

type ProductUpdated struct {
	generalDomain.ProductUpdatedEvent
}

type ProductDeleted struct {
	generalDomain.ProductDeletedEvent
}

// UnknownEvent carries a type tag this service does not read. It is
// tolerated so producers can add event types ahead of consumers.
type UnknownEvent struct {
	Type string
}

func (ProductCreated) productEvent() {}
func (ProductUpdated) productEvent() {}
func (ProductDeleted) productEvent() {}
func (UnknownEvent) productEvent()   {}

// DecodeProductEvent selects the variant by the envelope type tag. Only a
// known tag with an unreadable body is an error.
func DecodeProductEvent(env messaging.Envelope) (ProductEvent, error) {
	switch env.Type {
	case generalDomain.ProductCreatedType:
		var event ProductCreated
		if err := env.DecodeBody(&event.ProductCreatedEvent); err != nil {
			return nil, err
		}
		return event, nil
	case generalDomain.ProductUpdatedType:
		var event ProductUpdated
		if err := env.DecodeBody(&event.ProductUpdatedEvent); err != nil {
			return nil, err
		}
		return event, nil
	case generalDomain.ProductDeletedType:
		var event ProductDeleted
		if err := env.DecodeBody(&event.ProductDeletedEvent); err != nil {
			return nil, err
		}
		return event, nil
	default:
		return UnknownEvent{Type: env.Type}, nil
	}
}

type ProductHandler interface {
	HandleProductCreated(ctx context.Context, event generalDomain.ProductCreatedEvent) error
	HandleProductUpdated(ctx context.Context, event generalDomain.ProductUpdatedEvent) error
	HandleProductDeleted(ctx context.Context, event generalDomain.ProductDeletedEvent) error
}

type Consumer struct {
	handler ProductHandler
	logger  *zap.Logger
}

func NewConsumer(handler ProductHandler, logger *zap.Logger) *Consumer {
	return &Consumer{
		handler: handler,
		logger:  logger,
	}
}

// Handle is the messaging.HandlerFunc for the products destination.
func (c *Consumer) Handle(ctx context.Context, env messaging.Envelope) error {
	event, err := DecodeProductEvent(env)
	if err != nil {
		mylogger.Error(ctx, c.logger, "Failed to decode product event", zap.String("event_type", env.Type), zap.Error(err))
		return err
	}

	switch e := event.(type) {
	case ProductCreated:
		return c.handler.HandleProductCreated(ctx, e.ProductCreatedEvent)
	case ProductUpdated:
		return c.handler.HandleProductUpdated(ctx, e.ProductUpdatedEvent)
	case ProductDeleted:
		return c.handler.HandleProductDeleted(ctx, e.ProductDeletedEvent)
	case UnknownEvent:
		return fmt.Errorf("%w: %q", messaging.ErrUnknownType, e.Type)
	default:
		return fmt.Errorf("%w: %T", messaging.ErrUnknownType, event)
	}
}

// LoggingHandler observes product events without writing anything back.
type LoggingHandler struct {
	logger *zap.Logger
}

func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

func (h *LoggingHandler) HandleProductCreated(ctx context.Context, event generalDomain.ProductCreatedEvent) error {
	mylogger.Info(
		ctx,
		h.logger,
		"Product created",
		zap.Int64("product_id", event.ProductID),
		zap.String("name", event.Name),
		zap.String("price", event.Price.String()),
	)

	return nil
}

func (h *LoggingHandler) HandleProductUpdated(ctx context.Context, event generalDomain.ProductUpdatedEvent) error {
	mylogger.Info(
		ctx,
		h.logger,
		"Product updated",
		zap.Int64("product_id", event.ProductID),
		zap.String("name", event.Name),
		zap.String("price", event.Price.String()),
	)

	return nil
}

func (h *LoggingHandler) HandleProductDeleted(ctx context.Context, event generalDomain.ProductDeletedEvent) error {
	mylogger.Info(
		ctx,
		h.logger,
		"Product deleted",
		zap.Int64("product_id", event.ProductID),
		zap.Time("deleted_at", event.DeletedAt),
	)

	return nil
}
