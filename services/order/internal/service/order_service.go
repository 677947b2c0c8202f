package service

import (
	"context"
	"errors"

	generalDomain "github.com/sakashimaa/go-order-service/pkg/domain"
	"github.com/sakashimaa/go-order-service/pkg/messaging"
	"github.com/sakashimaa/go-order-service/pkg/mylogger"
	"github.com/sakashimaa/go-order-service/services/order/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Topics struct {
	Orders        string
	Notifications string
}

// OrderService is the store plus event emission. Create and UpdateStatus
// publish after the write has committed; a failed publish is returned
// together with the committed order and wraps messaging.ErrPublish.
type OrderService interface {
	Create(ctx context.Context, order *domain.Order) (*domain.Order, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Update(ctx context.Context, id int64, input *domain.Order) (*domain.Order, error)
	Delete(ctx context.Context, id int64) (bool, error)
	UpdateStatus(ctx context.Context, id int64, status domain.Status) (*domain.Order, error)
}

type orderService struct {
	store     OrderStore
	publisher messaging.Publisher
	topics    Topics
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewOrderService(store OrderStore, publisher messaging.Publisher, topics Topics, logger *zap.Logger) OrderService {
	return &orderService{
		store:     store,
		publisher: publisher,
		topics:    topics,
		logger:    logger,
		tracer:    otel.Tracer("order_service"),
	}
}

func (s *orderService) Create(ctx context.Context, input *domain.Order) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.Create")
	defer span.End()

	order, err := s.store.Create(ctx, input)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			s.logger,
			"Failed to create order",
			zap.String("customer_email", input.CustomerEmail),
			zap.Error(err),
		)

		return nil, err
	}

	span.SetAttributes(attribute.Int64("order_id", order.ID))

	event := orderCreatedEvent(order)
	err = errors.Join(
		s.publish(ctx, s.topics.Orders, event),
		s.publish(ctx, s.topics.Notifications, event),
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	return order, err
}

func (s *orderService) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	return s.store.GetByID(ctx, id)
}

func (s *orderService) List(ctx context.Context, params ListParams) (*ListResult, error) {
	return s.store.List(ctx, params)
}

func (s *orderService) Update(ctx context.Context, id int64, input *domain.Order) (*domain.Order, error) {
	return s.store.Update(ctx, id, input)
}

func (s *orderService) Delete(ctx context.Context, id int64) (bool, error) {
	return s.store.Delete(ctx, id)
}

func (s *orderService) UpdateStatus(ctx context.Context, id int64, status domain.Status) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
		attribute.String("status", string(status)),
	)

	order, previous, err := s.store.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}

	event := generalDomain.OrderStatusChangedEvent{
		OrderID:   order.ID,
		OldStatus: string(previous),
		NewStatus: string(order.Status),
		ChangedAt: order.UpdatedAt,
	}

	if err := s.publish(ctx, s.topics.Notifications, event); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return order, err
	}

	return order, nil
}

func (s *orderService) publish(ctx context.Context, destination string, event messaging.Event) error {
	if err := s.publisher.Publish(ctx, destination, event); err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Event not published",
			zap.String("destination", destination),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)

		return err
	}

	return nil
}

func orderCreatedEvent(order *domain.Order) generalDomain.OrderCreatedEvent {
	items := make([]generalDomain.OrderItemInfo, len(order.OrderItems))
	for i, item := range order.OrderItems {
		items[i] = generalDomain.OrderItemInfo{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	return generalDomain.OrderCreatedEvent{
		OrderID:      order.ID,
		CustomerName: order.CustomerName,
		TotalAmount:  order.TotalAmount,
		CreatedAt:    order.CreatedAt,
		Items:        items,
	}
}
