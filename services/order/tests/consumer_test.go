package tests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sakashimaa/go-order-service/pkg/domain"
	"github.com/sakashimaa/go-order-service/pkg/kafka"
	"github.com/sakashimaa/go-order-service/pkg/messaging"
	orderKafka "github.com/sakashimaa/go-order-service/services/order/internal/transport/kafka"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type productArchived struct {
	ProductID int64 `json:"productId"`
}

func (productArchived) EventType() string { return "ProductArchivedEvent" }

// flakyProductHandler fails the first created event it sees and records every
// call after that.
type flakyProductHandler struct {
	mu      sync.Mutex
	failed  bool
	created []int64
	deleted chan int64
}

func (h *flakyProductHandler) HandleProductCreated(_ context.Context, event domain.ProductCreatedEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.failed {
		h.failed = true
		return errors.New("catalog not ready")
	}
	h.created = append(h.created, event.ProductID)
	return nil
}

func (h *flakyProductHandler) HandleProductUpdated(context.Context, domain.ProductUpdatedEvent) error {
	return nil
}

func (h *flakyProductHandler) HandleProductDeleted(_ context.Context, event domain.ProductDeletedEvent) error {
	select {
	case h.deleted <- event.ProductID:
	default:
	}
	return nil
}

func (s *IntegrationTestSuite) TestProductConsumer_RedeliversAbandonedMessage() {
	topic := fmt.Sprintf("products-%d", time.Now().UnixNano())
	now := time.Now().UTC()

	events := []messaging.Event{
		domain.ProductCreatedEvent{ProductID: 7, Name: "Laptop", Price: decimal.RequireFromString("999.99"), CreatedAt: now},
		productArchived{ProductID: 7},
		domain.ProductDeletedEvent{ProductID: 7, DeletedAt: now},
	}
	for _, event := range events {
		s.Require().NoError(s.Producer.Publish(s.Ctx, topic, event))
	}

	source, err := kafka.NewConsumerGroup(s.KafkaBrokers, topic+"-group", []string{topic}, zap.NewNop())
	s.Require().NoError(err)

	h := &flakyProductHandler{deleted: make(chan int64, 1)}
	consumer := messaging.NewEventConsumer(source, orderKafka.NewConsumer(h, zap.NewNop()).Handle, zap.NewNop())
	s.Require().NoError(consumer.Start(s.Ctx))

	select {
	case id := <-h.deleted:
		s.Require().Equal(int64(7), id)
	case <-time.After(60 * time.Second):
		s.FailNow("product deleted event was never handled")
	}

	stopCtx, cancel := context.WithTimeout(s.Ctx, 10*time.Second)
	defer cancel()
	s.Require().NoError(consumer.Stop(stopCtx))

	h.mu.Lock()
	defer h.mu.Unlock()
	s.Require().True(h.failed)
	s.Require().Equal([]int64{7}, h.created)
}
