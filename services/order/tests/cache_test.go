package tests

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sakashimaa/go-order-service/services/order/internal/domain"
	"github.com/sakashimaa/go-order-service/services/order/internal/repository"
	"github.com/sakashimaa/go-order-service/services/order/internal/service"
	"go.uber.org/zap"
)

// pausedReadStore holds the first GetByID after it has read from Postgres
// until release is closed.
type pausedReadStore struct {
	service.OrderStore

	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (p *pausedReadStore) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := p.OrderStore.GetByID(ctx, id)
	p.once.Do(func() {
		close(p.read)
		<-p.release
	})
	return order, err
}

func (s *IntegrationTestSuite) TestCache_SlowReaderDoesNotRestoreOldRow() {
	order := s.createOrder()

	logger := zap.NewNop()
	paused := &pausedReadStore{
		OrderStore: service.NewOrderStore(s.DbPool, repository.NewOrderRepository(logger), logger),
		read:       make(chan struct{}),
		release:    make(chan struct{}),
	}
	cached := service.NewCachedOrderStore(paused, s.RedisClient, time.Minute, logger)

	type result struct {
		order *domain.Order
		err   error
	}
	slow := make(chan result, 1)
	go func() {
		o, err := cached.GetByID(s.Ctx, order.ID)
		slow <- result{o, err}
	}()

	select {
	case <-paused.read:
	case <-time.After(10 * time.Second):
		s.FailNow("reader never reached postgres")
	}

	_, _, err := cached.UpdateStatus(s.Ctx, order.ID, domain.StatusCancelled)
	s.Require().NoError(err)

	close(paused.release)
	res := <-slow
	s.Require().NoError(res.err)
	s.Require().Equal(domain.StatusPending, res.order.Status, "the slow reader saw the row before the write")

	exists, err := s.RedisClient.Exists(s.Ctx, fmt.Sprintf("order:%d", order.ID)).Result()
	s.Require().NoError(err)
	s.Require().Zero(exists)

	fresh, err := cached.GetByID(s.Ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.StatusCancelled, fresh.Status)

	exists, err = s.RedisClient.Exists(s.Ctx, fmt.Sprintf("order:%d", order.ID)).Result()
	s.Require().NoError(err)
	s.Require().Equal(int64(1), exists)
}
