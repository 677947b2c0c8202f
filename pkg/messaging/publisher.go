package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakashimaa/go-order-service/pkg/metrics"
	"github.com/sakashimaa/go-order-service/pkg/mylogger"
	"github.com/sakashimaa/go-order-service/pkg/utils"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Publisher delivers an event to a named destination. Any failure wraps ErrPublish.
type Publisher interface {
	Publish(ctx context.Context, destination string, event Event) error
}

// NullPublisher is wired when no broker is configured. It never does I/O.
type NullPublisher struct {
	logger *zap.Logger
}

func NewNullPublisher(logger *zap.Logger) *NullPublisher {
	return &NullPublisher{logger: logger}
}

func (p *NullPublisher) Publish(ctx context.Context, destination string, event Event) error {
	mylogger.Debug(
		ctx,
		p.logger,
		"Broker not configured, event dropped",
		zap.String("destination", destination),
		zap.String("event_type", event.EventType()),
	)

	return nil
}

type BreakerPublisher struct {
	next Publisher
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerPublisher(next Publisher, settings gobreaker.Settings) *BreakerPublisher {
	return &BreakerPublisher{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

func (p *BreakerPublisher) Publish(ctx context.Context, destination string, event Event) error {
	_, err := utils.ExecuteWithBreaker(p.cb, func() (struct{}, error) {
		return struct{}{}, p.next.Publish(ctx, destination, event)
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.EventsPublished.WithLabelValues(destination, event.EventType(), metrics.ResultRejected).Inc()
		return fmt.Errorf("%w: %s to %s: %w", ErrPublish, event.EventType(), destination, err)
	}

	return err
}
