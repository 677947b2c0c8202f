package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sakashimaa/go-order-service/pkg/metrics"
	"github.com/sakashimaa/go-order-service/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrConsumerStarted = errors.New("consumer already started")
	ErrConsumerStopped = errors.New("consumer stopped")
)

// Delivery is one received message. Exactly one of Complete or Abandon is
// called for every delivery handed out by a Source.
type Delivery interface {
	Destination() string
	Body() []byte
	Headers() map[string]string
	Complete(ctx context.Context) error
	Abandon(ctx context.Context) error
}

// Source is a destination handle that yields deliveries one at a time.
// Receive returns ErrSourceClosed once Close has been called.
type Source interface {
	Receive(ctx context.Context) (Delivery, error)
	Close() error
}

// HandlerFunc processes a decoded envelope. Returning an error abandons the
// message, except ErrUnknownType which completes it.
type HandlerFunc func(ctx context.Context, env Envelope) error

type Outcome string

const (
	OutcomeCompleted Outcome = metrics.OutcomeCompleted
	OutcomeAbandoned Outcome = metrics.OutcomeAbandoned
	OutcomeIgnored   Outcome = metrics.OutcomeIgnored
)

// EventConsumer pulls from a single Source with at most one message in flight.
type EventConsumer struct {
	source     Source
	handler    HandlerFunc
	logger     *zap.Logger
	tracer     trace.Tracer
	retryDelay time.Duration

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewEventConsumer(source Source, handler HandlerFunc, logger *zap.Logger) *EventConsumer {
	return &EventConsumer{
		source:     source,
		handler:    handler,
		logger:     logger,
		tracer:     otel.Tracer("pkg/messaging/consumer"),
		retryDelay: time.Second,
	}
}

// Start launches the receive loop. The loop runs until Stop or ctx cancellation.
func (c *EventConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrConsumerStopped
	}
	if c.started {
		return ErrConsumerStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.started = true

	go c.run(runCtx)

	mylogger.Info(ctx, c.logger, "Event consumer started")
	return nil
}

// Stop stops issuing receives, waits for the in-flight message to be completed
// or abandoned, then closes the source. If ctx expires first the source stays
// open and Stop may be called again.
func (c *EventConsumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}

	if c.started {
		c.cancel()

		select {
		case <-c.done:
		case <-ctx.Done():
			mylogger.Warn(ctx, c.logger, "Event consumer stop timed out with a message in flight")
			return ctx.Err()
		}
	}

	c.stopped = true

	if err := c.source.Close(); err != nil {
		mylogger.Error(ctx, c.logger, "Failed to close consumer source", zap.Error(err))
		return err
	}

	mylogger.Info(ctx, c.logger, "Event consumer stopped")
	return nil
}

func (c *EventConsumer) run(ctx context.Context) {
	defer close(c.done)

	for ctx.Err() == nil {
		delivery, err := c.source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrSourceClosed) {
				return
			}

			mylogger.Error(ctx, c.logger, "Error receiving message", zap.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}

			continue
		}

		// the stop signal must not cut a started message short
		c.Process(context.WithoutCancel(ctx), delivery)
	}
}

// Process drives one delivery to a terminal state and reports which one.
func (c *EventConsumer) Process(ctx context.Context, delivery Delivery) Outcome {
	started := time.Now()
	destination := delivery.Destination()

	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(delivery.Headers()))
	ctx, span := c.tracer.Start(ctx, "EventConsumer.Process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination", destination)),
	)
	defer span.End()

	outcome := c.dispatch(ctx, delivery, span)

	metrics.MessagesProcessed.WithLabelValues(destination, string(outcome)).Inc()
	metrics.ProcessingDuration.WithLabelValues(destination).Observe(time.Since(started).Seconds())

	return outcome
}

func (c *EventConsumer) dispatch(ctx context.Context, delivery Delivery, span trace.Span) Outcome {
	destination := delivery.Destination()

	env, err := DecodeEnvelope(delivery.Body())
	if err == nil {
		span.SetAttributes(
			attribute.String("messaging.message_id", env.MessageID),
			attribute.String("event.type", env.Type),
		)

		mylogger.Info(
			ctx,
			c.logger,
			"Received message",
			zap.String("destination", destination),
			zap.String("event_type", env.Type),
			zap.String("message_id", env.MessageID),
		)

		err = c.handler(ctx, env)
	}

	outcome := OutcomeCompleted
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownType):
		mylogger.Warn(
			ctx,
			c.logger,
			"Ignored event type",
			zap.String("destination", destination),
			zap.String("event_type", env.Type),
		)
		outcome = OutcomeIgnored
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		mylogger.Error(
			ctx,
			c.logger,
			"Failed to process message, abandoning",
			zap.String("destination", destination),
			zap.String("event_type", env.Type),
			zap.Error(err),
		)

		if abandonErr := delivery.Abandon(ctx); abandonErr != nil {
			mylogger.Error(ctx, c.logger, "Failed to abandon message", zap.Error(abandonErr))
		}

		return OutcomeAbandoned
	}

	if err := delivery.Complete(ctx); err != nil {
		// not acknowledged, so the broker redelivers it
		mylogger.Error(ctx, c.logger, "Failed to complete message", zap.Error(err))
		return OutcomeAbandoned
	}

	mylogger.Debug(ctx, c.logger, "Message processed successfully", zap.String("destination", destination))
	return outcome
}
