package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/go-order-service/pkg/messaging"
	"github.com/sakashimaa/go-order-service/pkg/mylogger"
	"go.uber.org/zap"
)

// ConsumerGroup adapts a sarama consumer group to messaging.Source. Claims hand
// messages over an unbuffered channel and wait for the acknowledgment, so with
// a single reader at most one message is in flight across all partitions.
type ConsumerGroup struct {
	group      sarama.ConsumerGroup
	topics     []string
	logger     *zap.Logger
	deliveries chan *delivery

	startOnce sync.Once
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	closed    chan struct{}
	wg        sync.WaitGroup
}

func NewConsumerGroup(brokers []string, groupID string, topics []string, logger *zap.Logger) (*ConsumerGroup, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V3_0_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("error creating consumer group %s: %w", groupID, err)
	}

	return newConsumerGroup(group, topics, logger), nil
}

func newConsumerGroup(group sarama.ConsumerGroup, topics []string, logger *zap.Logger) *ConsumerGroup {
	ctx, cancel := context.WithCancel(context.Background())

	return &ConsumerGroup{
		group:      group,
		topics:     topics,
		logger:     logger,
		deliveries: make(chan *delivery),
		ctx:        ctx,
		cancel:     cancel,
		closed:     make(chan struct{}),
	}
}

// Receive starts the group session loop on first use and blocks for the next message.
func (c *ConsumerGroup) Receive(ctx context.Context) (messaging.Delivery, error) {
	c.startOnce.Do(c.start)

	select {
	case d := <-c.deliveries:
		return d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, messaging.ErrSourceClosed
	}
}

// Close ends the session loop and leaves the group, committing marked offsets.
func (c *ConsumerGroup) Close() error {
	var err error

	c.closeOnce.Do(func() {
		close(c.closed)
		c.cancel()
		c.wg.Wait()

		if closeErr := c.group.Close(); closeErr != nil {
			err = fmt.Errorf("error closing consumer group: %w", closeErr)
		}
	})

	return err
}

func (c *ConsumerGroup) start() {
	c.wg.Add(2)

	go func() {
		defer c.wg.Done()
		c.consumeLoop()
	}()

	go func() {
		defer c.wg.Done()
		c.drainErrors()
	}()
}

func (c *ConsumerGroup) consumeLoop() {
	handler := &claimHandler{
		deliveries: c.deliveries,
		closed:     c.closed,
	}

	for {
		// Consume returns at the end of every session, including after an
		// abandon, and the next call resumes from the committed offsets.
		err := c.group.Consume(c.ctx, c.topics, handler)
		if err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}

			mylogger.Error(c.ctx, c.logger, "Error consuming in consumer loop", zap.Error(err))

			select {
			case <-c.ctx.Done():
			case <-time.After(time.Second):
			}
		}

		if c.ctx.Err() != nil {
			mylogger.Info(c.ctx, c.logger, "Context cancelled, shutting down consumer")
			return
		}
	}
}

func (c *ConsumerGroup) drainErrors() {
	for {
		select {
		case err, ok := <-c.group.Errors():
			if !ok {
				return
			}
			mylogger.Warn(c.ctx, c.logger, "Consumer group error", zap.Error(err))
		case <-c.ctx.Done():
			return
		}
	}
}

type claimHandler struct {
	deliveries chan<- *delivery
	closed     <-chan struct{}
}

func (h *claimHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			d := newDelivery(session, msg)

			select {
			case h.deliveries <- d:
			case <-session.Context().Done():
				return nil
			case <-h.closed:
				return nil
			}

			var res ackResult
			select {
			case res = <-d.acked:
			case <-h.closed:
				return nil
			}

			if res == ackAbandoned {
				// ending one claim ends the session; the next session starts
				// at the reset offset and the message is delivered again
				return nil
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

type ackResult int

const (
	ackCompleted ackResult = iota + 1
	ackAbandoned
)

type delivery struct {
	session sarama.ConsumerGroupSession
	msg     *sarama.ConsumerMessage
	headers map[string]string

	once  sync.Once
	acked chan ackResult
}

func newDelivery(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) *delivery {
	headers := make(map[string]string, len(msg.Headers))
	for _, header := range msg.Headers {
		if header == nil {
			continue
		}
		headers[string(header.Key)] = string(header.Value)
	}

	return &delivery{
		session: session,
		msg:     msg,
		headers: headers,
		acked:   make(chan ackResult, 1),
	}
}

func (d *delivery) Destination() string        { return d.msg.Topic }
func (d *delivery) Body() []byte               { return d.msg.Value }
func (d *delivery) Headers() map[string]string { return d.headers }

func (d *delivery) Complete(_ context.Context) error {
	d.once.Do(func() {
		d.session.MarkMessage(d.msg, "")
		d.acked <- ackCompleted
	})

	return nil
}

func (d *delivery) Abandon(_ context.Context) error {
	d.once.Do(func() {
		d.session.ResetOffset(d.msg.Topic, d.msg.Partition, d.msg.Offset, "")
		d.session.Commit()
		d.acked <- ackAbandoned
	})

	return nil
}
