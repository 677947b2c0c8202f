package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sakashimaa/go-order-service/pkg/messaging"
	"github.com/sakashimaa/go-order-service/pkg/metrics"
	"github.com/sakashimaa/go-order-service/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const (
	HeaderMessageID   = "message-id"
	HeaderEventType   = "event-type"
	HeaderContentType = "content-type"
)

// Producer publishes envelopes synchronously, so a returned nil means the
// record was acknowledged by all in-sync replicas.
type Producer struct {
	syncProducer sarama.SyncProducer
	logger       *zap.Logger
}

func NewProducer(brokers []string, logger *zap.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Partitioner = sarama.NewHashPartitioner

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("error creating producer: %w", err)
	}

	return NewProducerFromSync(p, logger), nil
}

func NewProducerFromSync(p sarama.SyncProducer, logger *zap.Logger) *Producer {
	return &Producer{syncProducer: p, logger: logger}
}

func (p *Producer) Publish(ctx context.Context, destination string, event messaging.Event) error {
	eventType := event.EventType()

	msg, env, err := buildMessage(ctx, destination, event)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(destination, eventType, metrics.ResultError).Inc()
		return fmt.Errorf("%w: %w", messaging.ErrPublish, err)
	}

	partition, offset, err := p.syncProducer.SendMessage(msg)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(destination, eventType, metrics.ResultError).Inc()

		mylogger.Error(
			ctx,
			p.logger,
			"Failed to publish message",
			zap.String("destination", destination),
			zap.String("event_type", eventType),
			zap.Error(err),
		)

		return fmt.Errorf("%w: %s to %s: %w", messaging.ErrPublish, eventType, destination, err)
	}

	metrics.EventsPublished.WithLabelValues(destination, eventType, metrics.ResultOK).Inc()

	mylogger.Info(
		ctx,
		p.logger,
		"Published message",
		zap.String("destination", destination),
		zap.String("event_type", eventType),
		zap.String("message_id", env.MessageID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return nil
}

func (p *Producer) Close() error {
	return p.syncProducer.Close()
}

func buildMessage(ctx context.Context, destination string, event messaging.Event) (*sarama.ProducerMessage, messaging.Envelope, error) {
	env, err := messaging.NewEnvelope(event)
	if err != nil {
		return nil, messaging.Envelope{}, err
	}

	value, err := env.Marshal()
	if err != nil {
		return nil, messaging.Envelope{}, fmt.Errorf("marshal envelope: %w", err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderMessageID), Value: []byte(env.MessageID)},
		{Key: []byte(HeaderEventType), Value: []byte(env.Type)},
		{Key: []byte(HeaderContentType), Value: []byte(env.ContentType)},
	}
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte(k),
			Value: []byte(v),
		})
	}

	msg := &sarama.ProducerMessage{
		Topic:   destination,
		Value:   sarama.ByteEncoder(value),
		Headers: headers,
	}

	if keyed, ok := event.(messaging.Keyed); ok {
		msg.Key = sarama.StringEncoder(keyed.PartitionKey())
	}

	return msg, env, nil
}
