// Package relay forwards in-process events to Kafka for downstream consumers.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Sabari-Jazz/moose/internal/eventing"
)

// MessageWriter is the subset of *kafka.Writer used by the relay.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a synchronous writer for brokers.
func NewKafkaWriter(brokers []string, clientID string) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("relay: KAFKA_BROKERS is required")
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
		Transport: &kafka.Transport{
			ClientID: clientID,
		},
	}, nil
}

// KafkaRelay writes each received event's envelope to a topic, keyed by subject
// so that one device's events stay ordered within a partition.
type KafkaRelay struct {
	writer MessageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaRelay constructs a relay.
func NewKafkaRelay(writer MessageWriter, topic string, logger *zap.Logger) (*KafkaRelay, error) {
	if writer == nil {
		return nil, errors.New("relay: nil writer")
	}
	if topic == "" {
		return nil, errors.New("relay: empty topic")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaRelay{writer: writer, topic: topic, logger: logger}, nil
}

// Register subscribes the relay to the given event types.
func (r *KafkaRelay) Register(bus eventing.Bus, eventTypes ...string) {
	if r == nil || bus == nil {
		return
	}
	for _, eventType := range eventTypes {
		bus.Subscribe(eventType, r.Handle)
	}
}

// Handle relays one event. Failures are logged and swallowed so that in-process
// consumers are not affected.
func (r *KafkaRelay) Handle(ctx context.Context, event any) error {
	if r == nil {
		return nil
	}
	env, ok := eventing.EnvelopeFromContext(ctx)
	if !ok {
		built, err := eventing.BuildEnvelope(event, eventing.MetaFromContext(ctx))
		if err != nil {
			r.logger.Warn("relay envelope build failed", zap.Error(err))
			return nil
		}
		env = built
	}
	value, err := json.Marshal(env)
	if err != nil {
		r.logger.Warn("relay marshal failed", zap.Error(err))
		return nil
	}
	key := env.SubjectID
	if key == "" {
		key = env.EventID
	}
	msg := kafka.Message{
		Topic: r.topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "event_id", Value: []byte(env.EventID)},
			{Key: "correlation_id", Value: []byte(env.CorrelationID)},
		},
		Time: env.OccurredAt,
	}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		r.logger.Error("relay write failed",
			zap.String("topic", r.topic),
			zap.String("event_id", env.EventID),
			zap.Error(err),
		)
	}
	return nil
}

// Close closes the writer.
func (r *KafkaRelay) Close() error {
	if r == nil {
		return nil
	}
	return r.writer.Close()
}
