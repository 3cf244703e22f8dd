package event

import (
	"context"
	"fmt"
	"time"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/domain/shared"
	"github.com/partsync/backend/internal/infrastructure/config"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaHandler
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaHandler forwards sync events to a Kafka topic. Messages are keyed by
// entity type so one entity type's events stay ordered within a partition.
type KafkaHandler struct {
	writer     MessageWriter
	serializer *EventSerializer
	topic      string
	logger     *zap.Logger
}

// NewKafkaHandler creates a handler writing to cfg.Topic on cfg.Brokers
func NewKafkaHandler(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaHandler, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  5,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Error(fmt.Sprintf(msg, args...), zap.String("topic", cfg.Topic))
		}),
	}
	return NewKafkaHandlerWithWriter(writer, cfg.Topic, logger), nil
}

// NewKafkaHandlerWithWriter wraps an existing writer
func NewKafkaHandlerWithWriter(writer MessageWriter, topic string, logger *zap.Logger) *KafkaHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaHandler{
		writer:     writer,
		serializer: NewEventSerializer(),
		topic:      topic,
		logger:     logger,
	}
}

// EventTypes returns the forwarded event types
func (h *KafkaHandler) EventTypes() []string {
	return []string{datasync.EventTypeSyncFinished}
}

// Handle writes one event as one message
func (h *KafkaHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	value, err := h.serializer.Serialize(event)
	if err != nil {
		return err
	}

	key := event.AggregateID().String()
	if sf, ok := event.(*datasync.SyncFinishedEvent); ok {
		key = string(sf.EntityType)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID().String())},
			{Key: "event_type", Value: []byte(event.EventType())},
			{Key: "aggregate_type", Value: []byte(event.AggregateType())},
			{Key: "produced_at", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}
	if err := h.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.EventType(), h.topic, err)
	}

	h.logger.Debug("Event published",
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
		zap.String("topic", h.topic),
	)
	return nil
}

// Close flushes pending messages and closes the writer
func (h *KafkaHandler) Close() error {
	return h.writer.Close()
}

// LogHandler writes sync outcomes to the log. It is subscribed when Kafka
// is disabled, and alongside it otherwise.
type LogHandler struct {
	logger *zap.Logger
}

// NewLogHandler creates a new LogHandler
func NewLogHandler(logger *zap.Logger) *LogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogHandler{logger: logger}
}

// EventTypes returns the logged event types
func (h *LogHandler) EventTypes() []string {
	return []string{datasync.EventTypeSyncFinished}
}

// Handle logs the event
func (h *LogHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	sf, ok := event.(*datasync.SyncFinishedEvent)
	if !ok {
		h.logger.Info("Domain event", zap.String("event_type", event.EventType()))
		return nil
	}
	fields := []zap.Field{
		zap.String("entity_type", string(sf.EntityType)),
		zap.String("sync_log_id", sf.AggregateID().String()),
		zap.String("status", string(sf.Status)),
		zap.Int("processed", sf.Processed),
		zap.Int("created", sf.Created),
		zap.Int("updated", sf.Updated),
		zap.Int("failed", sf.Failed),
		zap.Int("unchanged", sf.Unchanged),
	}
	if sf.ErrorMessage != "" {
		fields = append(fields, zap.String("error", sf.ErrorMessage))
	}
	h.logger.Info("Sync finished", fields...)
	return nil
}

var (
	_ shared.EventHandler = (*KafkaHandler)(nil)
	_ shared.EventHandler = (*LogHandler)(nil)
)
