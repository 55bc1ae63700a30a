package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/marketrec/internal/config"
	"github.com/temcen/marketrec/internal/recommender"
	"github.com/temcen/marketrec/internal/store"
	"github.com/temcen/marketrec/internal/validation"
)

const (
	defaultMaxRetries   = 3
	defaultBaseDelay    = time.Second
	defaultFetchBackoff = 500 * time.Millisecond
	maxFetchBackoff     = 30 * time.Second
)

// OrderEvent announces an order status transition.
type OrderEvent struct {
	EventID    uuid.UUID              `json:"event_id"`
	OrderID    string                 `json:"order_id"`
	UserID     string                 `json:"user_id"`
	Status     string                 `json:"status"`
	OccurredAt time.Time              `json:"occurred_at"`
	LineItems  []recommender.LineItem `json:"line_items,omitempty"`
}

// Delivered reports whether the order reached the state the model learns from.
func (e OrderEvent) Delivered() bool {
	return e.Status == store.DeliveredStatus
}

// OrderEventHandler processes one decoded event.
type OrderEventHandler func(ctx context.Context, event OrderEvent) error

// MessageReader is the consumer side of kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageWriter is the producer side of kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderEventConsumer reads order status events, validates them and hands
// them to a handler. Invalid events and events that keep failing go to the
// dead letter topic; offsets are committed either way.
type OrderEventConsumer struct {
	topic      string
	reader     MessageReader
	dlq        MessageWriter
	validator  *validation.SchemaValidator
	handler    OrderEventHandler
	logger     *logrus.Logger
	maxRetries int
	baseDelay  time.Duration
	// fetchBackoff is the first pause after a failed fetch; it doubles per
	// consecutive failure up to maxFetchBackoff.
	fetchBackoff time.Duration
}

// NewOrderEventConsumer connects a consumer group reader and a DLQ writer to
// the configured brokers.
func NewOrderEventConsumer(
	cfg config.KafkaConfig,
	validator *validation.SchemaValidator,
	handler OrderEventHandler,
	logger *logrus.Logger,
) *OrderEventConsumer {
	topic := cfg.Topics.OrderEvents

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic + "-dlq",
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return newOrderEventConsumer(topic, reader, dlqWriter, validator, handler, logger)
}

func newOrderEventConsumer(
	topic string,
	reader MessageReader,
	dlq MessageWriter,
	validator *validation.SchemaValidator,
	handler OrderEventHandler,
	logger *logrus.Logger,
) *OrderEventConsumer {
	return &OrderEventConsumer{
		topic:      topic,
		reader:     reader,
		dlq:        dlq,
		validator:  validator,
		handler:    handler,
		logger:     logger,
		maxRetries:   defaultMaxRetries,
		baseDelay:    defaultBaseDelay,
		fetchBackoff: defaultFetchBackoff,
	}
}

// Run consumes until ctx is cancelled.
func (c *OrderEventConsumer) Run(ctx context.Context) error {
	backoff := c.fetchBackoff
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WithError(err).WithField("backoff", backoff).Error("Failed to read message from Kafka")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxFetchBackoff)
			continue
		}
		backoff = c.fetchBackoff

		if err := c.handleMessage(ctx, message); err != nil {
			// Only cancellation gets here; leave the offset for the next run.
			return err
		}

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			c.logger.WithError(err).WithField("offset", message.Offset).Error("Failed to commit Kafka offset")
		}
	}
}

// handleMessage settles one message. It returns an error only when ctx ends
// before the message was settled.
func (c *OrderEventConsumer) handleMessage(ctx context.Context, message kafka.Message) error {
	if result := c.validator.Validate(validation.OrderEventSchema, message.Value); !result.Valid {
		c.logger.WithFields(logrus.Fields{
			"offset": message.Offset,
			"errors": result.Errors,
		}).Warn("Rejected invalid order event")
		return c.sendToDLQ(ctx, message, result.Err())
	}

	var event OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return c.sendToDLQ(ctx, message, fmt.Errorf("failed to unmarshal order event: %w", err))
	}

	if err := c.processWithRetry(ctx, event); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.WithError(err).WithField("event_id", event.EventID).Error("Failed to process order event after retries")
		return c.sendToDLQ(ctx, message, err)
	}
	return nil
}

func (c *OrderEventConsumer) processWithRetry(ctx context.Context, event OrderEvent) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			delay := c.baseDelay * time.Duration(1<<uint(attempt-1))
			c.logger.WithFields(logrus.Fields{
				"event_id": event.EventID,
				"attempt":  attempt,
				"delay":    delay,
			}).Info("Retrying order event")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err = c.handler(ctx, event); err == nil {
			c.logger.WithFields(logrus.Fields{
				"event_id": event.EventID,
				"order_id": event.OrderID,
				"status":   event.Status,
			}).Debug("Order event processed")
			return nil
		}

		c.logger.WithError(err).WithFields(logrus.Fields{
			"event_id": event.EventID,
			"attempt":  attempt,
		}).Warn("Order event processing failed")
	}

	return fmt.Errorf("max retries exceeded: %w", err)
}

func (c *OrderEventConsumer) sendToDLQ(ctx context.Context, message kafka.Message, cause error) error {
	if cause == nil {
		cause = errors.New("unknown failure")
	}

	dlqBytes, err := json.Marshal(map[string]interface{}{
		"original_message": json.RawMessage(validJSONOrQuoted(message.Value)),
		"error":            cause.Error(),
		"dlq_timestamp":    time.Now(),
	})
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal DLQ message")
		return nil
	}

	dlqMessage := kafka.Message{
		Key:   message.Key,
		Value: dlqBytes,
		Headers: []kafka.Header{
			{Key: "original_topic", Value: []byte(c.topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	}

	if err := c.dlq.WriteMessages(ctx, dlqMessage); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Dropping is preferable to blocking the partition on a broken DLQ.
		c.logger.WithError(err).Error("Failed to send message to DLQ")
		return nil
	}

	c.logger.WithFields(logrus.Fields{
		"offset": message.Offset,
		"error":  cause.Error(),
	}).Warn("Message sent to DLQ")
	return nil
}

func validJSONOrQuoted(value []byte) []byte {
	if json.Valid(value) {
		return value
	}
	quoted, _ := json.Marshal(string(value))
	return quoted
}

// Close releases the reader and DLQ writer.
func (c *OrderEventConsumer) Close() error {
	var errs []error
	if err := c.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
	}
	if err := c.dlq.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close DLQ writer: %w", err))
	}
	return errors.Join(errs...)
}
