// Package kafka publishes order events to Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/promo-quoter/internal/domain/cart"
	"github.com/xenking/promo-quoter/internal/domain/order"
)

// EventOrderConfirmed is emitted once per newly confirmed order.
const EventOrderConfirmed = "OrderConfirmed"

const (
	eventVersion = 1
	producerName = "promo-quoter"
)

// Envelope wraps every published event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// OrderConfirmedPayload is the body of an OrderConfirmed event.
type OrderConfirmedPayload struct {
	Order *order.Order `json:"order"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

var _ cart.Notifier = (*Publisher)(nil)

// Publisher implements cart.Notifier. Writes are asynchronous; delivery
// failures are logged and never fail a confirmation.
type Publisher struct {
	w   messageWriter
	lg  *zap.Logger
	now func() time.Time
}

// NewPublisher returns a Publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string, lg *zap.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(msgs []kafkago.Message, err error) {
			if err != nil {
				lg.Error("Failed to deliver order events", zap.Int("count", len(msgs)), zap.Error(err))
			}
		},
	}
	return newPublisher(w, lg)
}

func newPublisher(w messageWriter, lg *zap.Logger) *Publisher {
	return &Publisher{w: w, lg: lg, now: time.Now}
}

// OrderConfirmed publishes an OrderConfirmed event keyed by order ID.
func (p *Publisher) OrderConfirmed(ctx context.Context, o *order.Order) error {
	msg, err := p.message(ctx, o)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write message")
	}
	p.lg.Debug("Queued order event", zap.String("order_id", o.ID))
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.w.Close()
}

func (p *Publisher) message(ctx context.Context, o *order.Order) (kafkago.Message, error) {
	payload, err := json.Marshal(OrderConfirmedPayload{Order: o})
	if err != nil {
		return kafkago.Message{}, errors.Wrap(err, "encode payload")
	}

	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderConfirmed,
		EventVersion:  eventVersion,
		OccurredAt:    p.now().UTC(),
		Producer:      producerName,
		CorrelationID: o.ID,
		Payload:       payload,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}

	value, err := json.Marshal(env)
	if err != nil {
		return kafkago.Message{}, errors.Wrap(err, "encode envelope")
	}
	return kafkago.Message{
		Key:   []byte(o.ID),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventOrderConfirmed)},
		},
	}, nil
}
