package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-faster/errors"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/promo-quoter/internal/domain/order"
)

type mockWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestPublisher_OrderConfirmed(t *testing.T) {
	w := &mockWriter{}
	p := newPublisher(w, zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	traceID := trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
	}))

	o := &order.Order{ID: "order-1", Total: decimal.RequireFromString("42.00")}
	require.NoError(t, p.OrderConfirmed(ctx, o))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, []byte("order-1"), msg.Key)

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, EventOrderConfirmed, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "order-1", env.CorrelationID)
	assert.Equal(t, traceID.String(), env.TraceID)
	assert.True(t, now.Equal(env.OccurredAt))
	assert.NotEmpty(t, env.EventID)

	var payload OrderConfirmedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.NotNil(t, payload.Order)
	assert.True(t, o.Total.Equal(payload.Order.Total))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisher_WriteError(t *testing.T) {
	w := &mockWriter{err: errors.New("broker down")}
	p := newPublisher(w, zap.NewNop())

	err := p.OrderConfirmed(context.Background(), &order.Order{ID: "order-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
