package orders

import (
	"context"
	kafkax "github.com/ariefcatur/go-vendor-orders/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"time"
)

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header) error
}

// EventQueue publishes OrderPlaced envelopes (envelope v1) to the notification topic.
type EventQueue struct {
	Producer Publisher
	Service  string
}

type traceKey struct{}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func (q *EventQueue) EnqueueOrderPlaced(ctx context.Context, orderID int64) error {
	trace, _ := ctx.Value(traceKey{}).(string)
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      q.Service,
		TraceID:       trace,
		CorrelationID: string(PartitionKey(orderID)),
		Payload:       kafkax.MustMarshal(OrderPlacedPayload{OrderID: orderID}),
	}
	return q.Producer.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventOrderPlaced)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
