package notify

import (
	"context"
	"errors"
	"fmt"
	kafkax "github.com/ariefcatur/go-vendor-orders/internal/kafka"
	"github.com/ariefcatur/go-vendor-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type OrderLookup interface {
	NotificationDetails(ctx context.Context, orderID int64) (orders.NotificationDetails, error)
}

type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type Service struct {
	Orders        OrderLookup
	Dedup         Deduper
	Mailer        Mailer
	From          string
	FallbackEmail string
	Log           *zap.Logger
}

// HandleOrderPlaced is installed as the consumer handler. A returned error
// leaves the offset uncommitted so the message is retried.
func (s *Service) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.UnwrapPayload[orders.Envelope](m.Value)
	if err != nil {
		s.Log.Error("bad envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}

	seen, err := s.Dedup.Seen(ctx, env.EventID)
	if err != nil {
		// redis unavailable: deliver anyway, a duplicate mail is possible
		s.Log.Warn("dedup lookup", zap.String("event_id", env.EventID), zap.Error(err))
	}
	if seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		s.Log.Error("bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	d, err := s.Orders.NotificationDetails(ctx, p.OrderID)
	if errors.Is(err, orders.ErrNotFound) {
		s.Log.Warn("order gone before notification", zap.Int64("order_id", p.OrderID))
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.Mailer.Send(ctx, s.compose(d)); err != nil {
		return fmt.Errorf("send order %d notification: %w", d.OrderID, err)
	}

	if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
		s.Log.Warn("dedup mark", zap.String("event_id", env.EventID), zap.Error(err))
	}
	s.Log.Info("vendor notified", zap.Int64("order_id", d.OrderID), zap.Int64("vendor_id", d.VendorID))
	return nil
}

func (s *Service) compose(d orders.NotificationDetails) Message {
	to := d.VendorEmail
	if to == "" {
		to = s.FallbackEmail
	}
	return Message{
		From:    s.From,
		To:      to,
		Subject: fmt.Sprintf("New Order #%d", d.OrderID),
		Body: fmt.Sprintf("New order #%d for %q (product ID %d), quantity %d.",
			d.OrderID, d.ProductName, d.ProductID, d.Quantity),
	}
}
