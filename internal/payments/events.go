package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/imrishuroy/course-orderflow/internal/orders"
)

// EventTypePaymentConfirmed tags PaymentConfirmed messages.
const EventTypePaymentConfirmed = "payment.confirmed"

// PaymentConfirmed is published once per order, when it first becomes paid.
type PaymentConfirmed struct {
	Type            string    `json:"type"`
	OrderID         string    `json:"order_id"`
	UserID          int64     `json:"user_id"`
	ItemType        string    `json:"item_type"`
	ItemID          int64     `json:"item_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	GatewayOrderRef string    `json:"gateway_order_ref"`
	IsMock          bool      `json:"is_mock"`
	Source          string    `json:"source"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
}

// the money is already captured, so a publish failure is logged and dropped
func (s *Service) publishConfirmed(ctx context.Context, o *orders.Order, source string, log *slog.Logger) {
	if s.events == nil {
		return
	}
	confirmedAt := s.nowFunc().UTC()
	if o.PaidAt != nil {
		confirmedAt = *o.PaidAt
	}
	ev := PaymentConfirmed{
		Type:            EventTypePaymentConfirmed,
		OrderID:         o.OrderID,
		UserID:          o.UserID,
		ItemType:        string(o.ItemType()),
		ItemID:          o.ItemID(),
		Amount:          o.Amount,
		Currency:        o.Currency,
		GatewayOrderRef: o.GatewayOrderRef,
		IsMock:          o.IsMock,
		Source:          source,
		ConfirmedAt:     confirmedAt,
	}
	attrs := map[string]string{
		"event_type": EventTypePaymentConfirmed,
		"order_id":   o.OrderID,
	}
	if err := s.events.PublishJSON(ctx, ev, attrs); err != nil {
		log.Error("publish payment.confirmed failed", slog.Any("error", err))
	}
}
