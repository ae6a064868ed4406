package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/course-orderflow/internal/catalog"
	"github.com/imrishuroy/course-orderflow/internal/gateway"
	"github.com/imrishuroy/course-orderflow/internal/orders"
)

// CheckoutSession is everything the client needs to open the gateway checkout.
type CheckoutSession struct {
	DBOrderID string `json:"db_order_id"`
	OrderID   string `json:"order_id"` // gateway order ref
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	KeyID     string `json:"key_id"`
	IsMock    bool   `json:"is_mock"`
}

// CreateOrder opens a gateway order for one item and records it locally with
// status created. Nothing is persisted when the gateway call fails.
func (s *Service) CreateOrder(ctx context.Context, userID, itemID int64, itemTag string) (*CheckoutSession, error) {
	itemType, err := orders.ParseItemType(itemTag)
	if err != nil {
		return nil, err
	}
	price, err := s.itemPrice(ctx, itemType, itemID)
	if err != nil {
		return nil, err
	}
	amount, err := orders.ComputeAmount(itemType, price)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc().UTC()
	receipt := gateway.Receipt(now, userID)
	log := s.log.With(
		slog.Int64("user_id", userID),
		slog.String("item_type", string(itemType)),
		slog.Int64("item_id", itemID),
		slog.String("receipt", receipt),
	)

	remote, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		Amount:   amount,
		Currency: orders.Currency,
		Receipt:  receipt,
		Notes: map[string]string{
			"user_id":   strconv.FormatInt(userID, 10),
			"item_type": string(itemType),
			"item_id":   strconv.FormatInt(itemID, 10),
		},
	})
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			log.Warn("create order: gateway not configured")
			return nil, ErrGatewayUnavailable
		}
		log.Error("create order: gateway call failed", slog.Int64("amount", amount), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	o := orders.Order{
		OrderID:         s.newID(),
		UserID:          userID,
		GatewayOrderRef: remote.ID,
		Receipt:         receipt,
		Amount:          amount,
		Currency:        orders.Currency,
		Status:          orders.StatusCreated,
		IsMock:          remote.IsMock,
		CreatedAt:       now,
	}
	if err := o.BindItem(itemType, itemID); err != nil {
		return nil, err
	}
	if err := s.orders.Create(ctx, o); err != nil {
		log.Error("create order: persist failed", slog.String("gateway_order_ref", remote.ID), slog.Any("error", err))
		return nil, fmt.Errorf("persist order: %w", err)
	}

	log.Info("order created",
		slog.String("order_id", o.OrderID),
		slog.String("gateway_order_ref", o.GatewayOrderRef),
		slog.Int64("amount", amount),
		slog.Bool("is_mock", o.IsMock),
	)
	return &CheckoutSession{
		DBOrderID: o.OrderID,
		OrderID:   o.GatewayOrderRef,
		Amount:    o.Amount,
		Currency:  o.Currency,
		KeyID:     s.gateway.KeyID(),
		IsMock:    o.IsMock,
	}, nil
}

// itemPrice looks the item up and returns its price in major units. The
// certificate fee is fixed, but the application must still exist.
func (s *Service) itemPrice(ctx context.Context, itemType orders.ItemType, itemID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	var err error
	switch itemType {
	case orders.ItemCourse:
		var c *catalog.Course
		if c, err = s.catalog.GetCourse(ctx, itemID); err == nil {
			price = c.Price
		}
	case orders.ItemProject:
		var p *catalog.Project
		if p, err = s.catalog.GetProject(ctx, itemID); err == nil {
			price = p.Price
		}
	case orders.ItemCertificate:
		_, err = s.catalog.GetApplication(ctx, itemID)
	default:
		return price, fmt.Errorf("%w: %q", ErrInvalidItemType, itemType)
	}
	if errors.Is(err, catalog.ErrNotFound) {
		return price, fmt.Errorf("%w: %s %d", ErrItemNotFound, itemType, itemID)
	}
	if err != nil {
		return price, fmt.Errorf("lookup %s %d: %w", itemType, itemID, err)
	}
	return price, nil
}
