// Package gateway creates remote orders at the payment gateway.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrNotConfigured is returned when no gateway credentials are set.
var ErrNotConfigured = errors.New("payment gateway not configured")

// DefaultTimeout bounds a single gateway call.
const DefaultTimeout = 10 * time.Second

// CreateOrderRequest is what the gateway needs to open a checkout.
type CreateOrderRequest struct {
	Amount   int64 // minor units
	Currency string
	Receipt  string
	Notes    map[string]string
}

// RemoteOrder is the gateway's view of a created order.
type RemoteOrder struct {
	ID       string
	Amount   int64
	Currency string
	Receipt  string
	Status   string
	IsMock   bool
}

// Client opens orders at a payment gateway.
type Client interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*RemoteOrder, error)
	// KeyID is the public key the checkout widget needs. Never the secret.
	KeyID() string
}

// Receipt builds the receipt reference sent with a new order.
func Receipt(now time.Time, userID int64) string {
	return "receipt_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + strconv.FormatInt(userID, 10)
}

// Unavailable is the Client used when the gateway is not configured.
type Unavailable struct{}

func (Unavailable) CreateOrder(context.Context, CreateOrderRequest) (*RemoteOrder, error) {
	return nil, ErrNotConfigured
}

func (Unavailable) KeyID() string { return "" }

// Mock fabricates orders locally for development without gateway credentials.
type Mock struct {
	keyID   string
	nowFunc func() time.Time
}

// NewMock returns a development gateway advertising keyID.
func NewMock(keyID string) *Mock {
	return &Mock{keyID: keyID, nowFunc: time.Now}
}

func (m *Mock) CreateOrder(ctx context.Context, req CreateOrderRequest) (*RemoteOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("mock gateway: invalid amount %d", req.Amount)
	}
	return &RemoteOrder{
		ID:       "mock_order_" + strconv.FormatInt(m.nowFunc().UnixNano(), 10),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
		IsMock:   true,
	}, nil
}

func (m *Mock) KeyID() string { return m.keyID }
