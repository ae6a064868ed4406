package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// orderCreator is the slice of the Razorpay SDK used here.
type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Razorpay creates orders through the Razorpay API.
type Razorpay struct {
	orders  orderCreator
	keyID   string
	timeout time.Duration
}

// NewRazorpay returns a Razorpay client. A zero timeout uses DefaultTimeout.
func NewRazorpay(keyID, keySecret string, timeout time.Duration) *Razorpay {
	client := razorpay.NewClient(keyID, keySecret)
	return newRazorpay(client.Order, keyID, timeout)
}

func newRazorpay(orders orderCreator, keyID string, timeout time.Duration) *Razorpay {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Razorpay{orders: orders, keyID: keyID, timeout: timeout}
}

func (r *Razorpay) KeyID() string { return r.keyID }

type createResult struct {
	body map[string]interface{}
	err  error
}

// CreateOrder opens an auto-capture order. The SDK call is not context aware, so
// it runs on its own goroutine and is abandoned once the deadline passes.
func (r *Razorpay) CreateOrder(ctx context.Context, req CreateOrderRequest) (*RemoteOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data := map[string]interface{}{
		"amount":          strconv.FormatInt(req.Amount, 10), // minor units
		"currency":        req.Currency,
		"receipt":         req.Receipt,
		"payment_capture": 1,
	}
	if len(req.Notes) > 0 {
		data["notes"] = req.Notes
	}

	done := make(chan createResult, 1)
	go func() {
		body, err := r.orders.Create(data, nil)
		done <- createResult{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("razorpay create order: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("razorpay create order: %w", res.err)
		}
		return parseOrder(res.body)
	}
}

func parseOrder(body map[string]interface{}) (*RemoteOrder, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return nil, errors.New("razorpay create order: response has no id")
	}
	o := &RemoteOrder{ID: id}
	o.Currency, _ = body["currency"].(string)
	o.Receipt, _ = body["receipt"].(string)
	o.Status, _ = body["status"].(string)
	switch v := body["amount"].(type) {
	case float64:
		o.Amount = int64(v)
	case int64:
		o.Amount = v
	case int:
		o.Amount = int64(v)
	}
	return o, nil
}
