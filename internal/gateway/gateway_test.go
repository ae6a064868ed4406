package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	gotData map[string]interface{}
	resp    map[string]interface{}
	err     error
	delay   time.Duration
}

func (f *fakeOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.gotData = data
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.resp, f.err
}

func TestRazorpay_CreateOrder(t *testing.T) {
	fake := &fakeOrders{resp: map[string]interface{}{
		"id":       "order_ref_1",
		"amount":   float64(49900),
		"currency": "INR",
		"receipt":  "receipt_1_42",
		"status":   "created",
	}}
	rp := newRazorpay(fake, "rzp_test_key", time.Second)

	got, err := rp.CreateOrder(context.Background(), CreateOrderRequest{Amount: 49900, Currency: "INR", Receipt: "receipt_1_42"})
	require.NoError(t, err)
	assert.Equal(t, "order_ref_1", got.ID)
	assert.Equal(t, int64(49900), got.Amount)
	assert.False(t, got.IsMock)
	assert.Equal(t, 1, fake.gotData["payment_capture"])
	assert.Equal(t, "49900", fake.gotData["amount"])
	assert.Equal(t, "rzp_test_key", rp.KeyID())
}

func TestRazorpay_Errors(t *testing.T) {
	rp := newRazorpay(&fakeOrders{err: errors.New("BAD_REQUEST_ERROR")}, "k", time.Second)
	_, err := rp.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100})
	assert.ErrorContains(t, err, "BAD_REQUEST_ERROR")

	rp = newRazorpay(&fakeOrders{resp: map[string]interface{}{}}, "k", time.Second)
	_, err = rp.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100})
	assert.ErrorContains(t, err, "no id")
}

func TestRazorpay_Timeout(t *testing.T) {
	rp := newRazorpay(&fakeOrders{delay: 200 * time.Millisecond, resp: map[string]interface{}{"id": "late"}}, "k", 20*time.Millisecond)
	start := time.Now()
	_, err := rp.CreateOrder(context.Background(), CreateOrderRequest{Amount: 100})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestMock(t *testing.T) {
	m := NewMock("rzp_mock")
	got, err := m.CreateOrder(context.Background(), CreateOrderRequest{Amount: 900, Currency: "INR", Receipt: "r"})
	require.NoError(t, err)
	assert.True(t, got.IsMock)
	assert.True(t, strings.HasPrefix(got.ID, "mock_order_"))
	assert.Equal(t, int64(900), got.Amount)
	assert.Equal(t, "rzp_mock", m.KeyID())

	_, err = m.CreateOrder(context.Background(), CreateOrderRequest{Amount: 0})
	assert.Error(t, err)
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{}.CreateOrder(context.Background(), CreateOrderRequest{Amount: 1})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Empty(t, Unavailable{}.KeyID())
}

func TestReceipt(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	assert.Equal(t, "receipt_1700000000123_42", Receipt(now, 42))
}
