package validation

// CreateOrderRequest is the payload for POST /api/orders and /api/payments/create-order
type CreateOrderRequest struct {
	ItemID   int64  `json:"item_id" validate:"required,gt=0"`
	ItemType string `json:"item_type" validate:"required,oneof=course project internship_certificate certificate"`
}

// VerifyPaymentRequest is the checkout callback forwarded by the client.
type VerifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required,hexadecimal"`
	DBOrderID         string `json:"db_order_id,omitempty" validate:"omitempty,uuid"` // falls back to razorpay_order_id
}

// ReportFailureRequest is the payload for POST /api/payments/failure.
// One of DBOrderID or RazorpayOrderID identifies the order.
type ReportFailureRequest struct {
	DBOrderID       string `json:"db_order_id,omitempty" validate:"omitempty,uuid"`
	RazorpayOrderID string `json:"razorpay_order_id,omitempty"`
	Reason          string `json:"reason" validate:"max=500"`
}

// UpdateStatusRequest is the payload for PUT /api/orders/:id/status
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=created paid failed"`
}
