package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"` // replayed verbatim
	ResponseStatus int       `dynamodbav:"response_status,omitempty"`
	Attempts       int       `dynamodbav:"attempts"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// Expired reports whether the record's TTL has passed. DynamoDB removes expired
// items lazily, so readers must not trust an item just because it is returned.
func (r Record) Expired(now time.Time) bool {
	return r.ExpiresAt > 0 && now.Unix() > r.ExpiresAt
}

// CreateOrderKey scopes a client Idempotency-Key to the calling user.
func CreateOrderKey(userID int64, clientKey string) string {
	return "create-order#" + itoa(userID) + "#" + clientKey
}

// PaymentConfirmedKey is the dedupe key for one payment.confirmed event.
func PaymentConfirmedKey(orderID string) string {
	return "payment-confirmed#" + orderID
}
