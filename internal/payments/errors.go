package payments

import (
	"errors"

	"github.com/imrishuroy/course-orderflow/internal/orders"
)

// Errors returned by Service. Callers match them with errors.Is; the HTTP layer
// maps each one to a status code.
var (
	ErrInvalidItemType    = orders.ErrInvalidItemType
	ErrInvalidAmount      = orders.ErrInvalidAmount
	ErrItemNotFound       = errors.New("item not found")
	ErrGateway            = errors.New("payment gateway error")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrOrderNotFound      = errors.New("order not found")
	ErrSignatureInvalid   = errors.New("payment signature invalid")
	ErrInvalidSignature   = errors.New("webhook signature invalid")
	ErrInvalidPayload     = errors.New("invalid webhook payload")
	ErrUnauthorized       = errors.New("not allowed to access this order")
	ErrInvalidTransition  = errors.New("invalid status transition")
)
