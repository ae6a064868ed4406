package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/course-orderflow/internal/auth"
	"github.com/imrishuroy/course-orderflow/internal/orders"
	"github.com/imrishuroy/course-orderflow/internal/payments"
	"github.com/imrishuroy/course-orderflow/internal/validation"
)

// maxWebhookBody caps the raw webhook body read into memory.
const maxWebhookBody = 1 << 20

// Signature headers, newest first.
var webhookSignatureHeaders = []string{"X-Signature", "X-Razorpay-Signature"}

func (h *handler) verifyPayment(c *gin.Context) {
	caller, _ := auth.FromGin(c)
	var req validation.VerifyPaymentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.svc.VerifyPayment(c.Request.Context(), caller, payments.VerifyRequest{
		GatewayOrderRef:   req.RazorpayOrderID,
		GatewayPaymentRef: req.RazorpayPaymentID,
		Signature:         req.RazorpaySignature,
		OrderID:           req.DBOrderID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment verified", "order": o})
}

func (h *handler) reportFailure(c *gin.Context) {
	caller, _ := auth.FromGin(c)
	var req validation.ReportFailureRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.svc.ReportFailure(c.Request.Context(), caller, payments.FailureReport{
		OrderID:         req.DBOrderID,
		GatewayOrderRef: req.RazorpayOrderID,
		Reason:          req.Reason,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": o})
}

// webhook must see the body exactly as sent; it is never rebound as JSON here.
func (h *handler) webhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body"})
		return
	}
	var sig string
	for _, name := range webhookSignatureHeaders {
		if sig = c.GetHeader(name); sig != "" {
			break
		}
	}
	if sig == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_signature"})
		return
	}

	res, err := h.svc.HandleWebhook(c.Request.Context(), body, sig)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "event": res.Event, "handled": res.Handled})
}

// writeError maps service errors to a status and a stable error code.
func (h *handler) writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, payments.ErrInvalidItemType):
		status, code = http.StatusBadRequest, "invalid_item_type"
	case errors.Is(err, payments.ErrInvalidAmount):
		status, code = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, payments.ErrSignatureInvalid):
		status, code = http.StatusBadRequest, "signature_invalid"
	case errors.Is(err, payments.ErrInvalidSignature):
		status, code = http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, payments.ErrInvalidPayload):
		status, code = http.StatusBadRequest, "invalid_payload"
	case errors.Is(err, orders.ErrInvalidCursor):
		status, code = http.StatusBadRequest, "invalid_cursor"
	case errors.Is(err, payments.ErrItemNotFound):
		status, code = http.StatusNotFound, "item_not_found"
	case errors.Is(err, payments.ErrOrderNotFound):
		status, code = http.StatusNotFound, "order_not_found"
	case errors.Is(err, payments.ErrUnauthorized):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, payments.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, payments.ErrGateway):
		status, code = http.StatusBadGateway, "gateway_error"
	case errors.Is(err, payments.ErrGatewayUnavailable):
		status, code = http.StatusServiceUnavailable, "gateway_unavailable"
	}

	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
	}
	c.JSON(status, gin.H{"error": code})
}
