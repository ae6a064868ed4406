package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/course-orderflow/internal/auth"
	"github.com/imrishuroy/course-orderflow/internal/idempotency"
	"github.com/imrishuroy/course-orderflow/internal/orders"
	"github.com/imrishuroy/course-orderflow/internal/payments"
	"github.com/imrishuroy/course-orderflow/internal/validation"
)

// PaymentService is the set of order operations the HTTP layer exposes.
type PaymentService interface {
	CreateOrder(ctx context.Context, userID, itemID int64, itemType string) (*payments.CheckoutSession, error)
	VerifyPayment(ctx context.Context, caller auth.Caller, req payments.VerifyRequest) (*orders.Order, error)
	HandleWebhook(ctx context.Context, body []byte, sig string) (*payments.WebhookResult, error)
	ReportFailure(ctx context.Context, caller auth.Caller, r payments.FailureReport) (*orders.Order, error)
	GetOrder(ctx context.Context, caller auth.Caller, orderID string) (*orders.Order, error)
	ListOrders(ctx context.Context, caller auth.Caller, limit int, cursor string) (*orders.Page, error)
	ListUserOrders(ctx context.Context, caller auth.Caller, userID int64, limit int, cursor string) (*orders.Page, error)
	UpdateStatus(ctx context.Context, caller auth.Caller, orderID string, next orders.Status) (*orders.Order, error)
}

// IdempotencyStore guards order creation against client retries.
type IdempotencyStore interface {
	Claim(ctx context.Context, key, orderID string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// HandlerConfig groups dependencies for the order and payment routes.
type HandlerConfig struct {
	Service PaymentService
	Auth    *auth.Authenticator

	// Idempotency is optional. Without it the Idempotency-Key header is ignored.
	Idempotency IdempotencyStore
	Logger      *slog.Logger
}

type handler struct {
	svc  PaymentService
	idem IdempotencyStore
	v    *validatorv10.Validate
	log  *slog.Logger
}

// RegisterOrdersRoutes registers the order and payment API.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	h := &handler{
		svc:  cfg.Service,
		idem: cfg.Idempotency,
		v:    validation.New(),
		log:  cfg.Logger,
	}
	if h.log == nil {
		h.log = slog.Default()
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// the gateway authenticates itself with the body signature
	r.POST("/api/payments/webhook", h.webhook)

	authed := r.Group("/api", cfg.Auth.Middleware())
	authed.POST("/orders", h.createOrder)
	authed.POST("/payments/create-order", h.createOrder)
	authed.POST("/orders/verify", h.verifyPayment)
	authed.POST("/payments/verify", h.verifyPayment)
	authed.POST("/payments/failure", h.reportFailure)
	authed.GET("/orders/:id", h.getOrder)
	authed.GET("/orders/user/:userId", h.listUserOrders)

	admin := authed.Group("", auth.RequireAdmin())
	admin.GET("/orders", h.listOrders)
	admin.PUT("/orders/:id/status", h.updateStatus)
}

type createOrderResponse struct {
	Success bool `json:"success"`
	*payments.CheckoutSession
}

func (h *handler) createOrder(c *gin.Context) {
	ctx := c.Request.Context()
	caller, _ := auth.FromGin(c)

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	// keys are scoped per user so two users cannot collide
	var idempKey string
	if key := c.GetHeader("Idempotency-Key"); key != "" && h.idem != nil {
		idempKey = idempotency.CreateOrderKey(caller.UserID, key)
		rec, err := h.idem.Claim(ctx, idempKey, "")
		if err != nil {
			h.log.ErrorContext(ctx, "idempotency claim failed", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed"})
			return
		}
		if rec != nil {
			replay(c, rec)
			return
		}
	}

	session, err := h.svc.CreateOrder(ctx, caller.UserID, req.ItemID, req.ItemType)
	if err != nil {
		if idempKey != "" {
			if mErr := h.idem.MarkFailed(ctx, idempKey, err.Error()); mErr != nil {
				h.log.WarnContext(ctx, "idempotency mark failed", slog.String("error", mErr.Error()))
			}
		}
		h.writeError(c, err)
		return
	}

	body, err := json.Marshal(createOrderResponse{Success: true, CheckoutSession: session})
	if err != nil {
		h.writeError(c, err)
		return
	}
	if idempKey != "" {
		if err := h.idem.MarkDone(ctx, idempKey, string(body), http.StatusCreated); err != nil {
			// the order exists; a retry will see IN_PROGRESS until the record expires
			h.log.WarnContext(ctx, "idempotency mark done failed",
				slog.String("order_id", session.DBOrderID),
				slog.String("error", err.Error()),
			)
		}
	}

	c.Header("Location", fmt.Sprintf("/api/orders/%s", session.DBOrderID))
	c.Data(http.StatusCreated, "application/json", body)
}

func replay(c *gin.Context, rec *idempotency.Record) {
	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" {
			status := rec.ResponseStatus
			if status == 0 {
				status = http.StatusOK
			}
			c.Data(status, "application/json", []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusOK, gin.H{"db_order_id": rec.OrderID})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
	}
}

func (h *handler) getOrder(c *gin.Context) {
	caller, _ := auth.FromGin(c)
	o, err := h.svc.GetOrder(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

func (h *handler) listOrders(c *gin.Context) {
	caller, _ := auth.FromGin(c)
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	page, err := h.svc.ListOrders(c.Request.Context(), caller, limit, c.Query("cursor"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	writePage(c, page)
}

func (h *handler) listUserOrders(c *gin.Context) {
	caller, _ := auth.FromGin(c)
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	page, err := h.svc.ListUserOrders(c.Request.Context(), caller, userID, limit, c.Query("cursor"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	writePage(c, page)
}

func (h *handler) updateStatus(c *gin.Context) {
	caller, _ := auth.FromGin(c)
	var req validation.UpdateStatusRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	o, err := h.svc.UpdateStatus(c.Request.Context(), caller, c.Param("id"), orders.Status(req.Status))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

// parseLimit reads ?limit. Zero means the service default.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
		return 0, false
	}
	return n, true
}

func writePage(c *gin.Context, page *orders.Page) {
	list := page.Orders
	if list == nil {
		list = []orders.Order{}
	}
	resp := gin.H{"orders": list}
	if page.NextCursor != "" {
		resp["next_cursor"] = page.NextCursor
	}
	c.JSON(http.StatusOK, resp)
}
