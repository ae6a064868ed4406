package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/imrishuroy/course-orderflow/internal/auth"
	"github.com/imrishuroy/course-orderflow/internal/catalog"
	"github.com/imrishuroy/course-orderflow/internal/earnings"
	"github.com/imrishuroy/course-orderflow/internal/orders"
	"github.com/imrishuroy/course-orderflow/internal/signature"
)

// Confirmation sources, recorded on the payment.confirmed event.
const (
	SourceVerify  = "verify"
	SourceWebhook = "webhook"
	SourceAdmin   = "admin"
)

// EventPaymentCaptured is the only webhook event that changes order state.
const EventPaymentCaptured = "payment.captured"

// VerifyRequest is the checkout callback the client forwards after paying.
type VerifyRequest struct {
	GatewayOrderRef   string
	GatewayPaymentRef string
	Signature         string
	// OrderID is the local order id. When empty the order is found by GatewayOrderRef.
	OrderID string
}

// VerifyPayment checks the checkout signature and confirms the order as paid.
// A bad signature is rejected before the order is read.
func (s *Service) VerifyPayment(ctx context.Context, caller auth.Caller, req VerifyRequest) (*orders.Order, error) {
	msg := signature.PaymentMessage(req.GatewayOrderRef, req.GatewayPaymentRef)
	if err := s.paymentSig.Verify(msg, req.Signature); err != nil {
		if errors.Is(err, signature.ErrNotConfigured) {
			s.log.Error("verify payment: key secret not configured")
			return nil, ErrGatewayUnavailable
		}
		s.log.Warn("verify payment: signature mismatch",
			slog.String("gateway_order_ref", req.GatewayOrderRef),
			slog.Int64("user_id", caller.UserID),
		)
		return nil, ErrSignatureInvalid
	}

	var o *orders.Order
	var err error
	if req.OrderID != "" {
		o, err = s.orders.Get(ctx, req.OrderID)
	} else {
		o, err = s.orders.GetByGatewayRef(ctx, req.GatewayOrderRef)
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	// the signature covers the gateway ref, not the local id
	if o.GatewayOrderRef != req.GatewayOrderRef {
		s.log.Warn("verify payment: signed ref does not match order",
			slog.String("order_id", o.OrderID),
			slog.String("gateway_order_ref", req.GatewayOrderRef),
		)
		return nil, ErrSignatureInvalid
	}
	if !caller.CanAccess(o.UserID) {
		return nil, ErrUnauthorized
	}
	if o.IsMock && !s.allowMock {
		return nil, ErrSignatureInvalid
	}

	details, _ := json.Marshal(map[string]string{"razorpay_payment_id": req.GatewayPaymentRef})
	return s.confirmPaid(ctx, o, details, SourceVerify)
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity json.RawMessage `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// WebhookResult reports what a webhook delivery did.
type WebhookResult struct {
	Event   string
	Handled bool
	OrderID string
}

// HandleWebhook authenticates a raw gateway notification and applies a captured
// payment. Unknown orders and other event types are acknowledged without effect.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, sig string) (*WebhookResult, error) {
	if err := s.webhookSig.Verify(body, sig); err != nil {
		if errors.Is(err, signature.ErrNotConfigured) {
			s.log.Error("webhook: secret not configured")
		}
		return nil, ErrInvalidSignature
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	res := &WebhookResult{Event: ev.Event}
	if ev.Event != EventPaymentCaptured {
		s.log.Info("webhook: event ignored", slog.String("event", ev.Event))
		return res, nil
	}

	var entity paymentEntity
	if len(ev.Payload.Payment.Entity) == 0 {
		return nil, fmt.Errorf("%w: missing payment entity", ErrInvalidPayload)
	}
	if err := json.Unmarshal(ev.Payload.Payment.Entity, &entity); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	log := s.log.With(slog.String("gateway_order_ref", entity.OrderID), slog.String("payment_id", entity.ID))

	o, err := s.orders.GetByGatewayRef(ctx, entity.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if o == nil {
		log.Warn("webhook: no order for gateway ref")
		return res, nil
	}
	if entity.Amount != 0 && entity.Amount != o.Amount {
		log.Warn("webhook: captured amount differs from order",
			slog.Int64("captured", entity.Amount),
			slog.Int64("expected", o.Amount),
		)
	}

	if _, err := s.confirmPaid(ctx, o, ev.Payload.Payment.Entity, SourceWebhook); err != nil {
		return nil, err
	}
	res.Handled = true
	res.OrderID = o.OrderID
	return res, nil
}

// confirmPaid is the single path to paid for every trigger. The status change
// happens once and payment.confirmed goes out with it, before any side effect
// can fail. The entitlement and earnings steps run on every call and are
// guarded by their own conditional writes, so a retry finishes what a failed
// attempt left undone.
func (s *Service) confirmPaid(ctx context.Context, o *orders.Order, details json.RawMessage, source string) (*orders.Order, error) {
	log := s.log.With(
		slog.String("order_id", o.OrderID),
		slog.String("gateway_order_ref", o.GatewayOrderRef),
		slog.String("source", source),
	)

	transitioned, err := s.orders.MarkPaid(ctx, o.OrderID, details)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("mark paid: %w", err)
	}
	if transitioned {
		log.Info("order paid", slog.Int64("amount", o.Amount))
		s.publishConfirmed(ctx, o, source, log)
	}

	if err := s.applyEntitlements(ctx, o, log); err != nil {
		return nil, err
	}

	updated, err := s.orders.Get(ctx, o.OrderID)
	if err != nil {
		return nil, fmt.Errorf("reload order: %w", err)
	}
	if updated == nil {
		return nil, ErrOrderNotFound
	}
	return updated, nil
}

func (s *Service) applyEntitlements(ctx context.Context, o *orders.Order, log *slog.Logger) error {
	switch o.ItemType() {
	case orders.ItemCertificate:
		flipped, err := s.catalog.UnlockCertificate(ctx, *o.ApplicationID)
		if err != nil {
			return fmt.Errorf("unlock certificate: %w", err)
		}
		if flipped {
			log.Info("certificate unlocked", slog.Int64("application_id", *o.ApplicationID))
		}
	case orders.ItemCourse:
		if err := s.recordEarning(ctx, o, log); err != nil {
			return err
		}
		fallthrough
	case orders.ItemProject:
		if err := s.catalog.UnlockEnrollment(ctx, o.UserID, string(o.ItemType()), o.ItemID()); err != nil {
			return fmt.Errorf("unlock enrollment: %w", err)
		}
	}
	return nil
}

func (s *Service) recordEarning(ctx context.Context, o *orders.Order, log *slog.Logger) error {
	course, err := s.catalog.GetCourse(ctx, *o.CourseID)
	if errors.Is(err, catalog.ErrNotFound) {
		// the sale stands; there is no instructor left to credit
		log.Warn("course gone, earning skipped", slog.Int64("course_id", *o.CourseID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load course for earnings: %w", err)
	}
	if course.InstructorID == nil {
		return nil
	}
	e := earnings.New(o.OrderID, *course.InstructorID, course.ID, o.Amount)
	created, err := s.earnings.Record(ctx, e)
	if err != nil {
		return fmt.Errorf("record earning: %w", err)
	}
	if created {
		log.Info("instructor earning recorded",
			slog.Int64("instructor_id", e.InstructorID),
			slog.Int64("platform_fee", e.PlatformFee),
			slog.Int64("net_amount", e.NetAmount),
		)
	}
	return nil
}
