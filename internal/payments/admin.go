package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/imrishuroy/course-orderflow/internal/auth"
	"github.com/imrishuroy/course-orderflow/internal/orders"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}

// GetOrder returns an order its owner or an admin may see.
func (s *Service) GetOrder(ctx context.Context, caller auth.Caller, orderID string) (*orders.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if !caller.CanAccess(o.UserID) {
		return nil, ErrUnauthorized
	}
	return o, nil
}

// ListOrders lists every order, newest first. Admin only.
func (s *Service) ListOrders(ctx context.Context, caller auth.Caller, limit int, cursor string) (*orders.Page, error) {
	if !caller.IsAdmin() {
		return nil, ErrUnauthorized
	}
	return s.orders.ListAll(ctx, clampLimit(limit), cursor)
}

// ListUserOrders lists one user's orders, newest first.
func (s *Service) ListUserOrders(ctx context.Context, caller auth.Caller, userID int64, limit int, cursor string) (*orders.Page, error) {
	if !caller.CanAccess(userID) {
		return nil, ErrUnauthorized
	}
	return s.orders.ListByUser(ctx, userID, clampLimit(limit), cursor)
}

// FailureReport is a client-side payment failure. OrderID wins over GatewayOrderRef.
type FailureReport struct {
	OrderID         string
	GatewayOrderRef string
	Reason          string
}

// ReportFailure records a client-side payment failure. Only created orders move
// to failed; reporting an already failed order again is a no-op.
func (s *Service) ReportFailure(ctx context.Context, caller auth.Caller, r FailureReport) (*orders.Order, error) {
	var o *orders.Order
	var err error
	if r.OrderID != "" {
		o, err = s.orders.Get(ctx, r.OrderID)
	} else {
		o, err = s.orders.GetByGatewayRef(ctx, r.GatewayOrderRef)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if !caller.CanAccess(o.UserID) {
		return nil, ErrUnauthorized
	}
	if o.Status == orders.StatusFailed {
		return o, nil
	}
	if !o.Status.CanTransition(orders.StatusFailed) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, orders.StatusFailed)
	}
	reason := r.Reason
	if reason == "" {
		reason = "reported by client"
	}
	if err := s.markFailed(ctx, o, reason); err != nil {
		return nil, err
	}
	return s.reload(ctx, o.OrderID)
}

// UpdateStatus is the admin override. It obeys the same transitions as the
// automatic paths; overriding to paid runs the full confirmation.
func (s *Service) UpdateStatus(ctx context.Context, caller auth.Caller, orderID string, next orders.Status) (*orders.Order, error) {
	if !caller.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if !o.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}

	s.log.Info("admin status override",
		slog.String("order_id", orderID),
		slog.String("from", string(o.Status)),
		slog.String("to", string(next)),
		slog.Int64("admin_id", caller.UserID),
	)
	switch next {
	case orders.StatusPaid:
		details, _ := json.Marshal(map[string]any{"admin_override": true, "admin_id": caller.UserID})
		return s.confirmPaid(ctx, o, details, SourceAdmin)
	case orders.StatusFailed:
		if o.Status == orders.StatusFailed {
			return o, nil
		}
		if err := s.markFailed(ctx, o, "admin override"); err != nil {
			return nil, err
		}
		return s.reload(ctx, orderID)
	}
	// created -> created
	return o, nil
}

func (s *Service) markFailed(ctx context.Context, o *orders.Order, reason string) error {
	err := s.orders.MarkFailed(ctx, o.OrderID, reason)
	if errors.Is(err, orders.ErrStatusMismatch) {
		// lost a race with a confirmation
		return fmt.Errorf("%w: order is no longer created", ErrInvalidTransition)
	}
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	s.log.Info("order failed", slog.String("order_id", o.OrderID), slog.String("reason", reason))
	return nil
}

func (s *Service) reload(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("reload order: %w", err)
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}
