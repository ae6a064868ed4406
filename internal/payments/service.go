// Package payments runs the order lifecycle: creating gateway orders,
// confirming payments from the client or the gateway webhook, and applying the
// entitlements and earnings a paid order grants.
package payments

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/course-orderflow/internal/catalog"
	"github.com/imrishuroy/course-orderflow/internal/earnings"
	"github.com/imrishuroy/course-orderflow/internal/gateway"
	"github.com/imrishuroy/course-orderflow/internal/orders"
	"github.com/imrishuroy/course-orderflow/internal/signature"
)

// OrderStore is the ledger of orders.
type OrderStore interface {
	Create(ctx context.Context, o orders.Order) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	GetByGatewayRef(ctx context.Context, ref string) (*orders.Order, error)
	MarkPaid(ctx context.Context, orderID string, details json.RawMessage) (bool, error)
	MarkFailed(ctx context.Context, orderID, reason string) error
	ListByUser(ctx context.Context, userID int64, limit int, cursor string) (*orders.Page, error)
	ListAll(ctx context.Context, limit int, cursor string) (*orders.Page, error)
}

// EarningsRecorder inserts an earning at most once per order.
type EarningsRecorder interface {
	Record(ctx context.Context, e earnings.Earning) (bool, error)
}

// Catalog prices items and unlocks what a paid order grants.
type Catalog interface {
	GetCourse(ctx context.Context, id int64) (*catalog.Course, error)
	GetProject(ctx context.Context, id int64) (*catalog.Project, error)
	GetApplication(ctx context.Context, id int64) (*catalog.Application, error)
	UnlockCertificate(ctx context.Context, applicationID int64) (bool, error)
	UnlockEnrollment(ctx context.Context, userID int64, itemType string, itemID int64) error
}

// EventPublisher sends lifecycle events downstream.
type EventPublisher interface {
	PublishJSON(ctx context.Context, v any, attributes map[string]string) error
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Orders   OrderStore
	Earnings EarningsRecorder
	Catalog  Catalog
	Gateway  gateway.Client
	// PaymentVerifier checks checkout signatures (gateway key secret).
	PaymentVerifier *signature.Verifier
	// WebhookVerifier checks webhook bodies (webhook secret).
	WebhookVerifier *signature.Verifier
	// Events may be nil.
	Events EventPublisher
	Logger *slog.Logger
	// AllowMock accepts payments for orders created by the mock gateway.
	AllowMock bool
}

// Service is the order lifecycle manager.
type Service struct {
	orders     OrderStore
	earnings   EarningsRecorder
	catalog    Catalog
	gateway    gateway.Client
	paymentSig *signature.Verifier
	webhookSig *signature.Verifier
	events     EventPublisher
	log        *slog.Logger
	allowMock  bool

	nowFunc func() time.Time
	newID   func() string
}

// New builds a Service. A nil Gateway behaves as unconfigured.
func New(d Deps) *Service {
	s := &Service{
		orders:     d.Orders,
		earnings:   d.Earnings,
		catalog:    d.Catalog,
		gateway:    d.Gateway,
		paymentSig: d.PaymentVerifier,
		webhookSig: d.WebhookVerifier,
		events:     d.Events,
		log:        d.Logger,
		allowMock:  d.AllowMock,
		nowFunc:    time.Now,
		newID:      uuid.NewString,
	}
	if s.gateway == nil {
		s.gateway = gateway.Unavailable{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}
