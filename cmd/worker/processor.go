package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/course-orderflow/internal/aws"
	"github.com/imrishuroy/course-orderflow/internal/idempotency"
	"github.com/imrishuroy/course-orderflow/internal/payments"
)

// Metric names published per confirmed payment.
const (
	MetricPaymentsConfirmed = "PaymentsConfirmed"
	MetricRevenue           = "RevenueMinorUnits"
)

// IdempotencyStore makes event handling at-most-once per order.
type IdempotencyStore interface {
	Claim(ctx context.Context, key, orderID string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// MetricsSink receives the worker's business metrics.
type MetricsSink interface {
	Put(ctx context.Context, metrics ...aws.Metric) error
}

// Processor consumes payment.confirmed events from SQS.
type Processor struct {
	idem    IdempotencyStore
	metrics MetricsSink
	log     *slog.Logger
}

// NewProcessor creates a worker processor.
func NewProcessor(idem IdempotencyStore, metrics MetricsSink, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{idem: idem, metrics: metrics, log: log}
}

// Handle processes a batch and reports failed messages individually, so one
// bad message does not redeliver the whole batch.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.ErrorContext(ctx, "worker error",
				slog.String("message_id", rec.MessageId),
				slog.String("error", err.Error()),
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg payments.PaymentConfirmed
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		// left for the DLQ
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.Type != payments.EventTypePaymentConfirmed {
		p.log.InfoContext(ctx, "skipping event", slog.String("type", msg.Type))
		return nil
	}
	if msg.OrderID == "" {
		return errors.New("payment.confirmed without order_id")
	}
	log := p.log.With(slog.String("order_id", msg.OrderID), slog.String("source", msg.Source))

	key := idempotency.PaymentConfirmedKey(msg.OrderID)
	existing, err := p.idem.Claim(ctx, key, msg.OrderID)
	if err != nil {
		return fmt.Errorf("claim %s: %w", key, err)
	}
	if existing != nil {
		switch existing.Status {
		case idempotency.StatusDone:
			log.InfoContext(ctx, "event already processed")
		case idempotency.StatusInProgress:
			log.InfoContext(ctx, "duplicate delivery while processing")
		}
		return nil
	}

	if err := p.metrics.Put(ctx, metricsFor(msg)...); err != nil {
		if mErr := p.idem.MarkFailed(ctx, key, err.Error()); mErr != nil {
			log.WarnContext(ctx, "idempotency mark failed", slog.String("error", mErr.Error()))
		}
		return err
	}

	result, _ := json.Marshal(map[string]string{"order_id": msg.OrderID, "status": "recorded"})
	if err := p.idem.MarkDone(ctx, key, string(result), 200); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	log.InfoContext(ctx, "payment recorded",
		slog.String("item_type", msg.ItemType),
		slog.Int64("amount", msg.Amount),
	)
	return nil
}

// metricsFor maps an event to its metrics. Mock payments count but earn nothing.
func metricsFor(msg payments.PaymentConfirmed) []aws.Metric {
	out := []aws.Metric{{
		Name:       MetricPaymentsConfirmed,
		Value:      1,
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: map[string]string{"ItemType": msg.ItemType, "Source": msg.Source},
	}}
	if !msg.IsMock && msg.Amount > 0 {
		out = append(out, aws.Metric{
			Name:       MetricRevenue,
			Value:      float64(msg.Amount),
			Unit:       cwtypes.StandardUnitNone,
			Dimensions: map[string]string{"Currency": msg.Currency},
		})
	}
	return out
}
