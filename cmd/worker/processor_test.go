package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/course-orderflow/internal/aws"
	"github.com/imrishuroy/course-orderflow/internal/idempotency"
	"github.com/imrishuroy/course-orderflow/internal/payments"
	"github.com/imrishuroy/course-orderflow/internal/testutil"
)

type fakeMetrics struct {
	puts [][]aws.Metric
	err  error
}

func (f *fakeMetrics) Put(_ context.Context, metrics ...aws.Metric) error {
	if f.err != nil {
		return f.err
	}
	f.puts = append(f.puts, metrics)
	return nil
}

func newTestProcessor() (*Processor, *idempotency.Store, *fakeMetrics) {
	mock := testutil.NewMemoryDynamo(testutil.Table{Name: "idempotency", PartitionKey: "idempotency_key"})
	store := idempotency.NewStore(mock, "idempotency", 48*time.Hour)
	metrics := &fakeMetrics{}
	return NewProcessor(store, metrics, slog.New(slog.NewTextHandler(io.Discard, nil))), store, metrics
}

func confirmedMessage(t *testing.T, id string, ev payments.PaymentConfirmed) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

func paid(orderID string) payments.PaymentConfirmed {
	return payments.PaymentConfirmed{
		Type:     payments.EventTypePaymentConfirmed,
		OrderID:  orderID,
		UserID:   42,
		ItemType: "course",
		ItemID:   7,
		Amount:   49900,
		Currency: "INR",
		Source:   payments.SourceVerify,
	}
}

func TestProcessor_RecordsOncePerOrder(t *testing.T) {
	p, store, metrics := newTestProcessor()
	ctx := context.Background()

	ev := events.SQSEvent{Records: []events.SQSMessage{
		confirmedMessage(t, "m1", paid("o1")),
		confirmedMessage(t, "m2", paid("o1")), // redelivery
	}}
	resp, err := p.Handle(ctx, ev)
	if err != nil {
		t.Fatalf("unexpected worker error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("expected no failures, got %+v", resp.BatchItemFailures)
	}
	if len(metrics.puts) != 1 {
		t.Fatalf("expected metrics once, got %d", len(metrics.puts))
	}
	got := metrics.puts[0]
	if len(got) != 2 || got[0].Name != MetricPaymentsConfirmed || got[1].Name != MetricRevenue || got[1].Value != 49900 {
		t.Fatalf("unexpected metrics %+v", got)
	}
	if got[0].Dimensions["ItemType"] != "course" || got[1].Dimensions["Currency"] != "INR" {
		t.Fatalf("unexpected dimensions %+v", got)
	}

	rec, err := store.Get(ctx, idempotency.PaymentConfirmedKey("o1"))
	if err != nil || rec == nil {
		t.Fatalf("expected idempotency record, got %v, %v", rec, err)
	}
	if rec.Status != idempotency.StatusDone {
		t.Fatalf("expected DONE, got %s", rec.Status)
	}
}

func TestProcessor_MockPaymentHasNoRevenue(t *testing.T) {
	p, _, metrics := newTestProcessor()
	ev := paid("o2")
	ev.IsMock = true

	if _, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{confirmedMessage(t, "m1", ev)}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(metrics.puts) != 1 || len(metrics.puts[0]) != 1 {
		t.Fatalf("expected only the count metric, got %+v", metrics.puts)
	}
}

func TestProcessor_ReportsBadMessagesIndividually(t *testing.T) {
	p, _, metrics := newTestProcessor()

	ev := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "bad", Body: "{not json"},
		confirmedMessage(t, "good", paid("o3")),
		{MessageId: "other", Body: `{"type":"order.created","order_id":"o4"}`},
	}}
	resp, err := p.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "bad" {
		t.Fatalf("expected only the bad message to fail, got %+v", resp.BatchItemFailures)
	}
	if len(metrics.puts) != 1 {
		t.Fatalf("expected one metrics put, got %d", len(metrics.puts))
	}
}

func TestProcessor_MetricsFailureRetries(t *testing.T) {
	p, store, metrics := newTestProcessor()
	ctx := context.Background()
	metrics.err = errors.New("cloudwatch throttled")
	msg := confirmedMessage(t, "m1", paid("o5"))

	resp, _ := p.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{msg}})
	if len(resp.BatchItemFailures) != 1 {
		t.Fatalf("expected the message to be retried, got %+v", resp)
	}
	rec, _ := store.Get(ctx, idempotency.PaymentConfirmedKey("o5"))
	if rec == nil || rec.Status != idempotency.StatusFailed {
		t.Fatalf("expected FAILED record, got %+v", rec)
	}

	// the redelivery takes over the failed record
	metrics.err = nil
	resp, _ = p.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{msg}})
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("expected retry to succeed, got %+v", resp)
	}
	if len(metrics.puts) != 1 {
		t.Fatalf("expected metrics after retry, got %d", len(metrics.puts))
	}
}

func TestProcessor_MissingOrderID(t *testing.T) {
	p, _, _ := newTestProcessor()
	ev := paid("")
	resp, _ := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{confirmedMessage(t, "m1", ev)}})
	if len(resp.BatchItemFailures) != 1 {
		t.Fatalf("expected failure for missing order id, got %+v", resp)
	}
}
