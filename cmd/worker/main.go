package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/course-orderflow/internal/aws"
	"github.com/imrishuroy/course-orderflow/internal/config"
	"github.com/imrishuroy/course-orderflow/internal/idempotency"
	"github.com/imrishuroy/course-orderflow/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	log := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	if err := cfg.ValidateWorker(); err != nil {
		log.Error("invalid config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx, aws.Options{Region: cfg.AWS.Region, Endpoint: cfg.AWS.Endpoint})
	if err != nil {
		log.Error("failed to init aws clients", slog.Any("error", err))
		os.Exit(1)
	}

	p := NewProcessor(
		idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Idempotency.TTL),
		aws.NewMetricsRecorder(clients.CloudWatch, cfg.Metrics.Namespace),
		log,
	)

	// If RUN_LOCAL=true, process one event from LOCAL_SQS_BODY and exit.
	if cfg.Server.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"type":"payment.confirmed","order_id":"local-order-1","item_type":"course","item_id":1,"amount":49900,"currency":"INR","source":"verify"}`
		}
		resp, err := p.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{{MessageId: "local-1", Body: body}}})
		if err != nil || len(resp.BatchItemFailures) > 0 {
			log.Error("local handler failed", slog.Any("error", err), slog.Int("failures", len(resp.BatchItemFailures)))
			os.Exit(1)
		}
		return
	}

	lambda.Start(p.Handle)
}
