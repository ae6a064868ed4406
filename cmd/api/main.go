package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/course-orderflow/internal/auth"
	"github.com/imrishuroy/course-orderflow/internal/aws"
	"github.com/imrishuroy/course-orderflow/internal/catalog"
	"github.com/imrishuroy/course-orderflow/internal/config"
	"github.com/imrishuroy/course-orderflow/internal/earnings"
	"github.com/imrishuroy/course-orderflow/internal/gateway"
	"github.com/imrishuroy/course-orderflow/internal/handlers"
	"github.com/imrishuroy/course-orderflow/internal/idempotency"
	"github.com/imrishuroy/course-orderflow/internal/logging"
	"github.com/imrishuroy/course-orderflow/internal/orders"
	"github.com/imrishuroy/course-orderflow/internal/payments"
	"github.com/imrishuroy/course-orderflow/internal/signature"
)

func setupRouter(log *slog.Logger, cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(log))

	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

// gatewaySetup is what the gateway mode decides: who creates orders, which
// secret signs checkout callbacks and whether mock orders may be paid.
type gatewaySetup struct {
	client    gateway.Client
	paySecret string
	allowMock bool
}

func selectGateway(cfg config.GatewayConfig, log *slog.Logger) gatewaySetup {
	switch {
	case cfg.Mode == config.ModeMock:
		log.Warn("payment gateway in mock mode; orders are not charged")
		keyID := cfg.KeyID
		if keyID == "" {
			keyID = "rzp_test_mock"
		}
		return gatewaySetup{client: gateway.NewMock(keyID), paySecret: cfg.MockSecret, allowMock: true}
	case cfg.Configured():
		return gatewaySetup{
			client:    gateway.NewRazorpay(cfg.KeyID, cfg.KeySecret, cfg.Timeout),
			paySecret: cfg.KeySecret,
		}
	}
	log.Error("razorpay credentials missing; order creation and verification will fail")
	return gatewaySetup{client: gateway.Unavailable{}}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	log := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	if err := cfg.ValidateAPI(); err != nil {
		log.Error("invalid config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx, aws.Options{Region: cfg.AWS.Region, Endpoint: cfg.AWS.Endpoint})
	if err != nil {
		log.Error("failed to init aws clients", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := catalog.OpenMySQL(cfg.Database.DSN, catalog.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Error("failed to open catalog database", slog.Any("error", err))
		os.Exit(1)
	}

	gw := selectGateway(cfg.Gateway, log)
	deps := payments.Deps{
		Orders:          orders.NewStore(clients.DynamoDB, cfg.Tables.Orders),
		Earnings:        earnings.NewStore(clients.DynamoDB, cfg.Tables.Earnings),
		Catalog:         catalog.NewRepo(db),
		Gateway:         gw.client,
		PaymentVerifier: signature.NewVerifier(gw.paySecret),
		WebhookVerifier: signature.NewVerifier(cfg.Gateway.WebhookSecret),
		Logger:          log,
		AllowMock:       gw.allowMock,
	}
	if cfg.Queue.URL != "" {
		deps.Events = aws.NewPublisher(clients.SQS, cfg.Queue.URL)
	} else {
		log.Warn("no payments queue configured; payment.confirmed events are not published")
	}
	if cfg.Gateway.WebhookSecret == "" {
		log.Warn("webhook secret missing; every webhook will be rejected")
	}

	r := setupRouter(log, handlers.HandlerConfig{
		Service:     payments.New(deps),
		Auth:        auth.NewAuthenticator(cfg.Auth.JWTSecret),
		Idempotency: idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Idempotency.TTL),
		Logger:      log,
	})

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.Server.RunLocal {
		log.Info("running local server", slog.String("addr", cfg.Server.Addr))
		if err := r.Run(cfg.Server.Addr); err != nil {
			log.Error("local server stopped", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
