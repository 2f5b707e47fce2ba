package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tradepost/marketcore/internal/aws"
	"github.com/tradepost/marketcore/internal/config"
	"github.com/tradepost/marketcore/internal/handlers"
	"github.com/tradepost/marketcore/internal/idempotency"
	"github.com/tradepost/marketcore/internal/incentives"
	"github.com/tradepost/marketcore/internal/ledger"
	"github.com/tradepost/marketcore/internal/market"
	"github.com/tradepost/marketcore/internal/metrics"
	"github.com/tradepost/marketcore/internal/notify"
	"github.com/tradepost/marketcore/internal/orders"
	"github.com/tradepost/marketcore/internal/stock"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterMarketRoutes(r, cfg)

	return r
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	idempTable := os.Getenv("IDEMPOTENCY_TABLE")
	svc := market.New(market.Config{
		Stock:            stock.NewStore(clients.DynamoDB, os.Getenv("STOCK_TABLE"), os.Getenv("HIDDEN_TABLE")),
		Orders:           orders.NewStore(clients.DynamoDB, os.Getenv("ORDERS_TABLE")),
		Idempotency:      idempotency.NewStore(clients.DynamoDB, idempTable),
		IdempotencyTable: idempTable,
		Ledger:           ledger.NewStore(clients.DynamoDB, os.Getenv("PAYMENTS_TABLE"), os.Getenv("EVENTS_TABLE"), os.Getenv("FAILED_DELIVERIES_TABLE")),
		Incentives:       incentives.NewStore(clients.DynamoDB, os.Getenv("DISCOUNTS_TABLE"), os.Getenv("REWARDS_TABLE")),
		Notifier:         notify.NewQueueNotifier(clients.SQS, os.Getenv("NOTIFY_QUEUE_URL")),
		Metrics:          metrics.NewEmitter(clients.CloudWatch, "MarketCore", logger),
		Logger:           logger,
		TTLWindow:        48 * time.Hour,
	})

	r := setupRouter(handlers.HandlerConfig{
		Service:  svc,
		Settings: config.NewStore(clients.DynamoDB, os.Getenv("CONFIG_TABLE")),
	})

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		logger.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
