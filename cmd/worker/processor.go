package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/tradepost/marketcore/internal/aws"
	"github.com/tradepost/marketcore/internal/ledger"
	"github.com/tradepost/marketcore/internal/metrics"
)

// Processor consumes delivery-failure reports from the front end and records
// them in the failure ledger so RetryDelivery can find them later.
type Processor struct {
	ledger  *ledger.Store
	metrics *metrics.Emitter
	logger  *zap.Logger
}

// NewProcessor creates a worker processor with AWS clients injected.
func NewProcessor(clients *aws.AWSClients, paymentsTable, eventsTable, failuresTable string, logger *zap.Logger) *Processor {
	return &Processor{
		ledger:  ledger.NewStore(clients.DynamoDB, paymentsTable, eventsTable, failuresTable),
		metrics: metrics.NewEmitter(clients.CloudWatch, "MarketCore", logger),
		logger:  logger,
	}
}

// Handle receives an SQS batch event and processes each message. A returned
// error makes the runtime retry the batch; duplicates are harmless because
// recording a failure is idempotent per order.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker error", zap.Error(err))
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var report FailureReport
	if err := json.Unmarshal([]byte(rec.Body), &report); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if report.OrderID == "" || report.RequesterID == "" {
		return fmt.Errorf("incomplete failure report: %q", rec.Body)
	}

	p.logger.Info("recording delivery failure",
		zap.String("order_id", report.OrderID),
		zap.String("requester_id", report.RequesterID))

	if err := p.ledger.EnqueueFailedDelivery(ctx, report.OrderID, report.RequesterID); err != nil {
		return fmt.Errorf("record delivery failure: %w", err)
	}
	if err := p.ledger.AppendEvent(ctx, fmt.Sprintf("delivery for order %s to %s failed", report.OrderID, report.RequesterID)); err != nil {
		p.logger.Warn("append event failed", zap.String("order_id", report.OrderID), zap.Error(err))
	}
	p.metrics.Count(ctx, metrics.DeliveriesFailed, 1)
	return nil
}
