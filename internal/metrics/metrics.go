package metrics

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/tradepost/marketcore/internal/aws"
	"go.uber.org/zap"
)

// Metric names emitted by the core.
const (
	OrdersPlaced      = "OrdersPlaced"
	PaymentsConfirmed = "PaymentsConfirmed"
	DeliveriesFailed  = "DeliveriesFailed"
)

// Emitter pushes counters to CloudWatch. Metric failures are logged and
// swallowed; observability must never fail a transaction.
type Emitter struct {
	client    aws.CloudWatchAPI
	namespace string
	logger    *zap.Logger
}

// NewEmitter creates an Emitter for the given namespace. A nil client
// disables emission, which keeps local runs quiet.
func NewEmitter(client aws.CloudWatchAPI, namespace string, logger *zap.Logger) *Emitter {
	return &Emitter{client: client, namespace: namespace, logger: logger}
}

// Count emits a single unit-count data point.
func (e *Emitter) Count(ctx context.Context, name string, value float64) {
	if e == nil || e.client == nil {
		return
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(e.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: sdkaws.String(name),
				Unit:       cwtypes.StandardUnitCount,
				Value:      sdkaws.Float64(value),
			},
		},
	}
	if _, err := e.client.PutMetricData(ctx, input); err != nil {
		e.logger.Warn("put metric data failed", zap.String("metric", name), zap.Error(err))
	}
}
