// Package telemetry implements sweep and notification metrics for the
// CloudWatch and Prometheus backends.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"adlifecycle/internal/scheduler"
	"adlifecycle/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ scheduler.SweepMetrics = (*CloudWatchSweepMetrics)(nil)

// CloudWatchSweepMetrics emits one PutMetricData call per sweep:
//   - SweepDuration (ms), SweepProcessed, SweepErrors: no dims
//   - AdsDeleted, AdsAutoRenewed, AdsExpired: no dims
//   - WarningsSent: Dims {Stage}
//
// Notification failures are emitted individually as NotificationFailure {Sink}.
type CloudWatchSweepMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchSweepMetrics creates a recorder publishing to namespace. An
// empty namespace uses types.MetricNamespace.
func NewCloudWatchSweepMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchSweepMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchSweepMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordSweep publishes the sweep outcome. Failures are logged, never returned.
func (m *CloudWatchSweepMetrics) RecordSweep(ctx context.Context, result scheduler.SweepResult, duration time.Duration) {
	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricSweepDuration),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
		},
		count(types.MetricSweepProcessed, result.Processed),
		count(types.MetricSweepErrors, len(result.Errors)),
		count(types.MetricAdsDeleted, result.Deleted),
		count(types.MetricAdsAutoRenewed, result.AutoRenewed),
		count(types.MetricAdsExpired, result.Expired),
		warning("warning_7d", result.Notified7d),
		warning("warning_24h", result.Notified24h),
		warning("deletion_warning", result.NotifiedDeletion),
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record sweep metrics",
			"error", err.Error(),
			"processed", result.Processed,
		)
	}
}

// RecordNotificationFailure emits NotificationFailure for one sink.
func (m *CloudWatchSweepMetrics) RecordNotificationFailure(ctx context.Context, sink string) {
	datum := count(types.MetricNotificationFails, 1)
	datum.Dimensions = []cwtypes.Dimension{
		{Name: aws.String(types.DimSink), Value: aws.String(sink)},
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record notification failure metric",
			"error", err.Error(),
			"sink", sink,
		)
	}
}

func count(name string, v int) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(float64(v)),
		Unit:       cwtypes.StandardUnitCount,
	}
}

func warning(stage string, v int) cwtypes.MetricDatum {
	d := count(types.MetricWarningsSent, v)
	d.Dimensions = []cwtypes.Dimension{
		{Name: aws.String(types.DimStage), Value: aws.String(stage)},
	}
	return d
}
