package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adlifecycle/internal/config"
	"adlifecycle/internal/lifecycle"
	"adlifecycle/internal/notifications"
	"adlifecycle/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSQS struct {
	sent []*sqs.SendMessageInput
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

type fakeCloudWatch struct{}

func (fakeCloudWatch) PutMetricData(context.Context, *cloudwatch.PutMetricDataInput, ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	return &cloudwatch.PutMetricDataOutput{}, nil
}

type recordingFailures struct {
	sinks []string
}

func (r *recordingFailures) RecordNotificationFailure(_ context.Context, sink string) {
	r.sinks = append(r.sinks, sink)
}

func notifyConfig(sinks ...string) *config.Config {
	return &config.Config{
		AWS: config.AWSConfig{NotificationQueue: "https://sqs.us-east-1.amazonaws.com/123/notifications"},
		Notify: config.NotifyConfig{
			Sinks:           sinks,
			BreakerFailures: 5,
		},
	}
}

func TestBuildNotifier_AllSinks(t *testing.T) {
	var feed []types.OwnerNotification
	var broker []types.OwnerNotification
	sqsClient := &fakeSQS{}

	n := BuildNotifier(notifyConfig(config.SinkFeed, config.SinkSQS, config.SinkAMQP), SinkClients{
		Feed: lifecycle.NotifierFunc(func(_ context.Context, n types.OwnerNotification) error {
			feed = append(feed, n)
			return nil
		}),
		SQS: sqsClient,
		AMQP: lifecycle.NotifierFunc(func(_ context.Context, n types.OwnerNotification) error {
			broker = append(broker, n)
			return nil
		}),
	}, nil, testLogger())

	fan, ok := n.(*notifications.FanoutSink)
	require.True(t, ok)
	assert.Equal(t, 3, fan.Len())

	err := n.Emit(context.Background(), types.OwnerNotification{ID: "n-1", AdID: "ad-1", Event: types.EventAdExpired})
	require.NoError(t, err)
	assert.Len(t, feed, 1)
	assert.Len(t, broker, 1)
	require.Len(t, sqsClient.sent, 1)
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123/notifications", aws.ToString(sqsClient.sent[0].QueueUrl))
}

func TestBuildNotifier_SkipsUnavailableSinks(t *testing.T) {
	n := BuildNotifier(notifyConfig(config.SinkFeed, config.SinkSQS), SinkClients{
		Feed: lifecycle.NotifierFunc(func(context.Context, types.OwnerNotification) error { return nil }),
	}, nil, testLogger())

	fan, ok := n.(*notifications.FanoutSink)
	require.True(t, ok)
	assert.Equal(t, 1, fan.Len())
}

func TestBuildNotifier_RecordsFailures(t *testing.T) {
	failures := &recordingFailures{}
	n := BuildNotifier(notifyConfig(config.SinkFeed), SinkClients{
		Feed: lifecycle.NotifierFunc(func(context.Context, types.OwnerNotification) error {
			return errors.New("db down")
		}),
	}, failures, testLogger())

	err := n.Emit(context.Background(), types.OwnerNotification{ID: "n-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed: ")
	assert.Equal(t, []string{config.SinkFeed}, failures.sinks)
}

func TestBuildMetrics(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		m := BuildMetrics(config.ObservabilityConfig{MetricsBackend: config.MetricsNone}, nil, testLogger())
		assert.Nil(t, m.Sweep)
		assert.Nil(t, m.Failures)
		assert.Nil(t, m.Prometheus)
	})

	t.Run("prometheus", func(t *testing.T) {
		m := BuildMetrics(config.ObservabilityConfig{MetricsBackend: config.MetricsPrometheus}, nil, testLogger())
		require.NotNil(t, m.Prometheus)
		assert.NotNil(t, m.Sweep)
		assert.NotNil(t, m.Failures)
		assert.NotNil(t, m.Prometheus.Handler())
	})

	t.Run("cloudwatch", func(t *testing.T) {
		m := BuildMetrics(config.ObservabilityConfig{
			MetricsBackend:  config.MetricsCloudWatch,
			MetricNamespace: "AdLifecycle",
		}, fakeCloudWatch{}, testLogger())
		assert.NotNil(t, m.Sweep)
		assert.NotNil(t, m.Failures)
		assert.Nil(t, m.Prometheus)
	})

	t.Run("cloudwatch without client", func(t *testing.T) {
		m := BuildMetrics(config.ObservabilityConfig{MetricsBackend: config.MetricsCloudWatch}, nil, testLogger())
		assert.Nil(t, m.Sweep)
	})
}

func TestNeedsAWS(t *testing.T) {
	assert.False(t, needsAWS(notifyConfig(config.SinkFeed, config.SinkAMQP)))
	assert.True(t, needsAWS(notifyConfig(config.SinkSQS)))

	cfg := notifyConfig(config.SinkFeed)
	cfg.Observability.MetricsBackend = config.MetricsCloudWatch
	assert.True(t, needsAWS(cfg))
}

func TestNewLogger_Levels(t *testing.T) {
	ctx := context.Background()
	assert.True(t, NewLogger("debug").Enabled(ctx, slog.LevelDebug))
	assert.False(t, NewLogger("info").Enabled(ctx, slog.LevelDebug))
	assert.False(t, NewLogger("warn").Enabled(ctx, slog.LevelInfo))
	assert.True(t, NewLogger("error").Enabled(ctx, slog.LevelError))
	assert.True(t, NewLogger("bogus").Enabled(ctx, slog.LevelInfo))
}
