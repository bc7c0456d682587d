// Package notifications delivers owner notifications produced by the
// lifecycle engine to queues and brokers. Every sink implements
// lifecycle.Notifier; FanoutSink combines them and BreakerSink isolates a
// failing one.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"adlifecycle/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink publishes each notification as a JSON message to an SQS queue.
// The event type is copied to a message attribute so consumers can filter
// without decoding the body.
type SQSSink struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewSQSSink creates a sink targeting queueURL.
func NewSQSSink(client SQSSender, queueURL string, logger *slog.Logger) *SQSSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSSink{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Emit sends n to the queue.
func (s *SQSSink) Emit(ctx context.Context, n types.OwnerNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("sqs sink: failed to marshal notification: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(n.Event)),
			},
		},
	}
	if reqID := types.GetRequestID(ctx); reqID != "" {
		input.MessageAttributes["request_id"] = sqstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(reqID),
		}
	}

	out, err := s.client.SendMessage(ctx, input)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to send notification to %s", s.queueURL), err)
	}

	s.logger.DebugContext(ctx, "notification published to sqs",
		"notification_id", n.ID,
		"ad_id", n.AdID,
		"event", string(n.Event),
		"message_id", aws.ToString(out.MessageId),
	)
	return nil
}
