package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"adlifecycle/internal/types"
)

// defaultPublishTimeout bounds a publish when the caller set no deadline.
const defaultPublishTimeout = 3 * time.Second

// AMQPPublisher is the subset of *amqp.Channel used by AMQPSink.
type AMQPPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes notifications to a RabbitMQ topic exchange. The routing
// key is the event type, e.g. "ad.expired", so consumers can bind "ad.#".
type AMQPSink struct {
	ch       AMQPPublisher
	conn     *amqp.Connection
	exchange string
	logger   *slog.Logger
}

// NewAMQPSink wraps an already-open channel. Close only closes the channel.
func NewAMQPSink(ch AMQPPublisher, exchange string, logger *slog.Logger) *AMQPSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPSink{ch: ch, exchange: exchange, logger: logger}
}

// DialAMQP connects to url, opens a channel and declares exchange as a
// durable topic exchange.
func DialAMQP(url, exchange string, logger *slog.Logger) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamQueue, "failed to connect to amqp broker", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, types.NewAppError(types.ErrCodeUpstreamQueue, "failed to open amqp channel", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to declare exchange %s", exchange), err)
	}

	sink := NewAMQPSink(ch, exchange, logger)
	sink.conn = conn
	return sink, nil
}

// Emit publishes n as a persistent JSON message.
func (s *AMQPSink) Emit(ctx context.Context, n types.OwnerNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("amqp sink: failed to marshal notification: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()
	}

	ts := n.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Timestamp:    ts,
		Body:         body,
	}
	if reqID := types.GetRequestID(ctx); reqID != "" {
		msg.Headers = amqp.Table{"X-Request-ID": reqID}
	}

	if err := s.ch.PublishWithContext(ctx, s.exchange, string(n.Event), false, false, msg); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to publish notification to exchange %s", s.exchange), err)
	}

	s.logger.DebugContext(ctx, "notification published to amqp",
		"notification_id", n.ID,
		"ad_id", n.AdID,
		"routing_key", string(n.Event),
	)
	return nil
}

// Close closes the channel and, when the sink dialed it, the connection.
func (s *AMQPSink) Close() error {
	var err error
	if s.ch != nil {
		err = s.ch.Close()
	}
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
