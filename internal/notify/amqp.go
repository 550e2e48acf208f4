package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// QueueName is the durable queue every notification is published to. The
// consumer side (internal/queue) plays the SMS/email transport.
const QueueName = "visit.notifications"

// AMQPDispatcher publishes notifications to RabbitMQ. It dials per send,
// attempts to be robust and to never panic; any error is logged and
// returned so the caller can choose to ignore it, which business
// operations always do.
type AMQPDispatcher struct {
	URL    string
	Logger *zap.Logger
}

// NewAMQPDispatcher returns a dispatcher targeting the given broker URL.
func NewAMQPDispatcher(url string, logger *zap.Logger) *AMQPDispatcher {
	return &AMQPDispatcher{URL: url, Logger: logger}
}

// Send publishes one persistent JSON message to the notification queue.
// The queue declare is idempotent and durable so messages survive broker
// restarts.
func (d *AMQPDispatcher) Send(ctx context.Context, n Notification) (Result, error) {
	conn, err := amqp.Dial(d.URL)
	if err != nil {
		d.Logger.Warn("rabbitmq dial failed", zap.Error(err))
		return Rejected, err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		d.Logger.Warn("rabbitmq channel open failed", zap.Error(err))
		return Rejected, err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		QueueName, // name
		true,      // durable
		false,     // autoDelete
		false,     // exclusive
		false,     // noWait
		nil,       // args
	); err != nil {
		d.Logger.Warn("rabbitmq queue declare failed", zap.Error(err))
		return Rejected, err
	}

	body, err := json.Marshal(n)
	if err != nil {
		d.Logger.Warn("marshal notification failed", zap.Error(err))
		return Rejected, err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.MessageID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",        // default exchange
		QueueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		pub,
	); err != nil {
		d.Logger.Warn("rabbitmq publish failed", zap.Error(err), zap.String("message_id", n.MessageID))
		return Rejected, err
	}
	return Accepted, nil
}
