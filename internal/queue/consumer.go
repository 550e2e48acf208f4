package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/gatehouse/visit-registry/internal/notify"
)

// StartNotificationConsumer connects to RabbitMQ, declares the durable
// notification queue, and consumes messages. It stands in for the SMS and
// email transport: each message is appended to logs/notifications.log in
// a single-line format, then a delivery-status event is published back on
// the delivery queue. The function runs a reconnect loop with backoff and
// keeps running until the broker connection is permanently lost; message
// processing errors are logged and the offending message rejected without
// requeue so the pipeline never tight-loops.
func StartNotificationConsumer(url string, logger *zap.Logger) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn("notification consumer dial failed",
				zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeNotifications(conn, logger); err != nil {
			logger.Warn("notification consume loop ended", zap.Error(err))
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func consumeNotifications(conn *amqp.Connection, logger *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(notify.QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if _, err := ch.QueueDeclare(DeliveryQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("delivery queue declare: %w", err)
	}

	msgs, err := ch.Consume(notify.QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleNotification(ch, d.Body); err != nil {
			logger.Warn("handle notification failed", zap.Error(err))
			_ = d.Nack(false, false) // reject, do not requeue
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleNotification(ch *amqp.Channel, body []byte) error {
	var n notify.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := appendNotificationLog(n); err != nil {
		return err
	}
	// Report delivery back out of band.
	ev := DeliveryStatusEvent{
		MessageID: n.MessageID,
		Status:    "delivered",
		At:        time.Now().UTC().Format(time.RFC3339),
	}
	evBody, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal delivery event: %w", err)
	}
	return ch.PublishWithContext(context.Background(), "", DeliveryQueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         evBody,
	})
}

func appendNotificationLog(n notify.Notification) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "notifications.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	ctxJSON, _ := json.Marshal(n.Context)
	line := fmt.Sprintf("[%s] %s | message_id=%s | entity_id=%d | to=%s | channels=%v | context=%s\n",
		n.CreatedAt, n.Template, n.MessageID, n.EntityID, n.Recipient, n.Channels, ctxJSON)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// StartDeliveryStatusConsumer listens on the delivery-status queue and
// logs each update. Nothing downstream depends on delivery state.
func StartDeliveryStatusConsumer(url string, logger *zap.Logger) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn("delivery consumer dial failed",
				zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := consumeDelivery(conn, logger); err != nil {
			logger.Warn("delivery consume loop ended", zap.Error(err))
			time.Sleep(2 * time.Second)
			continue
		}
	}
}

func consumeDelivery(conn *amqp.Connection, logger *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(DeliveryQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(DeliveryQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	for d := range msgs {
		var ev DeliveryStatusEvent
		if err := json.Unmarshal(d.Body, &ev); err != nil {
			logger.Warn("bad delivery event", zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		logger.Info("notification delivery status",
			zap.String("message_id", ev.MessageID),
			zap.String("status", ev.Status),
			zap.String("at", ev.At))
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}
