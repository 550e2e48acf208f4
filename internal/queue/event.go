// Package queue contains the background consumers for the notification
// pipeline: the transport stand-in that records outbound messages, and
// the delivery-status listener. Message payload types shared with the
// publisher side live in internal/notify.
package queue

// DeliveryStatusEvent is the asynchronous out-of-band delivery update for
// a previously dispatched notification. The core does not act on it
// beyond logging: delivery status is observability, never a precondition
// for business logic.
type DeliveryStatusEvent struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"` // e.g. "delivered", "failed"
	At        string `json:"at"`     // RFC3339
}

// DeliveryQueueName is the queue delivery-status updates arrive on.
const DeliveryQueueName = "notification.delivery"
