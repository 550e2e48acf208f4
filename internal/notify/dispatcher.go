// Package notify defines the notification contract the business services
// depend on and its RabbitMQ implementation. Dispatch is fire-and-forget
// relative to the transaction that persisted the change: a failed send is
// logged and reported to the caller, which may only log it in turn.
// It never rolls the write back and never retries inside the core.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse/visit-registry/internal/model"
)

// Notification templates. Consumers pick message wording off these; the
// core only guarantees the context fields each template carries.
const (
	TemplateVisitRegistered     = "visit.registered"      // outcome of a registration, incl. capacity-pending
	TemplateVisitStatusChanged  = "visit.status_changed"  // recalculation delta, old→new in context
	TemplateVisitSignedIn       = "visit.signed_in"       // arrival recorded
	TemplateVisitSignedOut      = "visit.signed_out"      // departure recorded (incl. sweep closes)
	TemplateVisitCancelled      = "visit.cancelled"       // explicit cancellation
	TemplateEntityStatusChanged = "entity.status_changed" // suspension/reactivation/ban, old→new in context
	TemplateHostCapacity        = "host.capacity"         // host's daily capacity reached
)

// Result is the synchronous outcome of a dispatch attempt. Delivery
// status proper arrives later, out of band, and is observability only.
type Result string

const (
	Accepted Result = "accepted"
	Rejected Result = "rejected"
)

// Notification is one message to one recipient. Channels reflect the
// recipient's opt-ins at build time; an empty list still produces a
// message so the audit trail is complete.
type Notification struct {
	MessageID string            `json:"message_id"`
	EntityID  uint64            `json:"entity_id"`
	Recipient string            `json:"recipient"` // phone, or email when SMS is opted out
	Channels  []string          `json:"channels"`  // "sms", "email"
	Template  string            `json:"template"`
	Context   map[string]string `json:"context"`
	CreatedAt string            `json:"created_at"` // RFC3339
}

// Dispatcher is the consumed notification interface. Send must not block
// on anything slower than a broker publish and must never panic.
type Dispatcher interface {
	Send(ctx context.Context, n Notification) (Result, error)
}

// Build assembles a notification for an entity, honoring its opt-in
// flags. Context keys are template-specific (e.g. "old_status",
// "new_status", "visit_date", "capacity_pending").
func Build(e *model.Entity, template string, context map[string]string) Notification {
	var channels []string
	recipient := e.Phone
	if e.ReceiveSMS && e.Phone != "" {
		channels = append(channels, "sms")
	}
	if e.ReceiveEmail && e.Email != nil && *e.Email != "" {
		channels = append(channels, "email")
		if recipient == "" {
			recipient = *e.Email
		}
	}
	return Notification{
		MessageID: uuid.NewString(),
		EntityID:  e.ID,
		Recipient: recipient,
		Channels:  channels,
		Template:  template,
		Context:   context,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}
