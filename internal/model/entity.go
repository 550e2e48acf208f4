package model

import "time"

// Entity statuses as stored in entities.status. Active entities may
// register and attend visits. Suspended entities are over their yearly
// quota (set and cleared by the recalculation engine) or were suspended
// by an administrator. Banned is terminal until an administrator lifts it.
const (
	EntityActive    = "active"
	EntitySuspended = "suspended"
	EntityBanned    = "banned"
)

// Entity type names as stored in entities.entity_type. The per-type visit
// policy (quotas, purpose exemptions, host-capacity applicability) is
// configuration keyed on these values; see the visit package.
const (
	TypeGuest               = "guest"
	TypeEmployee            = "employee"
	TypeSupplier            = "supplier"
	TypeAccommodationGuest  = "accommodation_guest"
	TypeReciprocatingMember = "reciprocating_member"
)

// Entity represents any visitable party as stored in the `entities`
// table: guests, employees, suppliers, accommodation guests and members
// of reciprocating clubs. An entity is created on first registration or
// by explicit admin action and is never hard-deleted while visit rows
// reference it.
//
// Fields:
//
//	ID           – primary key identifier.
//	Type         – entity type name (see Type* constants).
//	FullName     – display name of the person.
//	Phone        – contact phone, part of the natural key for matching.
//	Email        – optional contact email.
//	GovernmentID – optional government ID, the preferred natural key.
//	Status       – active, suspended or banned.
//	ReceiveSMS   – SMS notification opt-in.
//	ReceiveEmail – email notification opt-in.
//	CreatedAt    – creation timestamp.
//	UpdatedAt    – last update timestamp.
type Entity struct {
	ID           uint64    // entities.id
	Type         string    // entities.entity_type
	FullName     string    // entities.full_name
	Phone        string    // entities.phone
	Email        *string   // entities.email (nullable)
	GovernmentID *string   // entities.government_id (nullable, unique when set)
	Status       string    // entities.status
	ReceiveSMS   bool      // entities.receive_sms
	ReceiveEmail bool      // entities.receive_email
	CreatedAt    time.Time // entities.created_at
	UpdatedAt    time.Time // entities.updated_at
}

// Blocked reports whether the entity is banned. Banned entities may not
// register or sign in regardless of type policy; suspended entities are
// subject to the per-type suspended_may_register flag instead.
func (e *Entity) Blocked() bool { return e.Status == EntityBanned }
