package model

import "time"

// Stored visit statuses as persisted in visits.status. These are distinct
// from the derived display status (scheduled/pending/active/completed/
// missed), which is recomputed on every read and never stored; see the
// visit package.
const (
	VisitApproved   = "approved"
	VisitUnapproved = "unapproved"
	VisitCancelled  = "cancelled"
	VisitSuspended  = "suspended"
	VisitBanned     = "banned"
)

// Visit records one planned or taken visit by an entity, optionally under
// the responsibility of a host. At most one non-cancelled visit may exist
// per (entity, host, date); the `visits` table enforces this with a unique
// key over (entity_id, host_id, visit_date, slot_guard) where slot_guard
// is 1 for live rows and NULL once cancelled. host_id is stored as 0 for
// host-less (courtesy) visits so the unique key still collides.
//
// Fields:
//
//	ID          – primary key identifier.
//	EntityID    – owning entity.
//	HostID      – hosting entity, nil for courtesy/host-less visits.
//	VisitDate   – calendar date of the visit (UTC midnight, no time part).
//	Purpose     – free-form purpose category (e.g. casual, tournament).
//	              Some entity types only fix this at sign-in.
//	Courtesy    – exempts the visit from host daily-capacity checks.
//	SignInTime  – set when the visitor arrives.
//	SignOutTime – set on departure or by the end-of-day sweep; never set
//	              unless SignInTime is set, and always >= SignInTime.
//	Status      – stored status (see Visit* constants).
//	CreatedAt   – creation timestamp. Same-date visits replay in ID
//	              order, which matches insertion order.
//	UpdatedAt   – last update timestamp.
type Visit struct {
	ID          uint64     // visits.id
	EntityID    uint64     // visits.entity_id
	HostID      *uint64    // visits.host_id (0 in storage means none)
	VisitDate   time.Time  // visits.visit_date
	Purpose     *string    // visits.visit_purpose (nullable)
	Courtesy    bool       // visits.courtesy
	SignInTime  *time.Time // visits.sign_in_time (nullable)
	SignOutTime *time.Time // visits.sign_out_time (nullable)
	Status      string     // visits.status
	CreatedAt   time.Time  // visits.created_at
	UpdatedAt   time.Time  // visits.updated_at
}

// Attended reports whether the visitor actually arrived. A past approved
// visit that was never attended is "missed" and does not consume a quota
// slot.
func (v *Visit) Attended() bool { return v.SignInTime != nil }
