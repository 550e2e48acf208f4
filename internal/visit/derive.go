package visit

import (
	"time"

	"github.com/gatehouse/visit-registry/internal/model"
)

// Derived display statuses. These are a pure function of the stored row
// against "today" and are recomputed on every read, never persisted.
const (
	DisplayScheduled = "scheduled" // approved, dated after today
	DisplayPending   = "pending"   // approved for today, not yet arrived
	DisplayActive    = "active"    // signed in, not yet signed out
	DisplayCompleted = "completed" // signed in and out
	DisplayMissed    = "missed"    // approved for a past date, never arrived
)

// DisplayStatus derives the user-facing status of a visit for the given
// date. Stored statuses other than approved pass through unchanged:
// an unapproved, suspended, banned or cancelled visit displays as such
// regardless of the calendar.
func DisplayStatus(v model.Visit, today time.Time) string {
	if v.Status != model.VisitApproved {
		return v.Status
	}
	if v.SignOutTime != nil {
		return DisplayCompleted
	}
	if v.SignInTime != nil {
		return DisplayActive
	}
	d := DateOnly(v.VisitDate)
	today = DateOnly(today)
	switch {
	case d.After(today):
		return DisplayScheduled
	case d.Equal(today):
		return DisplayPending
	default:
		return DisplayMissed
	}
}
