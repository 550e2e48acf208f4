package visit

import "github.com/gatehouse/visit-registry/internal/model"

// InitialStatus implements the creation rule of the status machine: a new
// visit is approved unless the quota calculator found the applicable count
// already at or over a limit, in which case it is admitted unapproved
// (capacity-pending) rather than rejected.
func InitialStatus(withinLimits bool) string {
	if withinLimits {
		return model.VisitApproved
	}
	return model.VisitUnapproved
}

// Cancellable reports whether a stored status may transition to cancelled.
// Cancelled is terminal; suspended/banned visits clear through the
// recalculation engine when the owning entity recovers, and are cancelled
// with it rather than directly.
func Cancellable(status string) bool {
	return status == model.VisitApproved || status == model.VisitUnapproved
}

// legalTransitions enumerates the stored-status edges the recalculation
// engine and cancellation path may take. Sign-in/out never change the
// stored status; the timestamps are the witness.
var legalTransitions = map[string]map[string]bool{
	model.VisitApproved:   {model.VisitCancelled: true, model.VisitUnapproved: true, model.VisitSuspended: true, model.VisitBanned: true},
	model.VisitUnapproved: {model.VisitCancelled: true, model.VisitApproved: true, model.VisitSuspended: true, model.VisitBanned: true},
	model.VisitSuspended:  {model.VisitApproved: true, model.VisitUnapproved: true, model.VisitCancelled: true, model.VisitBanned: true},
	model.VisitBanned:     {model.VisitApproved: true, model.VisitUnapproved: true, model.VisitSuspended: true, model.VisitCancelled: true},
}

// CanTransition reports whether from→to is a legal stored-status edge.
func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	return legalTransitions[from][to]
}
