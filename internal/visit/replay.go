package visit

import (
	"sort"
	"time"

	"github.com/gatehouse/visit-registry/internal/model"
)

// ReplayOutcome is the verdict of one deterministic replay of an entity's
// visit history. Desired carries the stored status each visit should have,
// index-aligned with the input slice after chronological ordering;
// EntityStatus is the status the owning entity should have.
type ReplayOutcome struct {
	Visits       []model.Visit // the input, in replay order (visit_date, then id)
	Desired      []string      // desired stored status per visit
	EntityStatus string        // active, suspended, or banned passed through
	UsedYear     int           // attended non-exempt visits in today's year
	MonthCounts  map[string]int
	YearCounts   map[string]int
}

// Replay re-derives every stored status for one entity from scratch: a
// single left-to-right pass over the non-cancelled history in
// (visit_date, id) order, running one counter per month key and one per
// year key. Past visits are historical record and keep their stored
// status; an unattended past visit simply stops consuming its slot, which
// retroactively frees capacity for the later visits in the same pass.
// Because the pass is strictly chronological, freed slots always promote
// the earliest eligible capacity-pending visit first (earliest visit_date,
// then earliest insertion order).
//
// The entity verdict is computed from attended usage only: an entity is
// suspended while its attended, non-exempt visit count for the current
// year has reached the yearly limit, and reactivated once it has not.
// Booked-but-unattended future visits never suspend an entity; they are
// individually degraded to unapproved instead. Banned entities stay
// banned (admin-only), and their undecided visits inherit the status.
//
// Replay never touches storage and is idempotent: replaying a history
// that already matches its outcome yields zero changes.
func Replay(history []model.Visit, p TypePolicy, entityStatus string, today time.Time) ReplayOutcome {
	visits := make([]model.Visit, len(history))
	copy(visits, history)
	sort.SliceStable(visits, func(i, j int) bool {
		di, dj := DateOnly(visits[i].VisitDate), DateOnly(visits[j].VisitDate)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return visits[i].ID < visits[j].ID
	})

	out := ReplayOutcome{
		Visits:      visits,
		Desired:     make([]string, len(visits)),
		MonthCounts: make(map[string]int),
		YearCounts:  make(map[string]int),
	}

	// Entity verdict first: it feeds the per-visit cascade below.
	out.UsedYear = usedThisYear(visits, p, today)
	out.EntityStatus = entityStatus
	if entityStatus != model.EntityBanned {
		if p.YearlyLimit > 0 && out.UsedYear >= p.YearlyLimit {
			out.EntityStatus = model.EntitySuspended
		} else {
			out.EntityStatus = model.EntityActive
		}
	}

	today = DateOnly(today)
	for i, v := range visits {
		if v.Status == model.VisitCancelled {
			out.Desired[i] = v.Status
			continue
		}
		past := DateOnly(v.VisitDate).Before(today)
		if past || v.Attended() {
			// Historical record: the stored status stands. It consumes
			// a slot only if the visitor actually showed up.
			out.Desired[i] = v.Status
			if v.Status == model.VisitApproved && v.Attended() {
				out.count(v, p)
			}
			continue
		}
		// Unattended visit for today or the future: re-derive.
		switch out.EntityStatus {
		case model.EntityBanned:
			out.Desired[i] = model.VisitBanned
		case model.EntitySuspended:
			out.Desired[i] = model.VisitSuspended
		default:
			c := Counts{
				Month: out.MonthCounts[MonthKey(v.VisitDate)],
				Year:  out.YearCounts[YearKey(v.VisitDate)],
			}
			if p.WithinLimits(c, v.Purpose) {
				out.Desired[i] = model.VisitApproved
				out.count(v, p)
			} else {
				out.Desired[i] = model.VisitUnapproved
			}
		}
	}
	return out
}

func (o *ReplayOutcome) count(v model.Visit, p TypePolicy) {
	o.MonthCounts[MonthKey(v.VisitDate)]++
	if !p.YearlyExempt(v.Purpose) {
		o.YearCounts[YearKey(v.VisitDate)]++
	}
}

// usedThisYear tallies attended, approved, non-exempt visits dated in
// today's calendar year. This is the consumption figure that drives
// entity suspension; it is independent of the replay cascade so the
// verdict cannot oscillate between runs.
func usedThisYear(visits []model.Visit, p TypePolicy, today time.Time) int {
	yk := YearKey(today)
	n := 0
	for _, v := range visits {
		if v.Status != model.VisitApproved || !v.Attended() {
			continue
		}
		if YearKey(v.VisitDate) == yk && !p.YearlyExempt(v.Purpose) {
			n++
		}
	}
	return n
}
