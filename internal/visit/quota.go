package visit

import (
	"time"

	"github.com/gatehouse/visit-registry/internal/model"
)

// consumesSlot reports whether an approved visit occupies a quota slot as
// of today: a future or today visit holds its slot, a past visit only if
// it was attended. A past visit with no sign-in is missed and its slot is
// freed, which is what lets a later capacity-pending visit be promoted.
func consumesSlot(v model.Visit, today time.Time) bool {
	if DateOnly(v.VisitDate).Before(DateOnly(today)) {
		return v.Attended()
	}
	return true
}

// Counts carries the tallies applicable to one candidate date.
type Counts struct {
	Month int // counted visits in the candidate's calendar month
	Year  int // counted, non-exempt visits in the candidate's calendar year
}

// CountForDate computes the monthly and yearly counts that apply to a
// candidate visit date, given the entity's visit history. Only approved,
// non-cancelled visits count, and only while they consume a slot (see
// consumesSlot). Purpose-exempt visits are excluded from the yearly tally
// but still count monthly. History order does not matter here; counting
// is a plain tally, the chronological tie-break only matters for Replay.
func CountForDate(history []model.Visit, p TypePolicy, date, today time.Time) Counts {
	var c Counts
	mk, yk := MonthKey(date), YearKey(date)
	for _, v := range history {
		if v.Status != model.VisitApproved || !consumesSlot(v, today) {
			continue
		}
		if MonthKey(v.VisitDate) == mk {
			c.Month++
		}
		if YearKey(v.VisitDate) == yk && !p.YearlyExempt(v.Purpose) {
			c.Year++
		}
	}
	return c
}

// WithinLimits reports whether a candidate visit with the given purpose
// fits under the policy, given the counts already applicable to its date.
func (p TypePolicy) WithinLimits(c Counts, purpose *string) bool {
	if p.MonthlyLimit > 0 && c.Month >= p.MonthlyLimit {
		return false
	}
	if p.YearlyLimit > 0 && !p.YearlyExempt(purpose) && c.Year >= p.YearlyLimit {
		return false
	}
	return true
}

// HostDayCount tallies the visits that occupy a host's capacity on a day:
// non-cancelled, non-courtesy, approved visits. The slice is expected to
// already be scoped to one host; in production the count comes from a
// repository query and this function backs the tests and the replay.
func HostDayCount(hostVisits []model.Visit, day time.Time) int {
	n := 0
	for _, v := range hostVisits {
		if v.Status != model.VisitApproved || v.Courtesy {
			continue
		}
		if SameDay(v.VisitDate, day) {
			n++
		}
	}
	return n
}
