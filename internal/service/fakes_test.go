package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/gatehouse/visit-registry/internal/model"
	"github.com/gatehouse/visit-registry/internal/notify"
	"github.com/gatehouse/visit-registry/internal/repository"
	"github.com/gatehouse/visit-registry/internal/visit"
)

// fixedClock pins "now" so quota and derived-status decisions are
// reproducible.
type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// memVisits is an in-memory VisitStore enforcing the same invariants the
// MySQL repository does, including the unique slot key.
type memVisits struct {
	nextID uint64
	rows   map[uint64]*model.Visit
}

func newMemVisits() *memVisits {
	return &memVisits{nextID: 1, rows: map[uint64]*model.Visit{}}
}

func (s *memVisits) Create(_ context.Context, v *model.Visit) error {
	for _, r := range s.rows {
		if r.Status != model.VisitCancelled && r.EntityID == v.EntityID &&
			hostKey(r.HostID) == hostKey(v.HostID) && visit.SameDay(r.VisitDate, v.VisitDate) {
			return repository.ErrDuplicateVisit
		}
	}
	cp := *v
	cp.ID = s.nextID
	s.nextID++
	cp.VisitDate = visit.DateOnly(cp.VisitDate)
	s.rows[cp.ID] = &cp
	*v = cp
	return nil
}

func hostKey(h *uint64) uint64 {
	if h == nil {
		return 0
	}
	return *h
}

func (s *memVisits) GetByID(_ context.Context, id uint64) (*model.Visit, error) {
	r, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrVisitNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memVisits) ListByEntity(_ context.Context, entityID uint64, includeCancelled bool) ([]model.Visit, error) {
	var out []model.Visit
	for _, r := range s.rows {
		if r.EntityID != entityID {
			continue
		}
		if !includeCancelled && r.Status == model.VisitCancelled {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].VisitDate.Equal(out[j].VisitDate) {
			return out[i].VisitDate.Before(out[j].VisitDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memVisits) ExistsActiveSlot(_ context.Context, entityID uint64, hostID *uint64, date time.Time) (bool, error) {
	for _, r := range s.rows {
		if r.Status != model.VisitCancelled && r.EntityID == entityID &&
			hostKey(r.HostID) == hostKey(hostID) && visit.SameDay(r.VisitDate, date) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memVisits) CountHostDay(_ context.Context, hostID uint64, day time.Time) (int, error) {
	n := 0
	for _, r := range s.rows {
		if hostKey(r.HostID) == hostID && !r.Courtesy &&
			r.Status == model.VisitApproved && visit.SameDay(r.VisitDate, day) {
			n++
		}
	}
	return n, nil
}

func (s *memVisits) UpdateStatus(_ context.Context, id uint64, from, to string) error {
	r, ok := s.rows[id]
	if !ok {
		return repository.ErrVisitNotFound
	}
	if r.Status != from {
		return repository.ErrStaleStatus
	}
	r.Status = to
	return nil
}

func (s *memVisits) Cancel(_ context.Context, id uint64, from string) error {
	return s.UpdateStatus(nil, id, from, model.VisitCancelled)
}

func (s *memVisits) SetSignIn(_ context.Context, id uint64, at time.Time, purpose *string) error {
	r, ok := s.rows[id]
	if !ok {
		return repository.ErrVisitNotFound
	}
	if r.Status != model.VisitApproved || r.SignInTime != nil {
		return repository.ErrStaleStatus
	}
	t := at
	r.SignInTime = &t
	if purpose != nil {
		r.Purpose = purpose
	}
	return nil
}

func (s *memVisits) SetSignOut(_ context.Context, id uint64, at time.Time) error {
	r, ok := s.rows[id]
	if !ok {
		return repository.ErrVisitNotFound
	}
	if r.SignInTime == nil || r.SignOutTime != nil || at.Before(*r.SignInTime) {
		return repository.ErrStaleStatus
	}
	t := at
	r.SignOutTime = &t
	return nil
}

func (s *memVisits) ListOpenBefore(_ context.Context, day time.Time) ([]model.Visit, error) {
	var out []model.Visit
	for _, r := range s.rows {
		if visit.DateOnly(r.VisitDate).Before(visit.DateOnly(day)) &&
			r.SignInTime != nil && r.SignOutTime == nil {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memVisits) DistinctEntityIDs(_ context.Context) ([]uint64, error) {
	seen := map[uint64]bool{}
	for _, r := range s.rows {
		if r.Status != model.VisitCancelled {
			seen[r.EntityID] = true
		}
	}
	var out []uint64
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// memEntities is an in-memory EntityStore.
type memEntities struct {
	nextID uint64
	rows   map[uint64]*model.Entity
}

func newMemEntities() *memEntities {
	return &memEntities{nextID: 1, rows: map[uint64]*model.Entity{}}
}

func (s *memEntities) add(e model.Entity) *model.Entity {
	e.ID = s.nextID
	s.nextID++
	s.rows[e.ID] = &e
	return &e
}

func (s *memEntities) Create(_ context.Context, e *model.Entity) error {
	cp := s.add(*e)
	*e = *cp
	return nil
}

func (s *memEntities) GetByID(_ context.Context, id uint64) (*model.Entity, error) {
	r, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrEntityNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memEntities) FindByNaturalKey(_ context.Context, governmentID *string, phone string) (*model.Entity, error) {
	if governmentID != nil {
		for _, r := range s.rows {
			if r.GovernmentID != nil && *r.GovernmentID == *governmentID {
				cp := *r
				return &cp, nil
			}
		}
	}
	for _, r := range s.rows {
		if r.Phone == phone {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrEntityNotFound
}

func (s *memEntities) UpdateStatus(_ context.Context, id uint64, from, to string) error {
	r, ok := s.rows[id]
	if !ok {
		return repository.ErrEntityNotFound
	}
	if r.Status != from {
		return repository.ErrStaleStatus
	}
	r.Status = to
	return nil
}

// recordingDispatcher captures every notification; failing makes Send
// return an error so the persist-before-notify contract can be checked.
type recordingDispatcher struct {
	sent    []notify.Notification
	failing bool
}

func (d *recordingDispatcher) Send(_ context.Context, n notify.Notification) (notify.Result, error) {
	if d.failing {
		return notify.Rejected, errors.New("broker down")
	}
	d.sent = append(d.sent, n)
	return notify.Accepted, nil
}

func (d *recordingDispatcher) byTemplate(template string) []notify.Notification {
	var out []notify.Notification
	for _, n := range d.sent {
		if n.Template == template {
			out = append(out, n)
		}
	}
	return out
}

// testEnv assembles the service graph over the in-memory stores.
type testEnv struct {
	visits   *memVisits
	entities *memEntities
	disp     *recordingDispatcher
	clock    fixedClock
	recalc   *RecalcEngine
	reg      *RegistrationService
	att      *AttendanceService
	sweep    *Sweeper
}

func newTestEnv(now time.Time) *testEnv {
	env := &testEnv{
		visits:   newMemVisits(),
		entities: newMemEntities(),
		disp:     &recordingDispatcher{},
		clock:    fixedClock{now: now},
	}
	logger := zap.NewNop()
	policies := visit.DefaultPolicies()
	env.recalc = NewRecalcEngine(env.visits, env.entities, policies, nil, env.disp, env.clock, logger)
	env.reg = NewRegistrationService(env.visits, env.entities, policies, nil, env.disp, env.recalc, env.clock, logger)
	env.att = NewAttendanceService(env.visits, env.entities, policies, env.disp, env.clock, logger)
	env.sweep = NewSweeper(env.visits, env.entities, env.recalc, env.disp, env.clock, logger, time.Hour)
	return env
}
