package service

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/gatehouse/visit-registry/internal/model"
	"github.com/gatehouse/visit-registry/internal/notify"
	"github.com/gatehouse/visit-registry/internal/visit"
)

// AttendanceService mutates approved visits into attended ones. The
// stored status never changes here: sign_in_time and sign_out_time are
// the witnesses, and the derived display status reads them.
type AttendanceService struct {
	visits   VisitStore
	entities EntityStore
	policies visit.PolicyTable
	disp     notify.Dispatcher
	clock    Clock
	logger   *zap.Logger
}

// NewAttendanceService wires the service.
func NewAttendanceService(visits VisitStore, entities EntityStore, policies visit.PolicyTable,
	disp notify.Dispatcher, clock Clock, logger *zap.Logger) *AttendanceService {
	return &AttendanceService{
		visits:   visits,
		entities: entities,
		policies: policies,
		disp:     disp,
		clock:    clock,
		logger:   logger,
	}
}

// SignIn records an arrival. Preconditions: the visit is approved, dated
// today, and not already signed in; violations return StateConflictError
// before anything is written. A purpose supplied at the gate is recorded,
// and for some entity types the gate is where the purpose becomes
// mandatory.
func (s *AttendanceService) SignIn(ctx context.Context, visitID uint64, purpose *string) (*model.Visit, error) {
	v, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if v.Status != model.VisitApproved || !visit.SameDay(v.VisitDate, now) {
		return nil, &StateConflictError{Reason: "visit is not approved for today"}
	}
	if v.SignInTime != nil {
		return nil, &StateConflictError{Reason: "already signed in"}
	}
	ent, err := s.entities.GetByID(ctx, v.EntityID)
	if err != nil {
		return nil, err
	}
	if s.policies.For(ent.Type).PurposeAtSignIn && v.Purpose == nil && purpose == nil {
		return nil, &ValidationError{Reasons: []string{"purpose is required at sign-in"}}
	}
	if err := s.visits.SetSignIn(ctx, v.ID, now, purpose); err != nil {
		return nil, err
	}
	v.SignInTime = &now
	if purpose != nil {
		v.Purpose = purpose
	}
	s.notifyAttendance(ctx, v, notify.TemplateVisitSignedIn)
	return v, nil
}

// SignOut records a departure. Preconditions: signed in and not yet
// signed out. The storage layer additionally guarantees the stamped time
// is never before the sign-in time.
func (s *AttendanceService) SignOut(ctx context.Context, visitID uint64) (*model.Visit, error) {
	v, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if v.SignInTime == nil {
		return nil, &StateConflictError{Reason: "not signed in"}
	}
	if v.SignOutTime != nil {
		return nil, &StateConflictError{Reason: "already signed out"}
	}
	now := s.clock.Now()
	if now.Before(*v.SignInTime) {
		now = *v.SignInTime
	}
	if err := s.visits.SetSignOut(ctx, v.ID, now); err != nil {
		return nil, err
	}
	v.SignOutTime = &now
	s.notifyAttendance(ctx, v, notify.TemplateVisitSignedOut)
	return v, nil
}

func (s *AttendanceService) notifyAttendance(ctx context.Context, v *model.Visit, template string) {
	ent, err := s.entities.GetByID(ctx, v.EntityID)
	if err != nil {
		s.logger.Warn("load entity for notification failed",
			zap.Uint64("entity_id", v.EntityID), zap.Error(err))
		return
	}
	nctx := map[string]string{
		"visit_id":   strconv.FormatUint(v.ID, 10),
		"visit_date": v.VisitDate.Format("2006-01-02"),
	}
	if _, err := s.disp.Send(ctx, notify.Build(ent, template, nctx)); err != nil {
		s.logger.Warn("attendance notification dispatch failed",
			zap.Uint64("entity_id", ent.ID), zap.String("template", template), zap.Error(err))
	}
}
