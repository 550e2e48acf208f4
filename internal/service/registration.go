package service

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/gatehouse/visit-registry/internal/cache"
	"github.com/gatehouse/visit-registry/internal/model"
	"github.com/gatehouse/visit-registry/internal/notify"
	"github.com/gatehouse/visit-registry/internal/repository"
	"github.com/gatehouse/visit-registry/internal/visit"
)

// RegistrationInput is one visit request. The entity may be new (created
// on first registration, matched by government ID then phone) or
// existing.
type RegistrationInput struct {
	EntityType   string
	FullName     string
	Phone        string
	Email        *string
	GovernmentID *string
	ReceiveSMS   bool
	ReceiveEmail bool

	HostID    *uint64
	VisitDate time.Time
	Purpose   *string
	Courtesy  bool
}

// RegistrationResult reports the admitted visit. CapacityPending is the
// quota-exceeded outcome: the visit was persisted but degraded to
// unapproved, with the limits it ran into listed in Reasons. It is a
// result, never an error: registration does not fail on quota.
type RegistrationResult struct {
	Visit           *model.Visit
	Entity          *model.Entity
	EntityCreated   bool
	CapacityPending bool
	Reasons         []string
}

// RegistrationService validates and admits visit requests. Persistence
// completes before any notification is attempted, and a failed dispatch
// never rolls the visit back.
type RegistrationService struct {
	visits   VisitStore
	entities EntityStore
	policies visit.PolicyTable
	counters *cache.CounterCache
	disp     notify.Dispatcher
	recalc   *RecalcEngine
	clock    Clock
	logger   *zap.Logger
}

// NewRegistrationService wires the service. recalc may be nil to skip
// the post-registration reconciliation (tests do this when exercising
// registration in isolation).
func NewRegistrationService(visits VisitStore, entities EntityStore, policies visit.PolicyTable,
	counters *cache.CounterCache, disp notify.Dispatcher, recalc *RecalcEngine,
	clock Clock, logger *zap.Logger) *RegistrationService {
	return &RegistrationService{
		visits:   visits,
		entities: entities,
		policies: policies,
		counters: counters,
		disp:     disp,
		recalc:   recalc,
		clock:    clock,
		logger:   logger,
	}
}

// Register runs the validation chain, admits the visit with its initial
// status from the quota verdict, and dispatches the outcome
// notification. Failure modes, in order: ValidationError (all failed
// checks at once, nothing persisted), EntityBlockedError,
// repository.ErrDuplicateVisit (pre-check or storage race), storage
// errors. Quota overruns do not fail: the visit is admitted unapproved
// and flagged CapacityPending.
func (s *RegistrationService) Register(ctx context.Context, in RegistrationInput) (*RegistrationResult, error) {
	today := visit.DateOnly(s.clock.Now())

	// 1. Input validation: collect every failure, then abort with no
	// side effects.
	var reasons []string
	if in.FullName == "" {
		reasons = append(reasons, "full name is required")
	}
	if in.Phone == "" {
		reasons = append(reasons, "phone is required")
	}
	if !s.policies.Known(in.EntityType) {
		reasons = append(reasons, "unknown entity type: "+in.EntityType)
	}
	if in.VisitDate.IsZero() {
		reasons = append(reasons, "visit date is required")
	} else if visit.DateOnly(in.VisitDate).Before(today) {
		reasons = append(reasons, "visit date is in the past")
	}
	if len(reasons) > 0 {
		return nil, &ValidationError{Reasons: reasons}
	}

	// 2. Find or create the entity by natural key.
	ent, err := s.entities.FindByNaturalKey(ctx, in.GovernmentID, in.Phone)
	created := false
	if err == repository.ErrEntityNotFound {
		ent = &model.Entity{
			Type:         in.EntityType,
			FullName:     in.FullName,
			Phone:        in.Phone,
			Email:        in.Email,
			GovernmentID: in.GovernmentID,
			Status:       model.EntityActive,
			ReceiveSMS:   in.ReceiveSMS,
			ReceiveEmail: in.ReceiveEmail,
		}
		if err := s.entities.Create(ctx, ent); err != nil {
			return nil, err
		}
		created = true
	} else if err != nil {
		return nil, err
	}

	// The stored type wins when the natural key matched an existing
	// record: the status gate and quota verdict follow the entity on
	// file, not whatever type the request claimed.
	pol := s.policies.For(ent.Type)

	// 3. Entity status gate.
	if ent.Status == model.EntityBanned {
		return nil, &EntityBlockedError{EntityID: ent.ID, Status: ent.Status}
	}
	if ent.Status == model.EntitySuspended && !pol.SuspendedMayRegister {
		return nil, &EntityBlockedError{EntityID: ent.ID, Status: ent.Status}
	}

	// 4. Duplicate pre-check. The unique key re-checks under
	// concurrency; both paths surface repository.ErrDuplicateVisit.
	if exists, err := s.visits.ExistsActiveSlot(ctx, ent.ID, in.HostID, in.VisitDate); err != nil {
		return nil, err
	} else if exists {
		return nil, repository.ErrDuplicateVisit
	}

	// 5. Quota verdict decides the initial status; it never rejects.
	res := &RegistrationResult{Entity: ent, EntityCreated: created}
	within := true
	history, err := s.visits.ListByEntity(ctx, ent.ID, false)
	if err != nil {
		return nil, err
	}
	counts := visit.CountForDate(history, pol, in.VisitDate, today)
	if !pol.WithinLimits(counts, in.Purpose) {
		within = false
		if pol.MonthlyLimit > 0 && counts.Month >= pol.MonthlyLimit {
			res.Reasons = append(res.Reasons, "monthly limit reached")
		}
		if pol.YearlyLimit > 0 && !pol.YearlyExempt(in.Purpose) && counts.Year >= pol.YearlyLimit {
			res.Reasons = append(res.Reasons, "yearly limit reached")
		}
	}
	hostFull := false
	if in.HostID != nil && !in.Courtesy && pol.HostCapacity {
		n, ok := s.counters.GetHostDayCount(ctx, *in.HostID, in.VisitDate)
		if !ok {
			if n, err = s.visits.CountHostDay(ctx, *in.HostID, in.VisitDate); err != nil {
				return nil, err
			}
			s.counters.SetHostDayCount(ctx, *in.HostID, in.VisitDate, n)
		}
		if n >= visit.HostDailyLimit {
			within = false
			hostFull = true
			res.Reasons = append(res.Reasons, "host daily capacity reached")
		}
	}

	// 6. Persist. Durability precedes any notification attempt.
	v := &model.Visit{
		EntityID:  ent.ID,
		HostID:    in.HostID,
		VisitDate: visit.DateOnly(in.VisitDate),
		Purpose:   in.Purpose,
		Courtesy:  in.Courtesy,
		Status:    visit.InitialStatus(within),
	}
	if err := s.visits.Create(ctx, v); err != nil {
		return nil, err
	}
	res.Visit = v
	res.CapacityPending = !within

	// 7. Refresh advisory counters.
	s.counters.InvalidateEntity(ctx, ent.ID, v.VisitDate)
	if in.HostID != nil {
		s.counters.InvalidateHostDay(ctx, *in.HostID, v.VisitDate)
	}

	// 8. Notify: entity always; host when its capacity was the blocker.
	nctx := map[string]string{
		"visit_id":         strconv.FormatUint(v.ID, 10),
		"visit_date":       v.VisitDate.Format("2006-01-02"),
		"status":           v.Status,
		"capacity_pending": strconv.FormatBool(res.CapacityPending),
	}
	if _, err := s.disp.Send(ctx, notify.Build(ent, notify.TemplateVisitRegistered, nctx)); err != nil {
		s.logger.Warn("registration notification dispatch failed",
			zap.Uint64("entity_id", ent.ID), zap.Error(err))
	}
	if hostFull {
		if host, err := s.entities.GetByID(ctx, *in.HostID); err == nil {
			hctx := map[string]string{
				"visit_date": v.VisitDate.Format("2006-01-02"),
				"capacity":   strconv.Itoa(visit.HostDailyLimit),
			}
			if _, err := s.disp.Send(ctx, notify.Build(host, notify.TemplateHostCapacity, hctx)); err != nil {
				s.logger.Warn("host capacity notification dispatch failed",
					zap.Uint64("host_id", *in.HostID), zap.Error(err))
			}
		}
	}

	// 9. Reconcile: a new row can reshuffle approvals for visits later
	// in the same period. Failures only log; the engine reruns on
	// schedule anyway.
	if s.recalc != nil {
		if _, err := s.recalc.ReplayEntity(ctx, ent.ID); err != nil {
			s.logger.Warn("post-registration recalculation failed",
				zap.Uint64("entity_id", ent.ID), zap.Error(err))
		}
	}
	return res, nil
}

// Cancel voids an approved or unapproved visit and reconciles the owning
// entity, which may promote a capacity-pending visit into the freed slot.
func (s *RegistrationService) Cancel(ctx context.Context, visitID uint64) (*model.Visit, error) {
	v, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if !visit.Cancellable(v.Status) {
		return nil, &StateConflictError{Reason: "visit is " + v.Status + " and cannot be cancelled"}
	}
	if err := s.visits.Cancel(ctx, v.ID, v.Status); err != nil {
		return nil, err
	}
	old := v.Status
	v.Status = model.VisitCancelled

	s.counters.InvalidateEntity(ctx, v.EntityID, v.VisitDate)
	if v.HostID != nil {
		s.counters.InvalidateHostDay(ctx, *v.HostID, v.VisitDate)
	}

	if ent, err := s.entities.GetByID(ctx, v.EntityID); err == nil {
		nctx := map[string]string{
			"visit_id":   strconv.FormatUint(v.ID, 10),
			"visit_date": v.VisitDate.Format("2006-01-02"),
			"old_status": old,
		}
		if _, err := s.disp.Send(ctx, notify.Build(ent, notify.TemplateVisitCancelled, nctx)); err != nil {
			s.logger.Warn("cancellation notification dispatch failed",
				zap.Uint64("entity_id", ent.ID), zap.Error(err))
		}
	}

	if s.recalc != nil {
		if _, err := s.recalc.ReplayEntity(ctx, v.EntityID); err != nil {
			s.logger.Warn("post-cancellation recalculation failed",
				zap.Uint64("entity_id", v.EntityID), zap.Error(err))
		}
	}
	return v, nil
}
