package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/gatehouse/visit-registry/internal/cache"
	"github.com/gatehouse/visit-registry/internal/model"
	"github.com/gatehouse/visit-registry/internal/notify"
	"github.com/gatehouse/visit-registry/internal/visit"
)

// StatusChange records one delta the recalculation engine wrote back.
type StatusChange struct {
	EntityID uint64
	VisitID  uint64 // 0 for an entity-level change
	From     string
	To       string
}

// RecalcEngine is the single source of truth reconciler. It re-derives
// every visit status and the owning entity's suspension status from the
// persisted rows, never from the cache. It writes back only actual deltas,
// refreshes the advisory counters, and notifies each change with the old
// and new status attached. Runs are idempotent and scoped to one entity's rows, so the
// engine is safe to run concurrently with in-flight registrations and for
// different entities in parallel.
type RecalcEngine struct {
	visits   VisitStore
	entities EntityStore
	policies visit.PolicyTable
	counters *cache.CounterCache
	disp     notify.Dispatcher
	clock    Clock
	logger   *zap.Logger
}

// NewRecalcEngine wires the engine. counters may be nil-backed; the
// dispatcher must not be nil.
func NewRecalcEngine(visits VisitStore, entities EntityStore, policies visit.PolicyTable,
	counters *cache.CounterCache, disp notify.Dispatcher, clock Clock, logger *zap.Logger) *RecalcEngine {
	return &RecalcEngine{
		visits:   visits,
		entities: entities,
		policies: policies,
		counters: counters,
		disp:     disp,
		clock:    clock,
		logger:   logger,
	}
}

// ReplayEntity recalculates one entity and returns the change-set it
// persisted. Promotion of capacity-pending visits when a slot was freed
// happens here as a side effect of the chronological replay: the earliest
// eligible visit (by visit_date, then insertion order) is approved first.
// A promotion is withheld while the visit's host is still at daily
// capacity; the visit stays unapproved until a peer frees the day.
func (e *RecalcEngine) ReplayEntity(ctx context.Context, entityID uint64) ([]StatusChange, error) {
	ent, err := e.entities.GetByID(ctx, entityID)
	if err != nil {
		return nil, err
	}
	history, err := e.visits.ListByEntity(ctx, entityID, false)
	if err != nil {
		return nil, fmt.Errorf("load visits for entity %d: %w", entityID, err)
	}

	today := e.clock.Now()
	pol := e.policies.For(ent.Type)
	out := visit.Replay(history, pol, ent.Status, today)

	var changes []StatusChange
	for i, v := range out.Visits {
		want := out.Desired[i]
		// The per-entity replay counters know nothing about host capacity,
		// which spans entities. A promotion into approved must not overfill
		// the host's day, so it is re-checked against the store here.
		if want == model.VisitApproved && v.Status != model.VisitApproved &&
			v.HostID != nil && !v.Courtesy && pol.HostCapacity {
			n, err := e.visits.CountHostDay(ctx, *v.HostID, v.VisitDate)
			if err != nil {
				e.logger.Warn("host capacity check failed, keeping status",
					zap.Uint64("visit_id", v.ID), zap.Error(err))
				continue
			}
			if n >= visit.HostDailyLimit {
				want = model.VisitUnapproved
			}
		}
		if want == v.Status {
			continue
		}
		if !visit.CanTransition(v.Status, want) {
			e.logger.Warn("replay produced illegal transition, skipping",
				zap.Uint64("visit_id", v.ID),
				zap.String("from", v.Status), zap.String("to", want))
			continue
		}
		if err := e.visits.UpdateStatus(ctx, v.ID, v.Status, want); err != nil {
			// A lost race means another writer moved the row; the next
			// run re-derives from whatever won.
			e.logger.Warn("status write-back failed",
				zap.Uint64("visit_id", v.ID), zap.Error(err))
			continue
		}
		changes = append(changes, StatusChange{EntityID: entityID, VisitID: v.ID, From: v.Status, To: want})
	}

	// Entity verdict after the visit pass. Only this engine moves an
	// entity between active and suspended; banned passes through.
	if out.EntityStatus != ent.Status {
		if err := e.entities.UpdateStatus(ctx, ent.ID, ent.Status, out.EntityStatus); err != nil {
			e.logger.Warn("entity status write-back failed",
				zap.Uint64("entity_id", ent.ID), zap.Error(err))
		} else {
			changes = append(changes, StatusChange{EntityID: entityID, From: ent.Status, To: out.EntityStatus})
		}
	}

	e.refreshCounters(ctx, entityID, out)
	e.notifyChanges(ctx, ent, changes)
	return changes, nil
}

// RunAll recalculates every entity that owns visits. Used by the
// scheduled bulk runs at day/month/year boundaries.
func (e *RecalcEngine) RunAll(ctx context.Context) (int, error) {
	ids, err := e.visits.DistinctEntityIDs(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, id := range ids {
		changes, err := e.ReplayEntity(ctx, id)
		if err != nil {
			e.logger.Warn("recalculation failed for entity",
				zap.Uint64("entity_id", id), zap.Error(err))
			continue
		}
		total += len(changes)
	}
	return total, nil
}

func (e *RecalcEngine) refreshCounters(ctx context.Context, entityID uint64, out visit.ReplayOutcome) {
	today := e.clock.Now()
	counts := map[string]int{
		visit.MonthKey(today): out.MonthCounts[visit.MonthKey(today)],
		visit.YearKey(today):  out.YearCounts[visit.YearKey(today)],
	}
	e.counters.SetEntityCounts(ctx, entityID, counts)
}

func (e *RecalcEngine) notifyChanges(ctx context.Context, ent *model.Entity, changes []StatusChange) {
	for _, ch := range changes {
		tmpl := notify.TemplateVisitStatusChanged
		nctx := map[string]string{
			"old_status": ch.From,
			"new_status": ch.To,
		}
		if ch.VisitID == 0 {
			tmpl = notify.TemplateEntityStatusChanged
		} else {
			nctx["visit_id"] = strconv.FormatUint(ch.VisitID, 10)
		}
		if _, err := e.disp.Send(ctx, notify.Build(ent, tmpl, nctx)); err != nil {
			e.logger.Warn("notification dispatch failed",
				zap.Uint64("entity_id", ent.ID), zap.String("template", tmpl), zap.Error(err))
		}
	}
}
