package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gatehouse/visit-registry/internal/notify"
	"github.com/gatehouse/visit-registry/internal/visit"
)

// Sweeper closes out visits that were signed in but never signed out.
// At each tick it stamps the missing sign-out at the premises closing
// time of the visit day and then replays every entity so counters and
// suspensions catch up with the attendance that just became final.
type Sweeper struct {
	visits   VisitStore
	entities EntityStore
	recalc   *RecalcEngine
	disp     notify.Dispatcher
	clock    Clock
	logger   *zap.Logger

	interval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewSweeper wires the sweeper. interval <= 0 falls back to hourly.
func NewSweeper(visits VisitStore, entities EntityStore, recalc *RecalcEngine,
	disp notify.Dispatcher, clock Clock, logger *zap.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		visits:   visits,
		entities: entities,
		recalc:   recalc,
		disp:     disp,
		clock:    clock,
		logger:   logger,
		interval: interval,
	}
}

// RunOnce performs a single sweep pass. It is safe to call directly,
// which the tests and the admin recalculation endpoint both rely on.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	today := visit.DateOnly(s.clock.Now())
	open, err := s.visits.ListOpenBefore(ctx, today)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, v := range open {
		at := visit.EndOfDay(v.VisitDate)
		if v.SignInTime != nil && at.Before(*v.SignInTime) {
			at = *v.SignInTime
		}
		if err := s.visits.SetSignOut(ctx, v.ID, at); err != nil {
			s.logger.Warn("auto sign-out failed", zap.Uint64("visit_id", v.ID), zap.Error(err))
			continue
		}
		closed++
		ent, err := s.entities.GetByID(ctx, v.EntityID)
		if err != nil {
			s.logger.Warn("load entity after auto sign-out failed",
				zap.Uint64("entity_id", v.EntityID), zap.Error(err))
			continue
		}
		nctx := map[string]string{
			"visit_id":   strconv.FormatUint(v.ID, 10),
			"visit_date": v.VisitDate.Format("2006-01-02"),
			"auto":       "true",
		}
		if _, err := s.disp.Send(ctx, notify.Build(ent, notify.TemplateVisitSignedOut, nctx)); err != nil {
			s.logger.Warn("auto sign-out notification dispatch failed",
				zap.Uint64("entity_id", ent.ID), zap.Error(err))
		}
	}
	if closed > 0 && s.recalc != nil {
		if changes, err := s.recalc.RunAll(ctx); err != nil {
			s.logger.Warn("post-sweep recalculation failed", zap.Error(err))
		} else if changes > 0 {
			s.logger.Info("post-sweep recalculation applied changes", zap.Int("count", changes))
		}
	}
	return closed, nil
}

// Start launches the background loop. Calling Start twice is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.stop)
	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) loop(stop chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if n, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("sweep pass failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("sweep pass closed visits", zap.Int("count", n))
			}
			cancel()
		}
	}
}
