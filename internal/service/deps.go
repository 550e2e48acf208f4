// Package service implements the business operations of the registry:
// registration, sign-in/out, cancellation, recalculation and the
// end-of-day sweep. Services take their collaborators (storage, cache,
// dispatcher, clock) as explicit constructor dependencies so tests can
// substitute doubles; there are no package-level singletons and "today"
// is never read from a hidden global.
package service

import (
	"context"
	"time"

	"github.com/gatehouse/visit-registry/internal/model"
)

// Clock supplies the current time. Production uses RealClock; tests pin
// a date so quota and derived-status decisions are reproducible.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// VisitStore is the persistence surface the services need for visits.
// *repository.VisitRepo satisfies it.
type VisitStore interface {
	Create(ctx context.Context, v *model.Visit) error
	GetByID(ctx context.Context, id uint64) (*model.Visit, error)
	ListByEntity(ctx context.Context, entityID uint64, includeCancelled bool) ([]model.Visit, error)
	ExistsActiveSlot(ctx context.Context, entityID uint64, hostID *uint64, date time.Time) (bool, error)
	CountHostDay(ctx context.Context, hostID uint64, day time.Time) (int, error)
	UpdateStatus(ctx context.Context, id uint64, from, to string) error
	Cancel(ctx context.Context, id uint64, from string) error
	SetSignIn(ctx context.Context, id uint64, at time.Time, purpose *string) error
	SetSignOut(ctx context.Context, id uint64, at time.Time) error
	ListOpenBefore(ctx context.Context, day time.Time) ([]model.Visit, error)
	DistinctEntityIDs(ctx context.Context) ([]uint64, error)
}

// EntityStore is the persistence surface the services need for entities.
// *repository.EntityRepo satisfies it.
type EntityStore interface {
	Create(ctx context.Context, e *model.Entity) error
	GetByID(ctx context.Context, id uint64) (*model.Entity, error)
	FindByNaturalKey(ctx context.Context, governmentID *string, phone string) (*model.Entity, error)
	UpdateStatus(ctx context.Context, id uint64, from, to string) error
}
