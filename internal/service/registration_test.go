package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/visit-registry/internal/model"
	"github.com/gatehouse/visit-registry/internal/notify"
	"github.com/gatehouse/visit-registry/internal/repository"
	"github.com/gatehouse/visit-registry/internal/visit"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strptr(s string) *string { return &s }
func u64ptr(n uint64) *uint64 { return &n }

func guestInput(date time.Time) RegistrationInput {
	return RegistrationInput{
		EntityType: "guest",
		FullName:   "Dana Whitfield",
		Phone:      "+1555000001",
		ReceiveSMS: true,
		VisitDate:  date,
	}
}

func TestRegister_CreatesEntityAndApproves(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 10))

	res, err := env.reg.Register(context.Background(), guestInput(day(2025, time.June, 12)))
	require.NoError(t, err)

	assert.True(t, res.EntityCreated)
	assert.Equal(t, model.VisitApproved, res.Visit.Status)
	assert.False(t, res.CapacityPending)
	assert.Empty(t, res.Reasons)

	regs := env.disp.byTemplate(notify.TemplateVisitRegistered)
	require.Len(t, regs, 1)
	assert.Equal(t, res.Entity.ID, regs[0].EntityID)
	assert.Equal(t, []string{"sms"}, regs[0].Channels)
}

func TestRegister_ReusesEntityByNaturalKey(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 10))
	ctx := context.Background()

	first, err := env.reg.Register(ctx, guestInput(day(2025, time.June, 12)))
	require.NoError(t, err)

	in := guestInput(day(2025, time.June, 13))
	second, err := env.reg.Register(ctx, in)
	require.NoError(t, err)

	assert.False(t, second.EntityCreated)
	assert.Equal(t, first.Entity.ID, second.Entity.ID)
}

func TestRegister_CollectsAllValidationFailures(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 10))

	_, err := env.reg.Register(context.Background(), RegistrationInput{
		EntityType: "alien",
		VisitDate:  day(2025, time.June, 1), // in the past
	})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Reasons, 4, "name, phone, type and date failures reported together")
}

func TestRegister_BannedEntityRefused(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 10))
	env.entities.add(model.Entity{
		Type: "guest", FullName: "Dana Whitfield", Phone: "+1555000001",
		Status: model.EntityBanned,
	})

	_, err := env.reg.Register(context.Background(), guestInput(day(2025, time.June, 12)))

	var be *EntityBlockedError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, model.EntityBanned, be.Status)
}

func TestRegister_DuplicateSlotRejected(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 10))
	ctx := context.Background()

	_, err := env.reg.Register(ctx, guestInput(day(2025, time.June, 12)))
	require.NoError(t, err)

	_, err = env.reg.Register(ctx, guestInput(day(2025, time.June, 12)))
	assert.ErrorIs(t, err, repository.ErrDuplicateVisit)
}

func TestRegister_MonthlyQuotaDegradesNotRejects(t *testing.T) {
	// The fifth June visit exceeds the guest monthly limit of four. It is
	// still admitted, unapproved, with the reason reported.
	env := newTestEnv(day(2025, time.June, 1))
	ctx := context.Background()

	for d := 2; d <= 5; d++ {
		res, err := env.reg.Register(ctx, guestInput(day(2025, time.June, d)))
		require.NoError(t, err)
		require.Equal(t, model.VisitApproved, res.Visit.Status)
	}

	res, err := env.reg.Register(ctx, guestInput(day(2025, time.June, 6)))
	require.NoError(t, err, "quota overrun must not be an error")

	assert.True(t, res.CapacityPending)
	assert.Equal(t, model.VisitUnapproved, res.Visit.Status)
	assert.Contains(t, res.Reasons, "monthly limit reached")
}

func TestRegister_HostCapacityDegradesAndNotifiesHost(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 1))
	ctx := context.Background()
	host := env.entities.add(model.Entity{
		Type: "employee", FullName: "Morgan Hale", Phone: "+1555000099",
		Status: model.EntityActive, ReceiveSMS: true,
	})

	d := day(2025, time.June, 12)
	for i := 0; i < visit.HostDailyLimit; i++ {
		in := guestInput(d)
		in.Phone = "+155500010" + string(rune('0'+i))
		in.FullName = "Guest " + string(rune('A'+i))
		in.HostID = u64ptr(host.ID)
		res, err := env.reg.Register(ctx, in)
		require.NoError(t, err)
		require.Equal(t, model.VisitApproved, res.Visit.Status)
	}

	in := guestInput(d)
	in.Phone = "+1555000777"
	in.FullName = "Fifth Guest"
	in.HostID = u64ptr(host.ID)
	res, err := env.reg.Register(ctx, in)
	require.NoError(t, err)

	assert.True(t, res.CapacityPending)
	assert.Equal(t, model.VisitUnapproved, res.Visit.Status)
	assert.Contains(t, res.Reasons, "host daily capacity reached")

	// The post-registration reconciliation must not hand the slot back:
	// the stored row stays unapproved while the host's day is full.
	stored, err := env.visits.GetByID(ctx, res.Visit.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VisitUnapproved, stored.Status)

	n, err := env.visits.CountHostDay(ctx, host.ID, d)
	require.NoError(t, err)
	assert.Equal(t, visit.HostDailyLimit, n)

	hostNotes := env.disp.byTemplate(notify.TemplateHostCapacity)
	require.Len(t, hostNotes, 1)
	assert.Equal(t, host.ID, hostNotes[0].EntityID)
}

func TestRegister_CourtesyVisitBypassesHostCapacity(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 1))
	ctx := context.Background()
	host := env.entities.add(model.Entity{
		Type: "employee", FullName: "Morgan Hale", Phone: "+1555000099",
		Status: model.EntityActive,
	})

	d := day(2025, time.June, 12)
	for i := 0; i < visit.HostDailyLimit; i++ {
		in := guestInput(d)
		in.Phone = "+155500010" + string(rune('0'+i))
		in.HostID = u64ptr(host.ID)
		_, err := env.reg.Register(ctx, in)
		require.NoError(t, err)
	}

	in := guestInput(d)
	in.Phone = "+1555000888"
	in.HostID = u64ptr(host.ID)
	in.Courtesy = true
	res, err := env.reg.Register(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, model.VisitApproved, res.Visit.Status)
	assert.False(t, res.CapacityPending)
}

func TestRegister_NotificationFailureDoesNotFail(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 10))
	env.disp.failing = true

	res, err := env.reg.Register(context.Background(), guestInput(day(2025, time.June, 12)))
	require.NoError(t, err)
	assert.Equal(t, model.VisitApproved, res.Visit.Status)

	stored, err := env.visits.GetByID(context.Background(), res.Visit.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VisitApproved, stored.Status, "persisted despite dispatch failure")
}

func TestCancel_ReleasesSlotAndPromotesPending(t *testing.T) {
	// Four approved June visits plus one capacity-pending. Cancelling an
	// approved one frees its slot; the reconciliation run promotes the
	// pending visit.
	env := newTestEnv(day(2025, time.June, 1))
	ctx := context.Background()

	var firstID uint64
	for d := 2; d <= 5; d++ {
		res, err := env.reg.Register(ctx, guestInput(day(2025, time.June, d)))
		require.NoError(t, err)
		if d == 2 {
			firstID = res.Visit.ID
		}
	}
	pending, err := env.reg.Register(ctx, guestInput(day(2025, time.June, 6)))
	require.NoError(t, err)
	require.Equal(t, model.VisitUnapproved, pending.Visit.Status)

	cancelled, err := env.reg.Cancel(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, model.VisitCancelled, cancelled.Status)

	promoted, err := env.visits.GetByID(ctx, pending.Visit.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VisitApproved, promoted.Status)

	// Same slot can be booked again after cancellation.
	res, err := env.reg.Register(ctx, guestInput(day(2025, time.June, 2)))
	require.NoError(t, err)
	assert.NotNil(t, res.Visit)
}

func TestCancel_TerminalStatesRefused(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 1))
	ctx := context.Background()

	res, err := env.reg.Register(ctx, guestInput(day(2025, time.June, 2)))
	require.NoError(t, err)

	_, err = env.reg.Cancel(ctx, res.Visit.ID)
	require.NoError(t, err)

	_, err = env.reg.Cancel(ctx, res.Visit.ID)
	var sc *StateConflictError
	assert.ErrorAs(t, err, &sc, "cancelling twice is a state conflict")
}

func TestRegister_StoredEntityTypeGovernsPolicy(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 10))
	env.entities.add(model.Entity{
		Type: "supplier", FullName: "Dana Whitfield", Phone: "+1555000001",
		Status: model.EntitySuspended,
	})

	// The request claims guest, but the phone matches a suspended
	// supplier on file; suppliers may not register while suspended.
	_, err := env.reg.Register(context.Background(), guestInput(day(2025, time.June, 12)))

	var be *EntityBlockedError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, model.EntitySuspended, be.Status)
}

func TestRegister_SuspendedGuestAdmittedPending(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 10))
	env.entities.add(model.Entity{
		Type: "guest", FullName: "Dana Whitfield", Phone: "+1555000001",
		Status: model.EntitySuspended,
	})

	res, err := env.reg.Register(context.Background(), guestInput(day(2025, time.June, 12)))
	require.NoError(t, err, "guests may register while suspended")
	// The post-registration replay degrades the visit to the entity's
	// suspended state unless the suspension has lapsed; with no attended
	// usage on record the entity reactivates and the visit is approved.
	stored, err := env.visits.GetByID(context.Background(), res.Visit.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VisitApproved, stored.Status)
}
