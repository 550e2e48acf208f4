package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gatehouse/visit-registry/internal/model"
	"github.com/gatehouse/visit-registry/internal/notify"
	"github.com/gatehouse/visit-registry/internal/visit"
)

func seedApprovedVisit(t *testing.T, env *testEnv, date time.Time) (entID, visitID uint64) {
	t.Helper()
	ent := env.entities.add(model.Entity{
		Type: "guest", FullName: "Dana Whitfield", Phone: "+1555000001",
		Status: model.EntityActive, ReceiveSMS: true,
	})
	id := seedVisit(t, env, model.Visit{EntityID: ent.ID, VisitDate: date, Status: model.VisitApproved})
	return ent.ID, id
}

func TestSignIn_TodayApprovedVisit(t *testing.T) {
	now := day(2025, time.June, 10).Add(9 * time.Hour)
	env := newTestEnv(now)
	_, vid := seedApprovedVisit(t, env, day(2025, time.June, 10))

	v, err := env.att.SignIn(context.Background(), vid, nil)
	require.NoError(t, err)
	require.NotNil(t, v.SignInTime)
	assert.Equal(t, now, *v.SignInTime)
	assert.Equal(t, model.VisitApproved, v.Status, "sign-in never changes the stored status")

	assert.Len(t, env.disp.byTemplate(notify.TemplateVisitSignedIn), 1)
}

func TestSignIn_WrongDayRefused(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 10))
	_, vid := seedApprovedVisit(t, env, day(2025, time.June, 12))

	_, err := env.att.SignIn(context.Background(), vid, nil)
	var sc *StateConflictError
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, "visit is not approved for today", sc.Reason)
}

func TestSignIn_UnapprovedRefused(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 10))
	ent := env.entities.add(model.Entity{
		Type: "guest", FullName: "Dana Whitfield", Phone: "+1555000001",
		Status: model.EntityActive,
	})
	vid := seedVisit(t, env, model.Visit{EntityID: ent.ID, VisitDate: day(2025, time.June, 10), Status: model.VisitUnapproved})

	_, err := env.att.SignIn(context.Background(), vid, nil)
	var sc *StateConflictError
	assert.ErrorAs(t, err, &sc)
}

func TestSignIn_TwiceRefused(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 10).Add(9 * time.Hour))
	_, vid := seedApprovedVisit(t, env, day(2025, time.June, 10))

	_, err := env.att.SignIn(context.Background(), vid, nil)
	require.NoError(t, err)

	_, err = env.att.SignIn(context.Background(), vid, nil)
	var sc *StateConflictError
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, "already signed in", sc.Reason)
}

func TestSignIn_PurposeRecordedAtGate(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 10).Add(9 * time.Hour))
	ent := env.entities.add(model.Entity{
		Type: "reciprocating_member", FullName: "Sam Carver", Phone: "+1555000002",
		Status: model.EntityActive,
	})
	vid := seedVisit(t, env, model.Visit{EntityID: ent.ID, VisitDate: day(2025, time.June, 10), Status: model.VisitApproved})

	// Members fix their purpose at arrival; omitting it is a validation
	// failure, supplying it stores it.
	_, err := env.att.SignIn(context.Background(), vid, nil)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	v, err := env.att.SignIn(context.Background(), vid, strptr("dining"))
	require.NoError(t, err)
	require.NotNil(t, v.Purpose)
	assert.Equal(t, "dining", *v.Purpose)
}

func TestSignOut_Flow(t *testing.T) {
	start := day(2025, time.June, 10).Add(9 * time.Hour)
	env := newTestEnv(start)
	_, vid := seedApprovedVisit(t, env, day(2025, time.June, 10))

	_, err := env.att.SignOut(context.Background(), vid)
	var sc *StateConflictError
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, "not signed in", sc.Reason)

	_, err = env.att.SignIn(context.Background(), vid, nil)
	require.NoError(t, err)

	v, err := env.att.SignOut(context.Background(), vid)
	require.NoError(t, err)
	require.NotNil(t, v.SignOutTime)
	assert.False(t, v.SignOutTime.Before(*v.SignInTime))

	_, err = env.att.SignOut(context.Background(), vid)
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, "already signed out", sc.Reason)

	assert.Len(t, env.disp.byTemplate(notify.TemplateVisitSignedOut), 1)
}

func TestSweep_ClosesOverdueVisitsAtEndOfDay(t *testing.T) {
	// A visitor signed in on June 9 and never signed out. The next day's
	// sweep stamps the sign-out at the visit day's closing time and
	// notifies.
	env := newTestEnv(day(2025, time.June, 9).Add(9 * time.Hour))
	_, vid := seedApprovedVisit(t, env, day(2025, time.June, 9))
	_, err := env.att.SignIn(context.Background(), vid, nil)
	require.NoError(t, err)

	// Move the clock to the next day and sweep.
	env.clock = fixedClock{now: day(2025, time.June, 10).Add(2 * time.Hour)}
	sweep := NewSweeper(env.visits, env.entities, env.recalc, env.disp, env.clock, zap.NewNop(), time.Hour)

	closed, err := sweep.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	v, err := env.visits.GetByID(context.Background(), vid)
	require.NoError(t, err)
	require.NotNil(t, v.SignOutTime)
	assert.Equal(t, visit.EndOfDay(day(2025, time.June, 9)), *v.SignOutTime)

	notes := env.disp.byTemplate(notify.TemplateVisitSignedOut)
	require.Len(t, notes, 1)
	assert.Equal(t, "true", notes[0].Context["auto"])

	// Re-running finds nothing left open.
	closed, err = sweep.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
}

func TestSweep_IgnoresOpenVisitsForToday(t *testing.T) {
	env := newTestEnv(day(2025, time.June, 10).Add(9 * time.Hour))
	_, vid := seedApprovedVisit(t, env, day(2025, time.June, 10))
	_, err := env.att.SignIn(context.Background(), vid, nil)
	require.NoError(t, err)

	closed, err := env.sweep.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, closed, "visits still inside their day stay open")
}
