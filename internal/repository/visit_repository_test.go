package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/visit-registry/internal/model"
)

func newVisitMock(t *testing.T) (*VisitRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewVisitRepo(db), mock
}

func visitRows(v model.Visit) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "entity_id", "host_id", "visit_date", "visit_purpose", "courtesy",
		"sign_in_time", "sign_out_time", "status", "created_at", "updated_at",
	}).AddRow(v.ID, v.EntityID, uint64(0), v.VisitDate, nil, v.Courtesy,
		nil, nil, v.Status, time.Now(), time.Now())
}

func TestVisitCreate_DuplicateKeyMapsToSentinel(t *testing.T) {
	repo, mock := newVisitMock(t)

	mock.ExpectExec("INSERT INTO visits").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	v := &model.Visit{EntityID: 1, VisitDate: time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC), Status: model.VisitApproved}
	err := repo.Create(context.Background(), v)
	assert.ErrorIs(t, err, ErrDuplicateVisit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitCreate_ReadsRowBack(t *testing.T) {
	repo, mock := newVisitMock(t)
	date := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO visits").
		WithArgs(uint64(1), uint64(0), date, nil, false, model.VisitApproved).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery("SELECT (.+) FROM visits WHERE id =").
		WithArgs(uint64(42)).
		WillReturnRows(visitRows(model.Visit{ID: 42, EntityID: 1, VisitDate: date, Status: model.VisitApproved}))

	v := &model.Visit{EntityID: 1, VisitDate: date, Status: model.VisitApproved}
	require.NoError(t, repo.Create(context.Background(), v))
	assert.Equal(t, uint64(42), v.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitGetByID_NotFound(t *testing.T) {
	repo, mock := newVisitMock(t)

	mock.ExpectQuery("SELECT (.+) FROM visits WHERE id =").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), 7)
	assert.ErrorIs(t, err, ErrVisitNotFound)
}

func TestVisitListByEntity_OrdersByDateThenID(t *testing.T) {
	repo, mock := newVisitMock(t)
	date := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT (.+) FROM visits WHERE entity_id = \? AND status <> 'cancelled' ORDER BY visit_date ASC, id ASC`).
		WithArgs(uint64(1)).
		WillReturnRows(visitRows(model.Visit{ID: 3, EntityID: 1, VisitDate: date, Status: model.VisitApproved}))

	out, err := repo.ListByEntity(context.Background(), 1, false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint64(3), out[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitUpdateStatus_StaleRowReported(t *testing.T) {
	repo, mock := newVisitMock(t)
	date := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE visits SET status").
		WithArgs(model.VisitApproved, uint64(3), model.VisitUnapproved).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// Zero rows affected: the repo re-reads to distinguish stale from gone.
	mock.ExpectQuery("SELECT (.+) FROM visits WHERE id =").
		WithArgs(uint64(3)).
		WillReturnRows(visitRows(model.Visit{ID: 3, EntityID: 1, VisitDate: date, Status: model.VisitCancelled}))

	err := repo.UpdateStatus(context.Background(), 3, model.VisitUnapproved, model.VisitApproved)
	assert.ErrorIs(t, err, ErrStaleStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitCancel_ReleasesSlotGuard(t *testing.T) {
	repo, mock := newVisitMock(t)

	mock.ExpectExec(`UPDATE visits SET status = 'cancelled', slot_guard = NULL`).
		WithArgs(uint64(3), model.VisitApproved).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Cancel(context.Background(), 3, model.VisitApproved))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitSetSignOut_GuardsOrdering(t *testing.T) {
	repo, mock := newVisitMock(t)
	at := time.Date(2025, 6, 12, 18, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE visits SET sign_out_time").
		WithArgs(at, uint64(3), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.SetSignOut(context.Background(), 3, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityDelete_BlockedByVisitHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := NewEntityRepo(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM visits`).
		WithArgs(uint64(5), uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	err = repo.Delete(context.Background(), 5)
	assert.ErrorIs(t, err, ErrEntityHasVisits)
	assert.NoError(t, mock.ExpectationsWereMet())
}
