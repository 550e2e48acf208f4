package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/gatehouse/visit-registry/internal/model"
	"github.com/gatehouse/visit-registry/internal/visit"
)

// VisitRepo provides CRUD operations for visit rows. The table carries a
// unique key uniq_visit_slot (entity_id, host_id, visit_date, slot_guard)
// where slot_guard is 1 on live rows and NULL after cancellation, so the
// at-most-one-non-cancelled-visit-per-slot invariant holds in storage and
// a concurrent double registration loses with a duplicate-key error
// rather than silently double-booking. host_id is 0 for host-less visits
// (MySQL unique keys skip NULL columns, so NULL would not collide).
type VisitRepo struct {
	db *sql.DB
}

// NewVisitRepo returns a new VisitRepo bound to the given database.
func NewVisitRepo(db *sql.DB) *VisitRepo { return &VisitRepo{db: db} }

// DB exposes the underlying handle for callers that need a transaction.
func (r *VisitRepo) DB() *sql.DB { return r.db }

const visitCols = `id, entity_id, host_id, visit_date, visit_purpose, courtesy, sign_in_time, sign_out_time, status, created_at, updated_at`

func hostParam(hostID *uint64) uint64 {
	if hostID == nil {
		return 0
	}
	return *hostID
}

func scanVisit(row interface{ Scan(...any) error }) (*model.Visit, error) {
	var v model.Visit
	var hostID uint64
	var purpose sql.NullString
	var signIn, signOut sql.NullTime
	if err := row.Scan(&v.ID, &v.EntityID, &hostID, &v.VisitDate, &purpose, &v.Courtesy,
		&signIn, &signOut, &v.Status, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if hostID != 0 {
		v.HostID = &hostID
	}
	if purpose.Valid {
		p := purpose.String
		v.Purpose = &p
	}
	if signIn.Valid {
		t := signIn.Time.UTC()
		v.SignInTime = &t
	}
	if signOut.Valid {
		t := signOut.Time.UTC()
		v.SignOutTime = &t
	}
	v.VisitDate = visit.DateOnly(v.VisitDate)
	return &v, nil
}

// Create inserts a new visit with an occupied slot guard and reads the
// row back to populate the generated ID and timestamps. A duplicate-key
// violation on uniq_visit_slot, whether the pre-check missed it or a
// concurrent request won the race, is returned as ErrDuplicateVisit.
func (r *VisitRepo) Create(ctx context.Context, v *model.Visit) error {
	const q = `INSERT INTO visits (entity_id, host_id, visit_date, visit_purpose, courtesy, status, slot_guard)
	           VALUES (?, ?, ?, ?, ?, ?, 1)`
	res, err := r.db.ExecContext(ctx, q, v.EntityID, hostParam(v.HostID),
		visit.DateOnly(v.VisitDate), nullStr(v.Purpose), v.Courtesy, v.Status)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateVisit
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	got, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*v = *got
	return nil
}

// GetByID returns one visit or ErrVisitNotFound.
func (r *VisitRepo) GetByID(ctx context.Context, id uint64) (*model.Visit, error) {
	const q = `SELECT ` + visitCols + ` FROM visits WHERE id = ?`
	v, err := scanVisit(r.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, ErrVisitNotFound
	}
	return v, err
}

// ExistsActiveSlot reports whether a non-cancelled visit already occupies
// the (entity, host, date) slot. This backs the validation pre-check; the
// unique key remains the authority under concurrency.
func (r *VisitRepo) ExistsActiveSlot(ctx context.Context, entityID uint64, hostID *uint64, date time.Time) (bool, error) {
	const q = `SELECT COUNT(*) FROM visits
	           WHERE entity_id = ? AND host_id = ? AND visit_date = ? AND slot_guard IS NOT NULL`
	var n int
	err := r.db.QueryRowContext(ctx, q, entityID, hostParam(hostID), visit.DateOnly(date)).Scan(&n)
	return n > 0, err
}

// ListByEntity returns an entity's visits ordered by (visit_date, id)
// ascending, the order every replay depends on. Cancelled rows are
// excluded unless includeCancelled is set.
func (r *VisitRepo) ListByEntity(ctx context.Context, entityID uint64, includeCancelled bool) ([]model.Visit, error) {
	q := `SELECT ` + visitCols + ` FROM visits WHERE entity_id = ?`
	if !includeCancelled {
		q += ` AND status <> 'cancelled'`
	}
	q += ` ORDER BY visit_date ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, q, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// CountHostDay tallies the approved, non-courtesy, non-cancelled visits a
// host is responsible for on one calendar day, across all entities.
func (r *VisitRepo) CountHostDay(ctx context.Context, hostID uint64, day time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM visits
	           WHERE host_id = ? AND visit_date = ? AND courtesy = 0
	             AND status = 'approved' AND slot_guard IS NOT NULL`
	var n int
	err := r.db.QueryRowContext(ctx, q, hostID, visit.DateOnly(day)).Scan(&n)
	return n, err
}

// UpdateStatus moves a visit from one stored status to another
// atomically, used by the recalculation engine to write back deltas.
// Returns ErrStaleStatus when the row no longer holds the expected
// status and ErrVisitNotFound when the visit does not exist.
func (r *VisitRepo) UpdateStatus(ctx context.Context, id uint64, from, to string) error {
	const q = `UPDATE visits SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, to, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrStaleStatus
}

// Cancel marks a visit cancelled and releases its slot guard so the
// (entity, host, date) slot can be re-booked. The expected current status
// guards against cancelling a visit that moved in the meantime.
func (r *VisitRepo) Cancel(ctx context.Context, id uint64, from string) error {
	const q = `UPDATE visits SET status = 'cancelled', slot_guard = NULL, updated_at = CURRENT_TIMESTAMP
	           WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrStaleStatus
}

// SetSignIn stamps the arrival time, and the purpose when supplied at the
// gate. The WHERE clause re-checks the preconditions (approved, not yet
// signed in) so a double sign-in loses even under concurrency.
func (r *VisitRepo) SetSignIn(ctx context.Context, id uint64, at time.Time, purpose *string) error {
	const q = `UPDATE visits SET sign_in_time = ?, visit_purpose = COALESCE(?, visit_purpose), updated_at = CURRENT_TIMESTAMP
	           WHERE id = ? AND status = 'approved' AND sign_in_time IS NULL`
	res, err := r.db.ExecContext(ctx, q, at.UTC(), nullStr(purpose), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrStaleStatus
}

// SetSignOut stamps the departure time. The WHERE clause enforces the
// sign_out_time invariant: only set on signed-in, not-yet-signed-out rows
// and never before the sign-in time.
func (r *VisitRepo) SetSignOut(ctx context.Context, id uint64, at time.Time) error {
	const q = `UPDATE visits SET sign_out_time = ?, updated_at = CURRENT_TIMESTAMP
	           WHERE id = ? AND sign_in_time IS NOT NULL AND sign_out_time IS NULL AND sign_in_time <= ?`
	res, err := r.db.ExecContext(ctx, q, at.UTC(), id, at.UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrStaleStatus
}

// ListOpenBefore returns visits dated before the given day that were
// signed in but never signed out. The end-of-day sweep closes them.
func (r *VisitRepo) ListOpenBefore(ctx context.Context, day time.Time) ([]model.Visit, error) {
	const q = `SELECT ` + visitCols + ` FROM visits
	           WHERE visit_date < ? AND sign_in_time IS NOT NULL AND sign_out_time IS NULL
	           ORDER BY visit_date ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, q, visit.DateOnly(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// DistinctEntityIDs returns every entity that owns at least one
// non-cancelled visit, for the bulk recalculation run.
func (r *VisitRepo) DistinctEntityIDs(ctx context.Context) ([]uint64, error) {
	const q = `SELECT DISTINCT entity_id FROM visits WHERE status <> 'cancelled' ORDER BY entity_id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
