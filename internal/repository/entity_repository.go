package repository

import (
	"context"
	"database/sql"

	"github.com/gatehouse/visit-registry/internal/model"
)

// EntityRepo provides CRUD operations for visitable entities. All
// timestamp fields are stored in UTC. Status writes use update-if-changed
// semantics so the recalculation engine and admin actions cannot clobber
// each other silently.
type EntityRepo struct {
	db *sql.DB
}

// NewEntityRepo returns a new EntityRepo bound to the given database.
func NewEntityRepo(db *sql.DB) *EntityRepo { return &EntityRepo{db: db} }

// DB exposes the underlying handle for callers that need a transaction.
func (r *EntityRepo) DB() *sql.DB { return r.db }

const entityCols = `id, entity_type, full_name, phone, email, government_id, status, receive_sms, receive_email, created_at, updated_at`

func scanEntity(row interface{ Scan(...any) error }) (*model.Entity, error) {
	var e model.Entity
	var email, govID sql.NullString
	if err := row.Scan(&e.ID, &e.Type, &e.FullName, &e.Phone, &email, &govID,
		&e.Status, &e.ReceiveSMS, &e.ReceiveEmail, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if email.Valid {
		v := email.String
		e.Email = &v
	}
	if govID.Valid {
		v := govID.String
		e.GovernmentID = &v
	}
	return &e, nil
}

// Create inserts a new entity and populates the generated ID and
// timestamps on the provided record. Status defaults to active when the
// record carries none.
func (r *EntityRepo) Create(ctx context.Context, e *model.Entity) error {
	if e.Status == "" {
		e.Status = model.EntityActive
	}
	const q = `INSERT INTO entities (entity_type, full_name, phone, email, government_id, status, receive_sms, receive_email)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, e.Type, e.FullName, e.Phone,
		nullStr(e.Email), nullStr(e.GovernmentID), e.Status, e.ReceiveSMS, e.ReceiveEmail)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	// Query back the full row to populate timestamps and defaults.
	got, err := r.GetByID(ctx, e.ID)
	if err != nil {
		return err
	}
	*e = *got
	return nil
}

// GetByID returns one entity or ErrEntityNotFound.
func (r *EntityRepo) GetByID(ctx context.Context, id uint64) (*model.Entity, error) {
	const q = `SELECT ` + entityCols + ` FROM entities WHERE id = ?`
	e, err := scanEntity(r.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, ErrEntityNotFound
	}
	return e, err
}

// FindByNaturalKey matches an entity by government ID when supplied,
// falling back to phone. Registration uses this to attach a visit to an
// existing entity instead of creating a duplicate person.
func (r *EntityRepo) FindByNaturalKey(ctx context.Context, governmentID *string, phone string) (*model.Entity, error) {
	if governmentID != nil && *governmentID != "" {
		const q = `SELECT ` + entityCols + ` FROM entities WHERE government_id = ?`
		e, err := scanEntity(r.db.QueryRowContext(ctx, q, *governmentID))
		if err == nil {
			return e, nil
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}
	const q = `SELECT ` + entityCols + ` FROM entities WHERE phone = ? ORDER BY id LIMIT 1`
	e, err := scanEntity(r.db.QueryRowContext(ctx, q, phone))
	if err == sql.ErrNoRows {
		return nil, ErrEntityNotFound
	}
	return e, err
}

// UpdateStatus moves an entity from one status to another atomically.
// It returns ErrStaleStatus when the row no longer holds the expected
// status, and ErrEntityNotFound when the entity does not exist.
func (r *EntityRepo) UpdateStatus(ctx context.Context, id uint64, from, to string) error {
	const q = `UPDATE entities SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`
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

// Delete removes an entity that has no visit history. Deletion is blocked
// with ErrEntityHasVisits while any visit row, cancelled or not, still
// references it; the visits are the audit trail.
func (r *EntityRepo) Delete(ctx context.Context, id uint64) error {
	var n int
	const cnt = `SELECT COUNT(*) FROM visits WHERE entity_id = ? OR host_id = ?`
	if err := r.db.QueryRowContext(ctx, cnt, id, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrEntityHasVisits
	}
	const del = `DELETE FROM entities WHERE id = ?`
	res, err := r.db.ExecContext(ctx, del, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrEntityNotFound
	}
	return nil
}

func nullStr(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
