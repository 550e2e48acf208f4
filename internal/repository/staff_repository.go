package repository

import (
	"context"
	"database/sql"

	"github.com/gatehouse/visit-registry/internal/model"
)

// StaffRepo provides lookups for staff accounts, the operators who hold
// capability-matrix roles. Password material never leaves this layer
// except as a bcrypt hash.
type StaffRepo struct {
	db *sql.DB
}

// NewStaffRepo returns a new StaffRepo bound to the given database.
func NewStaffRepo(db *sql.DB) *StaffRepo { return &StaffRepo{db: db} }

// GetByEmail returns the account for a login email or ErrStaffNotFound.
func (r *StaffRepo) GetByEmail(ctx context.Context, email string) (*model.StaffAccount, error) {
	const q = `SELECT id, email, password_hash, role, is_active, created_at, updated_at
	           FROM staff_accounts WHERE email = ?`
	var s model.StaffAccount
	err := r.db.QueryRowContext(ctx, q, email).Scan(
		&s.ID, &s.Email, &s.PasswordHash, &s.Role, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrStaffNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a staff account and populates the generated ID.
func (r *StaffRepo) Create(ctx context.Context, s *model.StaffAccount) error {
	const q = `INSERT INTO staff_accounts (email, password_hash, role, is_active) VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, s.Email, s.PasswordHash, s.Role, s.IsActive)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}
