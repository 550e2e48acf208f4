package model

import "time"

// StaffAccount models a row in the `staff_accounts` table. Staff are the
// operators of the registry (front desk, managers, admins), not visitable
// entities. Only the bcrypt hash of the password is stored. The Role
// value is carried in the JWT and checked against the capability matrix.
//
// Fields:
//
//	ID           – primary key identifier.
//	Email        – unique login email.
//	PasswordHash – bcrypt hashed password.
//	Role         – capability-matrix role (e.g. front_desk, manager, admin).
//	IsActive     – whether the account may log in.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type StaffAccount struct {
	ID           uint64    // staff_accounts.id
	Email        string    // staff_accounts.email
	PasswordHash string    // staff_accounts.password_hash
	Role         string    // staff_accounts.role
	IsActive     bool      // staff_accounts.is_active
	CreatedAt    time.Time // staff_accounts.created_at
	UpdatedAt    time.Time // staff_accounts.updated_at
}
