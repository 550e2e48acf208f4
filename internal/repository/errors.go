// Package repository implements persistence for entities, visits and
// staff accounts on MySQL. Sentinel errors defined here let handlers and
// services distinguish failure scenarios with errors.Is without knowing
// SQL details. ErrDuplicateVisit in particular can come either from the
// validation pre-check or from the storage unique key losing a race; both
// paths surface as this one value so concurrent registrations for the
// same (entity, host, date) fail identically.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrDuplicateVisit is returned when a non-cancelled visit already exists
// for the same (entity, host, date). Handlers translate this to 409.
var ErrDuplicateVisit = errors.New("duplicate visit for entity, host and date")

// ErrEntityNotFound is returned when no entity matches the lookup.
var ErrEntityNotFound = errors.New("entity not found")

// ErrVisitNotFound is returned when no visit matches the lookup.
var ErrVisitNotFound = errors.New("visit not found")

// ErrEntityHasVisits is returned when deleting an entity that visit rows
// still reference. Entities with history are never hard-deleted.
var ErrEntityHasVisits = errors.New("entity has visit history")

// ErrStaleStatus is returned by update-if-changed writes when the row no
// longer carries the expected current status. Callers treat it as a lost
// race and re-read.
var ErrStaleStatus = errors.New("status changed concurrently")

// ErrStaffNotFound is returned when no staff account matches the lookup.
var ErrStaffNotFound = errors.New("staff account not found")

const mysqlDupEntry = 1062

// isDuplicateKey reports whether err is a MySQL duplicate-key violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDupEntry
}
