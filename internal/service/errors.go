package service

import (
	"fmt"
	"strings"
)

// ValidationError aborts an operation before any persistence. It carries
// every failed check, not just the first, so one round trip surfaces all
// input problems.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Reasons, "; ")
}

// StateConflictError is returned when an operation's precondition on the
// current visit state does not hold: sign-in without approval, double
// sign-in, sign-out without sign-in, cancelling a terminal visit.
type StateConflictError struct {
	Reason string
}

func (e *StateConflictError) Error() string { return e.Reason }

// EntityBlockedError is returned when a banned entity, or a suspended
// entity whose type policy disallows it, attempts an operation.
type EntityBlockedError struct {
	EntityID uint64
	Status   string
}

func (e *EntityBlockedError) Error() string {
	return fmt.Sprintf("entity %d is %s", e.EntityID, e.Status)
}
