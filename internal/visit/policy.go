// Package visit contains the pure core of the registry: per-type visit
// policies, the stored-status machine, the derived display status, the
// quota calculator and the chronological replay used by recalculation.
// Nothing in this package touches storage, the clock or the network;
// "today" is always a parameter so every function is deterministic.
package visit

// HostDailyLimit caps distinct non-courtesy guest visits per host per
// calendar day. It applies across entities and is therefore checked at
// registration time, not during a per-entity replay.
const HostDailyLimit = 4

// TypePolicy holds the quota and behaviour knobs for one entity type.
// Policies are configuration (see config.LoadPolicies), not code, so new
// entity types can be added without touching the status machine.
type TypePolicy struct {
	// MonthlyLimit caps counted visits per calendar month. 0 disables.
	MonthlyLimit int `json:"monthly_limit"`
	// YearlyLimit caps counted visits per calendar year. 0 disables.
	YearlyLimit int `json:"yearly_limit"`
	// ExemptPurposes lists visit purposes excluded from the yearly count
	// (e.g. tournament visits for reciprocating members).
	ExemptPurposes []string `json:"exempt_purposes"`
	// HostCapacity applies the host daily limit to non-courtesy visits.
	HostCapacity bool `json:"host_capacity"`
	// SuspendedMayRegister lets a suspended entity keep registering;
	// its visits are admitted capacity-pending instead of being refused.
	SuspendedMayRegister bool `json:"suspended_may_register"`
	// PurposeAtSignIn marks types whose visit purpose is only fixed at
	// arrival, not at booking.
	PurposeAtSignIn bool `json:"purpose_at_sign_in"`
}

// YearlyExempt reports whether a visit with the given purpose is excluded
// from the yearly count under this policy.
func (p TypePolicy) YearlyExempt(purpose *string) bool {
	if purpose == nil {
		return false
	}
	for _, ex := range p.ExemptPurposes {
		if ex == *purpose {
			return true
		}
	}
	return false
}

// PolicyTable maps an entity type name to its policy. Unknown types fall
// back to the zero policy (no quotas, no host capacity), which is also
// what employees use.
type PolicyTable map[string]TypePolicy

// For returns the policy for an entity type.
func (t PolicyTable) For(entityType string) TypePolicy { return t[entityType] }

// Known reports whether the table carries a policy for the type. The
// registration service rejects unknown types rather than silently
// admitting them quota-free.
func (t PolicyTable) Known(entityType string) bool {
	_, ok := t[entityType]
	return ok
}

// DefaultPolicies returns the built-in policy table, used when no policy
// file is configured.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		"guest": {
			MonthlyLimit:         4,
			YearlyLimit:          24,
			HostCapacity:         true,
			SuspendedMayRegister: true,
		},
		"reciprocating_member": {
			YearlyLimit:          24,
			ExemptPurposes:       []string{"tournament"},
			SuspendedMayRegister: true,
			PurposeAtSignIn:      true,
		},
		"accommodation_guest": {
			HostCapacity:         true,
			SuspendedMayRegister: true,
		},
		"employee": {
			SuspendedMayRegister: true,
		},
		"supplier": {},
	}
}
