package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gatehouse/visit-registry/internal/model"
	"github.com/gatehouse/visit-registry/internal/visit"
)

// Capability describes what a staff role may do.  Operations is the set
// of permitted operation names and RegisterTypes restricts which entity
// types the role may register visits for ("*" means any known type).
type Capability struct {
	Operations    []string `json:"operations"`
	RegisterTypes []string `json:"register_types"`
}

// CapabilityTable maps a staff role to its capability.
type CapabilityTable map[string]Capability

// Allows reports whether the role may perform the named operation.
func (t CapabilityTable) Allows(role, operation string) bool {
	cap, ok := t[role]
	if !ok {
		return false
	}
	for _, op := range cap.Operations {
		if op == operation {
			return true
		}
	}
	return false
}

// MayRegister reports whether the role may register visits for the given
// entity type.
func (t CapabilityTable) MayRegister(role, entityType string) bool {
	cap, ok := t[role]
	if !ok {
		return false
	}
	for _, et := range cap.RegisterTypes {
		if et == "*" || et == entityType {
			return true
		}
	}
	return false
}

// DefaultCapabilities returns the built-in role matrix.  Front desk staff
// handle the daily flow, managers additionally manage entities and trigger
// recalculation, admins can do everything including bans and deletes.
func DefaultCapabilities() CapabilityTable {
	return CapabilityTable{
		"front_desk": {
			Operations:    []string{"register", "signin", "signout", "cancel", "counters"},
			RegisterTypes: []string{model.TypeGuest, model.TypeAccommodationGuest, model.TypeReciprocatingMember},
		},
		"manager": {
			Operations:    []string{"register", "signin", "signout", "cancel", "counters", "admin-entity", "recalc"},
			RegisterTypes: []string{"*"},
		},
		"admin": {
			Operations:    []string{"register", "signin", "signout", "cancel", "counters", "admin-entity", "recalc", "admin-staff"},
			RegisterTypes: []string{"*"},
		},
	}
}

// policyFile is the on-disk shape of the optional POLICY_FILE document.
// Either section may be omitted, in which case the built-in defaults stay
// in effect for it.
type policyFile struct {
	Policies     visit.PolicyTable `json:"policies"`
	Capabilities CapabilityTable   `json:"capabilities"`
}

// LoadPolicies returns the per-type visit policies and the role capability
// matrix.  When path is empty the compiled-in defaults are used; otherwise
// the JSON file is read and each present section replaces its default.
func LoadPolicies(path string) (visit.PolicyTable, CapabilityTable, error) {
	policies := visit.DefaultPolicies()
	caps := DefaultCapabilities()
	if path == "" {
		return policies, caps, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read policy file: %w", err)
	}
	var pf policyFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return nil, nil, fmt.Errorf("parse policy file: %w", err)
	}
	if len(pf.Policies) > 0 {
		policies = pf.Policies
	}
	if len(pf.Capabilities) > 0 {
		caps = pf.Capabilities
	}
	return policies, caps, nil
}
