package plan

import (
	"github.com/zulandar/kpiyard/internal/identity"
	"github.com/zulandar/kpiyard/internal/models"
)

// Role is the side of an assignment an employee sits on.
type Role string

const (
	RoleNone      Role = ""
	RoleEvaluator Role = "EVALUATOR"
	RoleEvaluatee Role = "EVALUATEE"
)

// Counterpart returns the opposite side.
func (r Role) Counterpart() Role {
	switch r {
	case RoleEvaluator:
		return RoleEvaluatee
	case RoleEvaluatee:
		return RoleEvaluator
	}
	return RoleNone
}

// DefineOwnerRole returns the side that drafts plans under the define mode.
func DefineOwnerRole(defineMode string) Role {
	if defineMode == models.DefineModeEvaluator {
		return RoleEvaluator
	}
	return RoleEvaluatee
}

// Roles is the actor's position relative to one assignment.
type Roles struct {
	Side          Role
	IsDefineOwner bool
	IsConfirmer   bool
}

// IsParty reports whether the actor is the evaluator or the evaluatee.
func (r Roles) IsParty() bool { return r.Side != RoleNone }

// ResolveRoles crosses the cycle's define mode with the actor's side of the
// assignment. Admin status is not a role; callers check it separately.
func ResolveRoles(defineMode string, a *models.Assignment, actor identity.Actor) Roles {
	var side Role
	switch actor.EmployeeID {
	case a.EvaluatorID:
		side = RoleEvaluator
	case a.EvaluateeID:
		side = RoleEvaluatee
	}
	if side == RoleNone {
		return Roles{}
	}
	owner := DefineOwnerRole(defineMode)
	return Roles{
		Side:          side,
		IsDefineOwner: side == owner,
		IsConfirmer:   side == owner.Counterpart(),
	}
}

// EmployeeFor returns the employee id sitting on the given side.
func EmployeeFor(a *models.Assignment, r Role) string {
	switch r {
	case RoleEvaluator:
		return a.EvaluatorID
	case RoleEvaluatee:
		return a.EvaluateeID
	}
	return ""
}
