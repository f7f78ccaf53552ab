package authz

import (
	"fmt"

	"fundtrail/internal/domain"
)

// ForbiddenError indicates the acting actor lacks the role an operation
// requires, or is deactivated.
type ForbiddenError struct {
	Action string
	Reason string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s forbidden: %s", e.Action, e.Reason)
}

func roleErr(action string, want ...domain.Role) error {
	reason := "role " + string(want[0]) + " required"
	if len(want) > 1 {
		reason = "role " + string(want[0])
		for _, r := range want[1:] {
			reason += " or " + string(r)
		}
		reason += " required"
	}
	return ForbiddenError{Action: action, Reason: reason}
}

// EnsureActive rejects deactivated actors before any role check.
func EnsureActive(a domain.Actor) error {
	if !a.Active {
		return ForbiddenError{Action: "access", Reason: "actor is deactivated"}
	}
	return nil
}

func CanSubmitRequest(a domain.Actor) error {
	if err := EnsureActive(a); err != nil {
		return err
	}
	if a.Role != domain.RoleStaffAssociate {
		return roleErr("submit-request", domain.RoleStaffAssociate)
	}
	return nil
}

func CanVote(a domain.Actor) error {
	if err := EnsureActive(a); err != nil {
		return err
	}
	if a.Role != domain.RoleCommitteeAdmin {
		return roleErr("cast-vote", domain.RoleCommitteeAdmin)
	}
	return nil
}

// CanDirectDecide: the chief may always decide directly; committee admins only
// when the workflow config allows it.
func CanDirectDecide(a domain.Actor, allowCommittee bool) error {
	if err := EnsureActive(a); err != nil {
		return err
	}
	switch a.Role {
	case domain.RoleChiefAdmin:
		return nil
	case domain.RoleCommitteeAdmin:
		if allowCommittee {
			return nil
		}
	}
	return roleErr("direct-decide", domain.RoleChiefAdmin)
}

func CanFinalize(a domain.Actor) error {
	if err := EnsureActive(a); err != nil {
		return err
	}
	if a.Role != domain.RoleChiefAdmin {
		return roleErr("finalize-request", domain.RoleChiefAdmin)
	}
	return nil
}

// CanPostUpdate covers expense and progress posts against a project. The
// submitting associate and either admin role may post.
func CanPostUpdate(a domain.Actor, submittedBy string) error {
	if err := EnsureActive(a); err != nil {
		return err
	}
	switch a.Role {
	case domain.RoleChiefAdmin, domain.RoleCommitteeAdmin:
		return nil
	case domain.RoleStaffAssociate:
		if a.ID == submittedBy {
			return nil
		}
		return ForbiddenError{Action: "post-update", Reason: "only the submitting associate may post"}
	}
	return roleErr("post-update", domain.RoleChiefAdmin, domain.RoleCommitteeAdmin, domain.RoleStaffAssociate)
}

func CanSetProjectStatus(a domain.Actor) error {
	if err := EnsureActive(a); err != nil {
		return err
	}
	if a.Role != domain.RoleChiefAdmin {
		return roleErr("set-project-status", domain.RoleChiefAdmin)
	}
	return nil
}

func CanManageActors(a domain.Actor) error {
	if err := EnsureActive(a); err != nil {
		return err
	}
	if a.Role != domain.RoleChiefAdmin {
		return roleErr("manage-actors", domain.RoleChiefAdmin)
	}
	return nil
}
