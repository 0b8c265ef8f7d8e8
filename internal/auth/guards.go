package auth

import (
	"context"
	"errors"
	"fmt"
)

// UserDraft is the pre-persistence shape of a principal an administrator is
// creating. GuardCreateUser normalizes it in place.
type UserDraft struct {
	Username string
	Email    string
	Role     Role
	TenantID string
	BranchID string
}

// GuardCreateUser applies the role-aware creation rules, distinct from
// route authorization:
//   - a TenantAdmin creates users only inside its own tenant (the tenant id
//     is forced, not trusted) and may not mint TenantAdmins or SuperAdmins;
//   - a declared branch must exist and belong to the draft's tenant;
//   - a BranchAdmin may not create users at all.
func (s *Service) GuardCreateUser(ctx context.Context, actor AuthenticatedContext, draft *UserDraft) error {
	deny := func(reason string) error {
		s.emit(ctx, "authz.user.create.denied", actor.PrincipalID, map[string]any{
			"reason": reason,
			"role":   actor.Role,
		})
		return ErrForbidden
	}
	if draft == nil {
		return fmt.Errorf("%w: user draft is required", ErrInvalidInput)
	}
	if !draft.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, draft.Role)
	}

	switch actor.Role {
	case RoleSuperAdmin:
		// Unrestricted, still subject to the structural checks below.
	case RoleTenantAdmin:
		if draft.Role == RoleSuperAdmin || draft.Role == RoleTenantAdmin {
			return deny("tenant admin cannot assign role " + string(draft.Role))
		}
		// Forced, never trusted from the request.
		draft.TenantID = actor.TenantID
	case RoleBranchAdmin:
		return deny("branch admin cannot create users")
	default:
		return deny("unknown role")
	}

	// Structural invariants of the draft itself.
	switch draft.Role {
	case RoleSuperAdmin:
		if draft.TenantID != "" || draft.BranchID != "" {
			return fmt.Errorf("%w: super admin carries no tenant or branch", ErrInvalidInput)
		}
	case RoleTenantAdmin:
		if draft.TenantID == "" {
			return fmt.Errorf("%w: tenant admin requires a tenant", ErrInvalidInput)
		}
		if draft.BranchID != "" {
			return fmt.Errorf("%w: tenant admin carries no branch", ErrInvalidInput)
		}
	case RoleBranchAdmin:
		if draft.TenantID == "" || draft.BranchID == "" {
			return fmt.Errorf("%w: branch admin requires tenant and branch", ErrInvalidInput)
		}
	}

	// A declared branch must belong to the draft's tenant; a mismatch is
	// rejected rather than silently overwritten.
	if draft.BranchID != "" {
		branch, err := s.store.FindBranch(ctx, draft.BranchID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: branch not found", ErrInvalidInput)
			}
			return err
		}
		if !branch.Usable() {
			return fmt.Errorf("%w: branch is not usable", ErrInvalidInput)
		}
		if branch.TenantID != draft.TenantID {
			return deny("branch belongs to another tenant")
		}
	}
	return nil
}

// GuardMutateUser applies the role-aware rules for updating or resetting
// another principal: a TenantAdmin may only touch principals of its own
// tenant and may not touch another TenantAdmin (self excepted) or any
// SuperAdmin.
func (s *Service) GuardMutateUser(ctx context.Context, actor AuthenticatedContext, target *Principal) error {
	deny := func(reason string) error {
		s.emit(ctx, "authz.user.mutate.denied", actor.PrincipalID, map[string]any{
			"reason": reason,
			"role":   actor.Role,
			"target": target.ID,
		})
		return ErrForbidden
	}
	if target == nil {
		return ErrNotFound
	}

	switch actor.Role {
	case RoleSuperAdmin:
		return nil
	case RoleTenantAdmin:
		if target.TenantID != actor.TenantID {
			return deny("target outside own tenant")
		}
		if target.Role == RoleSuperAdmin {
			return deny("target is super admin")
		}
		if target.Role == RoleTenantAdmin && target.ID != actor.PrincipalID {
			return deny("target is another tenant admin")
		}
		return nil
	case RoleBranchAdmin:
		return deny("branch admin cannot manage users")
	default:
		return deny("unknown role")
	}
}

// GuardDeleteUser adds the one rule shared by every role: self-deletion is
// always denied.
func (s *Service) GuardDeleteUser(ctx context.Context, actor AuthenticatedContext, target *Principal) error {
	if target != nil && target.ID == actor.PrincipalID {
		s.emit(ctx, "authz.user.delete.denied", actor.PrincipalID, map[string]any{
			"reason": "self deletion",
		})
		return ErrForbidden
	}
	return s.GuardMutateUser(ctx, actor, target)
}
