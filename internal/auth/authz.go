package auth

import (
	"context"
	"slices"
)

// Scope is the tenant/branch boundary a request declares it wants to act
// on. Empty fields mean "not declared".
type Scope struct {
	TenantID string
	BranchID string
}

// ResolveScope merges the scopes found in the path, body and query of a
// request. Per field, the first non-empty value wins with fixed precedence
// path > body > query.
func ResolveScope(path, body, query Scope) Scope {
	pick := func(a, b, c string) string {
		switch {
		case a != "":
			return a
		case b != "":
			return b
		default:
			return c
		}
	}
	return Scope{
		TenantID: pick(path.TenantID, body.TenantID, query.TenantID),
		BranchID: pick(path.BranchID, body.BranchID, query.BranchID),
	}
}

// EffectiveTenant returns the tenant a scoped write applies to. When a
// non-SuperAdmin omits the tenant id entirely, the actor's own tenant is
// injected rather than defaulting to unscoped, so omission can never widen
// privileges.
func EffectiveTenant(actor AuthenticatedContext, declared string) string {
	if declared != "" {
		return declared
	}
	switch actor.Role {
	case RoleSuperAdmin:
		return ""
	case RoleTenantAdmin, RoleBranchAdmin:
		return actor.TenantID
	default:
		return ""
	}
}

// Authorize decides whether the actor may perform an operation restricted
// to the given roles on the declared scope. It validates declared request
// scope only; callers mutating rows must still re-fetch the row's actual
// tenant/branch and compare. Every deny emits a security event before the
// typed error is returned.
func (s *Service) Authorize(ctx context.Context, actor AuthenticatedContext, required []Role, scope Scope) error {
	deny := func(reason string) error {
		s.emit(ctx, "authz.denied", actor.PrincipalID, map[string]any{
			"reason":         reason,
			"role":           actor.Role,
			"required_roles": required,
			"tenant_id":      scope.TenantID,
			"branch_id":      scope.BranchID,
		})
		return ErrForbidden
	}

	// Strict set membership; no implicit role inheritance.
	if !slices.Contains(required, actor.Role) {
		return deny("role not permitted")
	}

	switch actor.Role {
	case RoleSuperAdmin:
		// Bypasses tenant and branch scoping entirely.
		return nil
	case RoleTenantAdmin:
		if scope.TenantID != "" && scope.TenantID != actor.TenantID {
			return deny("tenant scope mismatch")
		}
		return nil
	case RoleBranchAdmin:
		if scope.TenantID != "" && scope.TenantID != actor.TenantID {
			return deny("tenant scope mismatch")
		}
		if scope.BranchID != "" && scope.BranchID != actor.BranchID {
			return deny("branch scope mismatch")
		}
		return nil
	default:
		return deny("unknown role")
	}
}
