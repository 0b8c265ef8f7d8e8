package directory

import (
	"context"
	"fmt"
	"strings"

	"hostria.io/internal/auth"
	"hostria.io/internal/ids"
)

// UserInput is the payload for creating a principal.
type UserInput struct {
	Username string
	Email    string
	Password string
	Role     auth.Role
	TenantID string
	BranchID string
}

// UserUpdate carries partial principal updates. Nil fields are untouched.
type UserUpdate struct {
	Email    *string
	BranchID *string
	Active   *bool
}

// CreateUser provisions a principal. The creation guard forces the tenant
// for TenantAdmin actors and validates the role/tenant/branch shape; the
// password must satisfy the strength policy.
func (s *Service) CreateUser(ctx context.Context, actor auth.AuthenticatedContext, in UserInput) (*auth.Principal, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", auth.ErrInvalidInput)
	}
	draft := &auth.UserDraft{
		Username: username,
		Email:    strings.TrimSpace(strings.ToLower(in.Email)),
		Role:     in.Role,
		TenantID: strings.TrimSpace(in.TenantID),
		BranchID: strings.TrimSpace(in.BranchID),
	}
	if err := s.core.GuardCreateUser(ctx, actor, draft); err != nil {
		return nil, err
	}
	if err := auth.ValidatePasswordStrength(in.Password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &auth.Principal{
		ID:                 ids.New(),
		Username:           draft.Username,
		Email:              draft.Email,
		PasswordHash:       hash,
		Role:               draft.Role,
		TenantID:           draft.TenantID,
		BranchID:           draft.BranchID,
		Active:             true,
		MustChangePassword: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateUser(ctx, p); err != nil {
		return nil, err
	}
	s.emit(ctx, "directory.user.created", actor.PrincipalID, map[string]any{
		"user_id":   p.ID,
		"username":  p.Username,
		"role":      p.Role,
		"tenant_id": p.TenantID,
	})
	view := *p
	view.PasswordHash = ""
	return &view, nil
}

// GetUser returns a principal after scoping: out-of-tenant targets read as
// not found.
func (s *Service) GetUser(ctx context.Context, actor auth.AuthenticatedContext, id string) (*auth.Principal, error) {
	p, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case auth.RoleSuperAdmin:
	case auth.RoleTenantAdmin:
		if p.TenantID != actor.TenantID {
			return nil, auth.ErrNotFound
		}
	case auth.RoleBranchAdmin:
		if p.ID != actor.PrincipalID {
			return nil, auth.ErrForbidden
		}
	default:
		return nil, auth.ErrForbidden
	}
	view := *p
	view.PasswordHash = ""
	return &view, nil
}

// ListUsers enumerates principals of one tenant within the actor's scope.
func (s *Service) ListUsers(ctx context.Context, actor auth.AuthenticatedContext, tenantID string) ([]*auth.Principal, error) {
	tenantID = auth.EffectiveTenant(actor, strings.TrimSpace(tenantID))
	if actor.Role != auth.RoleSuperAdmin {
		if tenantID == "" || tenantID != actor.TenantID {
			return nil, auth.ErrForbidden
		}
	}
	users, err := s.store.ListUsers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		u.PasswordHash = ""
	}
	return users, nil
}

// UpdateUser applies partial updates to a principal after the ownership
// re-fetch and mutation guard.
func (s *Service) UpdateUser(ctx context.Context, actor auth.AuthenticatedContext, id string, upd UserUpdate) (*auth.Principal, error) {
	target, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.core.GuardMutateUser(ctx, actor, target); err != nil {
		return nil, err
	}
	if upd.Email != nil {
		target.Email = strings.TrimSpace(strings.ToLower(*upd.Email))
	}
	if upd.BranchID != nil {
		branchID := strings.TrimSpace(*upd.BranchID)
		if target.Role != auth.RoleBranchAdmin && branchID != "" {
			return nil, fmt.Errorf("%w: only branch admins carry a branch", auth.ErrInvalidInput)
		}
		if branchID != "" {
			branch, err := s.store.GetBranch(ctx, branchID)
			if err != nil {
				return nil, err
			}
			if branch.TenantID != target.TenantID {
				return nil, fmt.Errorf("%w: branch belongs to another tenant", auth.ErrInvalidInput)
			}
		}
		target.BranchID = branchID
	}
	if upd.Active != nil {
		target.Active = *upd.Active
	}
	target.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, target); err != nil {
		return nil, err
	}
	if upd.Active != nil && !*upd.Active {
		// Deactivation kills every live session immediately.
		if err := s.core.RevokeAll(ctx, target.ID); err != nil {
			return nil, err
		}
	}
	s.emit(ctx, "directory.user.updated", actor.PrincipalID, map[string]any{"user_id": target.ID})
	view := *target
	view.PasswordHash = ""
	return &view, nil
}

// DeleteUser soft-deletes a principal. Self-deletion is always denied; all
// refresh tokens of the target are revoked.
func (s *Service) DeleteUser(ctx context.Context, actor auth.AuthenticatedContext, id string) error {
	target, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.core.GuardDeleteUser(ctx, actor, target); err != nil {
		return err
	}
	if err := s.store.SoftDeleteUser(ctx, id, s.now().UTC()); err != nil {
		return err
	}
	if err := s.core.RevokeAll(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, "directory.user.deleted", actor.PrincipalID, map[string]any{"user_id": id})
	return nil
}

// ResetPassword sets a fresh password on the target after the mutation
// guard, marks it must-change, and revokes every refresh token.
func (s *Service) ResetPassword(ctx context.Context, actor auth.AuthenticatedContext, id, newPassword string) error {
	target, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.core.GuardMutateUser(ctx, actor, target); err != nil {
		return err
	}
	if err := auth.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	target.PasswordHash = hash
	target.MustChangePassword = true
	target.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, target); err != nil {
		return err
	}
	if err := s.core.RevokeAll(ctx, target.ID); err != nil {
		return err
	}
	s.emit(ctx, "directory.user.password_reset", actor.PrincipalID, map[string]any{"user_id": target.ID})
	return nil
}
