// Package directory manages tenants, branches and principals on behalf of
// the admin API. Every mutation re-runs a role-aware permission check and
// re-fetches the target row's ownership from storage; client-supplied
// tenant/branch ids are never trusted for write targets.
package directory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"hostria.io/internal/audit"
	"hostria.io/internal/auth"
	"hostria.io/internal/ids"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Store is the persistence surface for directory rows. The postgres
// implementation lives in internal/store/pg.
type Store interface {
	CreateTenant(ctx context.Context, t *auth.Tenant) error
	GetTenant(ctx context.Context, id string) (*auth.Tenant, error)
	ListTenants(ctx context.Context) ([]*auth.Tenant, error)
	UpdateTenant(ctx context.Context, t *auth.Tenant) error
	SoftDeleteTenant(ctx context.Context, id string, at time.Time) error

	CreateBranch(ctx context.Context, b *auth.Branch) error
	GetBranch(ctx context.Context, id string) (*auth.Branch, error)
	ListBranches(ctx context.Context, tenantID string) ([]*auth.Branch, error)
	UpdateBranch(ctx context.Context, b *auth.Branch) error
	SoftDeleteBranch(ctx context.Context, id string, at time.Time) error

	CreateUser(ctx context.Context, p *auth.Principal) error
	GetUser(ctx context.Context, id string) (*auth.Principal, error)
	ListUsers(ctx context.Context, tenantID string) ([]*auth.Principal, error)
	UpdateUser(ctx context.Context, p *auth.Principal) error
	SoftDeleteUser(ctx context.Context, id string, at time.Time) error
}

// Service wires the store to the auth core's guards.
type Service struct {
	store  Store
	core   *auth.Service
	events audit.Emitter
	now    func() time.Time
}

// NewService constructs the directory service.
func NewService(store Store, core *auth.Service, events audit.Emitter) (*Service, error) {
	if store == nil {
		return nil, errors.New("directory: store is required")
	}
	if core == nil {
		return nil, errors.New("directory: auth service is required")
	}
	if events == nil {
		return nil, errors.New("directory: audit emitter is required")
	}
	return &Service{store: store, core: core, events: events, now: time.Now}, nil
}

// TenantInput is the payload for creating or updating a tenant.
type TenantInput struct {
	Name         string
	Slug         string
	Type         auth.TenantType
	Active       *bool
	Subscription auth.SubscriptionStatus
}

// CreateTenant provisions a new tenant. Only SuperAdmin reaches this via
// route authorization; the structural validation still runs here.
func (s *Service) CreateTenant(ctx context.Context, actor auth.AuthenticatedContext, in TenantInput) (*auth.Tenant, error) {
	if actor.Role != auth.RoleSuperAdmin {
		return nil, auth.ErrForbidden
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: tenant name is required", auth.ErrInvalidInput)
	}
	slug := strings.TrimSpace(strings.ToLower(in.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("%w: slug must be lowercase alphanumeric with hyphens", auth.ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown tenant type %q", auth.ErrInvalidInput, in.Type)
	}
	sub := in.Subscription
	if sub == "" {
		sub = auth.SubscriptionTrial
	}
	if !sub.Valid() {
		return nil, fmt.Errorf("%w: unknown subscription status %q", auth.ErrInvalidInput, sub)
	}

	now := s.now().UTC()
	t := &auth.Tenant{
		ID:           ids.New(),
		Name:         name,
		Slug:         slug,
		Type:         in.Type,
		Active:       true,
		Subscription: sub,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateTenant(ctx, t); err != nil {
		return nil, err
	}
	s.emit(ctx, "directory.tenant.created", actor.PrincipalID, map[string]any{"tenant_id": t.ID, "slug": t.Slug})
	return t, nil
}

// GetTenant returns a tenant visible to the actor. Out-of-scope tenants are
// reported as not found so their existence is never revealed.
func (s *Service) GetTenant(ctx context.Context, actor auth.AuthenticatedContext, id string) (*auth.Tenant, error) {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case auth.RoleSuperAdmin:
		return t, nil
	case auth.RoleTenantAdmin, auth.RoleBranchAdmin:
		if t.ID != actor.TenantID {
			return nil, auth.ErrNotFound
		}
		return t, nil
	default:
		return nil, auth.ErrForbidden
	}
}

// ListTenants enumerates tenants; SuperAdmin only.
func (s *Service) ListTenants(ctx context.Context, actor auth.AuthenticatedContext) ([]*auth.Tenant, error) {
	if actor.Role != auth.RoleSuperAdmin {
		return nil, auth.ErrForbidden
	}
	return s.store.ListTenants(ctx)
}

// UpdateTenant applies partial updates; SuperAdmin only.
func (s *Service) UpdateTenant(ctx context.Context, actor auth.AuthenticatedContext, id string, in TenantInput) (*auth.Tenant, error) {
	if actor.Role != auth.RoleSuperAdmin {
		return nil, auth.ErrForbidden
	}
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		t.Name = name
	}
	if in.Type != "" {
		if !in.Type.Valid() {
			return nil, fmt.Errorf("%w: unknown tenant type %q", auth.ErrInvalidInput, in.Type)
		}
		t.Type = in.Type
	}
	if in.Subscription != "" {
		if !in.Subscription.Valid() {
			return nil, fmt.Errorf("%w: unknown subscription status %q", auth.ErrInvalidInput, in.Subscription)
		}
		t.Subscription = in.Subscription
	}
	if in.Active != nil {
		t.Active = *in.Active
	}
	t.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateTenant(ctx, t); err != nil {
		return nil, err
	}
	s.emit(ctx, "directory.tenant.updated", actor.PrincipalID, map[string]any{"tenant_id": t.ID})
	return t, nil
}

// DeleteTenant soft-deletes a tenant; SuperAdmin only.
func (s *Service) DeleteTenant(ctx context.Context, actor auth.AuthenticatedContext, id string) error {
	if actor.Role != auth.RoleSuperAdmin {
		return auth.ErrForbidden
	}
	if _, err := s.store.GetTenant(ctx, id); err != nil {
		return err
	}
	if err := s.store.SoftDeleteTenant(ctx, id, s.now().UTC()); err != nil {
		return err
	}
	s.emit(ctx, "directory.tenant.deleted", actor.PrincipalID, map[string]any{"tenant_id": id})
	return nil
}

// BranchInput is the payload for creating or updating a branch.
type BranchInput struct {
	TenantID string
	Name     string
	Address  string
	City     string
	Phone    string
	Active   *bool
}

// CreateBranch provisions a branch. The effective tenant is resolved from
// the actor when omitted; a declared tenant that disagrees with the actor's
// scope has already been rejected by route authorization, and the row's
// tenant is re-validated here regardless.
func (s *Service) CreateBranch(ctx context.Context, actor auth.AuthenticatedContext, in BranchInput) (*auth.Branch, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: branch name is required", auth.ErrInvalidInput)
	}
	tenantID := auth.EffectiveTenant(actor, strings.TrimSpace(in.TenantID))
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", auth.ErrInvalidInput)
	}
	if actor.Role != auth.RoleSuperAdmin && tenantID != actor.TenantID {
		return nil, auth.ErrForbidden
	}
	t, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.Usable() {
		return nil, fmt.Errorf("%w: tenant is not usable", auth.ErrInvalidInput)
	}

	now := s.now().UTC()
	b := &auth.Branch{
		ID:        ids.New(),
		TenantID:  tenantID,
		Name:      name,
		Address:   strings.TrimSpace(in.Address),
		City:      strings.TrimSpace(in.City),
		Phone:     strings.TrimSpace(in.Phone),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateBranch(ctx, b); err != nil {
		return nil, err
	}
	s.emit(ctx, "directory.branch.created", actor.PrincipalID, map[string]any{"branch_id": b.ID, "tenant_id": tenantID})
	return b, nil
}

// GetBranch returns a branch after re-checking the row's actual tenant and
// branch against the actor's scope.
func (s *Service) GetBranch(ctx context.Context, actor auth.AuthenticatedContext, id string) (*auth.Branch, error) {
	b, err := s.store.GetBranch(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkBranchScope(actor, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBranches enumerates the branches of one tenant within the actor's
// scope.
func (s *Service) ListBranches(ctx context.Context, actor auth.AuthenticatedContext, tenantID string) ([]*auth.Branch, error) {
	tenantID = auth.EffectiveTenant(actor, strings.TrimSpace(tenantID))
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", auth.ErrInvalidInput)
	}
	if actor.Role != auth.RoleSuperAdmin && tenantID != actor.TenantID {
		return nil, auth.ErrForbidden
	}
	branches, err := s.store.ListBranches(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if actor.Role == auth.RoleBranchAdmin {
		scoped := branches[:0]
		for _, b := range branches {
			if b.ID == actor.BranchID {
				scoped = append(scoped, b)
			}
		}
		branches = scoped
	}
	return branches, nil
}

// UpdateBranch applies partial updates after the ownership re-fetch.
func (s *Service) UpdateBranch(ctx context.Context, actor auth.AuthenticatedContext, id string, in BranchInput) (*auth.Branch, error) {
	b, err := s.store.GetBranch(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkBranchScope(actor, b); err != nil {
		return nil, err
	}
	// The tenant reference is immutable after creation.
	if tid := strings.TrimSpace(in.TenantID); tid != "" && tid != b.TenantID {
		return nil, fmt.Errorf("%w: branch tenant cannot change", auth.ErrInvalidInput)
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		b.Name = name
	}
	if addr := strings.TrimSpace(in.Address); addr != "" {
		b.Address = addr
	}
	if city := strings.TrimSpace(in.City); city != "" {
		b.City = city
	}
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		b.Phone = phone
	}
	if in.Active != nil {
		b.Active = *in.Active
	}
	b.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateBranch(ctx, b); err != nil {
		return nil, err
	}
	s.emit(ctx, "directory.branch.updated", actor.PrincipalID, map[string]any{"branch_id": b.ID})
	return b, nil
}

// DeleteBranch soft-deletes a branch within the actor's scope. BranchAdmin
// cannot delete branches.
func (s *Service) DeleteBranch(ctx context.Context, actor auth.AuthenticatedContext, id string) error {
	b, err := s.store.GetBranch(ctx, id)
	if err != nil {
		return err
	}
	switch actor.Role {
	case auth.RoleSuperAdmin:
	case auth.RoleTenantAdmin:
		if b.TenantID != actor.TenantID {
			return auth.ErrNotFound
		}
	case auth.RoleBranchAdmin:
		return auth.ErrForbidden
	default:
		return auth.ErrForbidden
	}
	if err := s.store.SoftDeleteBranch(ctx, id, s.now().UTC()); err != nil {
		return err
	}
	s.emit(ctx, "directory.branch.deleted", actor.PrincipalID, map[string]any{"branch_id": id})
	return nil
}

func (s *Service) checkBranchScope(actor auth.AuthenticatedContext, b *auth.Branch) error {
	switch actor.Role {
	case auth.RoleSuperAdmin:
		return nil
	case auth.RoleTenantAdmin:
		if b.TenantID != actor.TenantID {
			return auth.ErrNotFound
		}
		return nil
	case auth.RoleBranchAdmin:
		if b.TenantID != actor.TenantID || b.ID != actor.BranchID {
			return auth.ErrNotFound
		}
		return nil
	default:
		return auth.ErrForbidden
	}
}

func (s *Service) emit(ctx context.Context, action, actor string, detail map[string]any) {
	_ = s.events.Emit(ctx, audit.Event{Action: action, Actor: actor, Detail: detail})
}
