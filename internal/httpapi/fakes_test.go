package httpapi

import (
	"context"
	"strings"
	"sync"
	"time"

	"hostria.io/internal/auth"
)

// memStore backs the full service stack in handler tests: it implements the
// auth core's store and the directory store over one dataset.
type memStore struct {
	mu         sync.Mutex
	tenants    map[string]*auth.Tenant
	branches   map[string]*auth.Branch
	principals map[string]*auth.Principal
	tokens     map[string]*auth.RefreshToken
}

func newMemStore() *memStore {
	return &memStore{
		tenants:    make(map[string]*auth.Tenant),
		branches:   make(map[string]*auth.Branch),
		principals: make(map[string]*auth.Principal),
		tokens:     make(map[string]*auth.RefreshToken),
	}
}

func (f *memStore) CreateTenant(_ context.Context, t *auth.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.tenants {
		if existing.Slug == t.Slug && existing.DeletedAt == nil {
			return auth.ErrConflict
		}
	}
	cp := *t
	f.tenants[t.ID] = &cp
	return nil
}

func (f *memStore) GetTenant(_ context.Context, id string) (*auth.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *memStore) ListTenants(_ context.Context) ([]*auth.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*auth.Tenant
	for _, t := range f.tenants {
		if t.DeletedAt == nil {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *memStore) UpdateTenant(_ context.Context, t *auth.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tenants[t.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *t
	f.tenants[t.ID] = &cp
	return nil
}

func (f *memStore) SoftDeleteTenant(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return auth.ErrNotFound
	}
	t.DeletedAt = &at
	t.Active = false
	return nil
}

func (f *memStore) CreateBranch(_ context.Context, b *auth.Branch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *b
	f.branches[b.ID] = &cp
	return nil
}

func (f *memStore) GetBranch(_ context.Context, id string) (*auth.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.branches[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *memStore) ListBranches(_ context.Context, tenantID string) ([]*auth.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*auth.Branch
	for _, b := range f.branches {
		if b.TenantID == tenantID && b.DeletedAt == nil {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *memStore) UpdateBranch(_ context.Context, b *auth.Branch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.branches[b.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *b
	f.branches[b.ID] = &cp
	return nil
}

func (f *memStore) SoftDeleteBranch(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.branches[id]
	if !ok {
		return auth.ErrNotFound
	}
	b.DeletedAt = &at
	b.Active = false
	return nil
}

func (f *memStore) CreateUser(_ context.Context, p *auth.Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.principals {
		if strings.EqualFold(existing.Username, p.Username) && existing.DeletedAt == nil {
			return auth.ErrConflict
		}
	}
	cp := *p
	f.principals[p.ID] = &cp
	return nil
}

func (f *memStore) GetUser(_ context.Context, id string) (*auth.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.principals[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *memStore) ListUsers(_ context.Context, tenantID string) ([]*auth.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*auth.Principal
	for _, p := range f.principals {
		if p.TenantID == tenantID && p.DeletedAt == nil {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *memStore) UpdateUser(_ context.Context, p *auth.Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.principals[p.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *p
	f.principals[p.ID] = &cp
	return nil
}

func (f *memStore) SoftDeleteUser(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.principals[id]
	if !ok {
		return auth.ErrNotFound
	}
	p.DeletedAt = &at
	p.Active = false
	return nil
}

func (f *memStore) FindPrincipalByIdentifier(_ context.Context, identifier string) (*auth.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.principals {
		if strings.EqualFold(p.Username, identifier) || (p.Email != "" && strings.EqualFold(p.Email, identifier)) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *memStore) FindPrincipalByID(ctx context.Context, id string) (*auth.Principal, error) {
	return f.GetUser(ctx, id)
}

func (f *memStore) UpdatePrincipalLoginState(_ context.Context, id string, state auth.LoginState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.principals[id]
	if !ok {
		return auth.ErrNotFound
	}
	p.FailedAttempts = state.FailedAttempts
	p.LockUntil = state.LockUntil
	if state.LastLoginAt != nil {
		p.LastLoginAt = state.LastLoginAt
	}
	return nil
}

func (f *memStore) UpdatePrincipalCredentials(_ context.Context, id, username, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.principals[id]
	if !ok {
		return auth.ErrNotFound
	}
	if username != "" {
		p.Username = username
	}
	if passwordHash != "" {
		p.PasswordHash = passwordHash
	}
	p.MustChangePassword = false
	return nil
}

func (f *memStore) FindTenant(ctx context.Context, id string) (*auth.Tenant, error) {
	return f.GetTenant(ctx, id)
}

func (f *memStore) FindBranch(ctx context.Context, id string) (*auth.Branch, error) {
	return f.GetBranch(ctx, id)
}

func (f *memStore) InsertRefreshToken(_ context.Context, rec *auth.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.tokens[rec.TokenDigest] = &cp
	return nil
}

func (f *memStore) FindRefreshToken(_ context.Context, digest string) (*auth.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.tokens[digest]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *memStore) RevokeRefreshToken(_ context.Context, digest, principalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.tokens[digest]; ok && rec.PrincipalID == principalID {
		rec.Revoked = true
	}
	return nil
}

func (f *memStore) RevokeAllRefreshTokens(_ context.Context, principalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.tokens {
		if rec.PrincipalID == principalID {
			rec.Revoked = true
		}
	}
	return nil
}

func (f *memStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, s auth.Store) error) error {
	return fn(ctx, f)
}
