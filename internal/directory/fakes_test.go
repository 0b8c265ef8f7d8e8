package directory

import (
	"context"
	"strings"
	"sync"
	"time"

	"hostria.io/internal/audit"
	"hostria.io/internal/auth"
)

// fakeStore implements both the directory store and the auth core's store so
// one seeded dataset backs guards and CRUD alike.
type fakeStore struct {
	mu         sync.Mutex
	tenants    map[string]*auth.Tenant
	branches   map[string]*auth.Branch
	principals map[string]*auth.Principal
	tokens     map[string]*auth.RefreshToken
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants:    make(map[string]*auth.Tenant),
		branches:   make(map[string]*auth.Branch),
		principals: make(map[string]*auth.Principal),
		tokens:     make(map[string]*auth.RefreshToken),
	}
}

// --- directory.Store ---

func (f *fakeStore) CreateTenant(_ context.Context, t *auth.Tenant) error {
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

func (f *fakeStore) GetTenant(_ context.Context, id string) (*auth.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) ListTenants(_ context.Context) ([]*auth.Tenant, error) {
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

func (f *fakeStore) UpdateTenant(_ context.Context, t *auth.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tenants[t.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *t
	f.tenants[t.ID] = &cp
	return nil
}

func (f *fakeStore) SoftDeleteTenant(_ context.Context, id string, at time.Time) error {
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

func (f *fakeStore) CreateBranch(_ context.Context, b *auth.Branch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *b
	f.branches[b.ID] = &cp
	return nil
}

func (f *fakeStore) GetBranch(_ context.Context, id string) (*auth.Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.branches[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) ListBranches(_ context.Context, tenantID string) ([]*auth.Branch, error) {
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

func (f *fakeStore) UpdateBranch(_ context.Context, b *auth.Branch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.branches[b.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *b
	f.branches[b.ID] = &cp
	return nil
}

func (f *fakeStore) SoftDeleteBranch(_ context.Context, id string, at time.Time) error {
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

func (f *fakeStore) CreateUser(_ context.Context, p *auth.Principal) error {
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

func (f *fakeStore) GetUser(_ context.Context, id string) (*auth.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.principals[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ListUsers(_ context.Context, tenantID string) ([]*auth.Principal, error) {
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

func (f *fakeStore) UpdateUser(_ context.Context, p *auth.Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.principals[p.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *p
	f.principals[p.ID] = &cp
	return nil
}

func (f *fakeStore) SoftDeleteUser(_ context.Context, id string, at time.Time) error {
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

// --- auth.Store ---

func (f *fakeStore) FindPrincipalByIdentifier(_ context.Context, identifier string) (*auth.Principal, error) {
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

func (f *fakeStore) FindPrincipalByID(ctx context.Context, id string) (*auth.Principal, error) {
	return f.GetUser(ctx, id)
}

func (f *fakeStore) UpdatePrincipalLoginState(_ context.Context, id string, state auth.LoginState) error {
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

func (f *fakeStore) UpdatePrincipalCredentials(_ context.Context, id, username, passwordHash string) error {
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

func (f *fakeStore) FindTenant(ctx context.Context, id string) (*auth.Tenant, error) {
	return f.GetTenant(ctx, id)
}

func (f *fakeStore) FindBranch(ctx context.Context, id string) (*auth.Branch, error) {
	return f.GetBranch(ctx, id)
}

func (f *fakeStore) InsertRefreshToken(_ context.Context, rec *auth.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rec
	f.tokens[rec.TokenDigest] = &cp
	return nil
}

func (f *fakeStore) FindRefreshToken(_ context.Context, digest string) (*auth.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.tokens[digest]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) RevokeRefreshToken(_ context.Context, digest, principalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.tokens[digest]; ok && rec.PrincipalID == principalID {
		rec.Revoked = true
	}
	return nil
}

func (f *fakeStore) RevokeAllRefreshTokens(_ context.Context, principalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.tokens {
		if rec.PrincipalID == principalID {
			rec.Revoked = true
		}
	}
	return nil
}

func (f *fakeStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, s auth.Store) error) error {
	return fn(ctx, f)
}

func (f *fakeStore) liveTokens(principalID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rec := range f.tokens {
		if rec.PrincipalID == principalID && !rec.Revoked {
			n++
		}
	}
	return n
}

// recorder captures emitted audit events.
type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Emit(_ context.Context, event audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) byAction(action string) []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Event
	for _, e := range r.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
