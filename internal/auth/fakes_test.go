package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"hostria.io/internal/audit"
)

// memStore is an in-memory Store for exercising the core without a database.
type memStore struct {
	mu         sync.Mutex
	principals map[string]*Principal
	tenants    map[string]*Tenant
	branches   map[string]*Branch
	tokens     map[string]*RefreshToken // keyed by digest
}

func newMemStore() *memStore {
	return &memStore{
		principals: make(map[string]*Principal),
		tenants:    make(map[string]*Tenant),
		branches:   make(map[string]*Branch),
		tokens:     make(map[string]*RefreshToken),
	}
}

func (m *memStore) putPrincipal(p *Principal) { m.principals[p.ID] = p }
func (m *memStore) putTenant(t *Tenant)       { m.tenants[t.ID] = t }
func (m *memStore) putBranch(b *Branch)       { m.branches[b.ID] = b }

func (m *memStore) FindPrincipalByIdentifier(_ context.Context, identifier string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identifier = strings.ToLower(identifier)
	for _, p := range m.principals {
		if strings.ToLower(p.Username) == identifier || (p.Email != "" && strings.ToLower(p.Email) == identifier) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) FindPrincipalByID(_ context.Context, id string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) UpdatePrincipalLoginState(_ context.Context, id string, state LoginState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return ErrNotFound
	}
	p.FailedAttempts = state.FailedAttempts
	p.LockUntil = state.LockUntil
	if state.LastLoginAt != nil {
		p.LastLoginAt = state.LastLoginAt
	}
	return nil
}

func (m *memStore) UpdatePrincipalCredentials(_ context.Context, id, username, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return ErrNotFound
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

func (m *memStore) FindTenant(_ context.Context, id string) (*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) FindBranch(_ context.Context, id string) (*Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.branches[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) InsertRefreshToken(_ context.Context, rec *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.tokens[cp.TokenDigest] = &cp
	return nil
}

func (m *memStore) FindRefreshToken(_ context.Context, digest string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[digest]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) RevokeRefreshToken(_ context.Context, digest, principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[digest]
	if !ok || rec.PrincipalID != principalID || rec.Revoked {
		return nil
	}
	now := time.Now().UTC()
	rec.Revoked = true
	rec.RevokedAt = &now
	return nil
}

func (m *memStore) RevokeAllRefreshTokens(_ context.Context, principalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, rec := range m.tokens {
		if rec.PrincipalID == principalID && !rec.Revoked {
			rec.Revoked = true
			rec.RevokedAt = &now
		}
	}
	return nil
}

func (m *memStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	return fn(ctx, m)
}

// recorder captures emitted security events for assertions.
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

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
