package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hostria.io/internal/audit"
	"hostria.io/internal/obs"
)

const (
	defaultMaxLoginAttempts = 5
	defaultLockoutDuration  = 30 * time.Minute
)

// Service is the authentication and authorization core. It is constructed
// once at process start and passed by handle into every component that needs
// it; all state lives in the store.
type Service struct {
	store  Store
	tokens *TokenManager
	events audit.Emitter

	maxLoginAttempts int
	lockoutDuration  time.Duration
	now              func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithMaxLoginAttempts overrides the failed-attempt threshold.
func WithMaxLoginAttempts(n int) ServiceOption {
	return func(s *Service) error {
		if n <= 0 {
			return errors.New("auth: max login attempts must be positive")
		}
		s.maxLoginAttempts = n
		return nil
	}
}

// WithLockoutDuration overrides how long an account stays locked.
func WithLockoutDuration(d time.Duration) ServiceOption {
	return func(s *Service) error {
		if d <= 0 {
			return errors.New("auth: lockout duration must be positive")
		}
		s.lockoutDuration = d
		return nil
	}
}

// WithClock overrides the time source, useful for tests.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the core service.
func NewService(store Store, tokens *TokenManager, events audit.Emitter, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token manager is required")
	}
	if events == nil {
		return nil, errors.New("auth: audit emitter is required")
	}
	svc := &Service{
		store:            store,
		tokens:           tokens,
		events:           events,
		maxLoginAttempts: defaultMaxLoginAttempts,
		lockoutDuration:  defaultLockoutDuration,
		now:              time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Login runs the per-attempt authentication sequence. Unknown identifiers
// and wrong passwords are indistinguishable to the caller; they differ only
// in audit detail. Exactly one security event is emitted per branch.
func (s *Service) Login(ctx context.Context, identifier, password, clientIP, userAgent string) (*LoginResult, error) {
	ctx = audit.WithClientIP(ctx, clientIP)
	detail := map[string]any{"identifier": identifier}
	if userAgent != "" {
		detail["user_agent"] = userAgent
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		detail["reason"] = "empty credentials"
		s.emit(ctx, "auth.login.denied", "", detail)
		return nil, ErrInvalidCredentials
	}

	p, err := s.store.FindPrincipalByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			detail["reason"] = "unknown identifier"
			s.emit(ctx, "auth.login.denied", "", detail)
			return nil, ErrInvalidCredentials
		}
		s.emit(ctx, "auth.login.error", "", detail)
		return nil, err
	}

	if !p.Usable() {
		detail["reason"] = "account inactive"
		s.emit(ctx, "auth.login.denied", p.ID, detail)
		return nil, ErrAccountInactive
	}

	if err := s.checkTenantUsable(ctx, p); err != nil {
		detail["reason"] = "tenant inactive"
		s.emit(ctx, "auth.login.denied", p.ID, detail)
		return nil, err
	}

	now := s.now().UTC()
	if p.LockedAt(now) {
		detail["reason"] = "account locked"
		detail["lock_until"] = p.LockUntil.UTC().Format(time.RFC3339)
		s.emit(ctx, "auth.login.denied", p.ID, detail)
		return nil, ErrAccountLocked
	}

	if err := VerifyPassword(p.PasswordHash, password); err != nil {
		lockedOut, err := s.recordFailedAttempt(ctx, p.ID, now)
		if err != nil {
			s.emit(ctx, "auth.login.error", p.ID, detail)
			return nil, err
		}
		if lockedOut {
			obs.AccountLockouts.Inc()
		}
		detail["reason"] = "wrong password"
		detail["locked_out"] = lockedOut
		s.emit(ctx, "auth.login.denied", p.ID, detail)
		return nil, ErrInvalidCredentials
	}

	var result *LoginResult
	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.UpdatePrincipalLoginState(ctx, p.ID, LoginState{
			FailedAttempts: 0,
			LockUntil:      nil,
			LastLoginAt:    &now,
		}); err != nil {
			return err
		}
		pair, err := s.issueTokens(ctx, tx, p)
		if err != nil {
			return err
		}
		result = pair
		return nil
	})
	if err != nil {
		s.emit(ctx, "auth.login.error", p.ID, detail)
		return nil, err
	}

	s.emit(ctx, "auth.login.success", p.ID, map[string]any{
		"username":  p.Username,
		"role":      p.Role,
		"tenant_id": p.TenantID,
	})
	return result, nil
}

// recordFailedAttempt increments the counter and arms the lock when the
// threshold is reached. The fresh counter is re-read inside the transaction
// so concurrent attempts serialize through the store.
func (s *Service) recordFailedAttempt(ctx context.Context, principalID string, now time.Time) (lockedOut bool, err error) {
	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx Store) error {
		fresh, err := tx.FindPrincipalByID(ctx, principalID)
		if err != nil {
			return err
		}
		state := LoginState{FailedAttempts: fresh.FailedAttempts + 1, LockUntil: fresh.LockUntil}
		if state.FailedAttempts >= s.maxLoginAttempts {
			until := now.Add(s.lockoutDuration)
			state.LockUntil = &until
			lockedOut = true
		}
		return tx.UpdatePrincipalLoginState(ctx, principalID, state)
	})
	return lockedOut, err
}

func (s *Service) issueTokens(ctx context.Context, tx Store, p *Principal) (*LoginResult, error) {
	accessToken, accessExp, err := s.tokens.IssueAccess(p)
	if err != nil {
		return nil, err
	}
	refreshToken, jti, refreshExp, err := s.tokens.IssueRefresh(p)
	if err != nil {
		return nil, err
	}
	rec := &RefreshToken{
		ID:          jti,
		PrincipalID: p.ID,
		TokenDigest: TokenDigest(refreshToken),
		ExpiresAt:   refreshExp,
	}
	if err := tx.InsertRefreshToken(ctx, rec); err != nil {
		return nil, err
	}
	view := *p
	view.PasswordHash = ""
	return &LoginResult{
		Principal:      &view,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		AccessExpires:  accessExp,
		RefreshExpires: refreshExp,
	}, nil
}

// RefreshAccessToken verifies the refresh token cryptographically AND
// against its server-side record, then mints a fresh access token from the
// live principal row. A revoked record fails even when the signature is
// still valid.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (accessToken string, expiresAt time.Time, err error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.emit(ctx, "auth.token.refresh.denied", "", map[string]any{"reason": "invalid signature"})
		return "", time.Time{}, ErrInvalidToken
	}

	rec, err := s.store.FindRefreshToken(ctx, TokenDigest(refreshToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.emit(ctx, "auth.token.refresh.denied", claims.Subject, map[string]any{"reason": "unknown token"})
			return "", time.Time{}, ErrInvalidToken
		}
		return "", time.Time{}, err
	}
	if rec.PrincipalID != claims.Subject {
		s.emit(ctx, "auth.token.refresh.denied", claims.Subject, map[string]any{"reason": "owner mismatch"})
		return "", time.Time{}, ErrInvalidToken
	}
	if rec.Revoked {
		s.emit(ctx, "auth.token.refresh.denied", claims.Subject, map[string]any{"reason": "revoked"})
		return "", time.Time{}, ErrTokenRevoked
	}
	now := s.now().UTC()
	if now.After(rec.ExpiresAt) {
		s.emit(ctx, "auth.token.refresh.denied", claims.Subject, map[string]any{"reason": "expired record"})
		return "", time.Time{}, ErrInvalidToken
	}

	p, err := s.store.FindPrincipalByID(ctx, rec.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.emit(ctx, "auth.token.refresh.denied", claims.Subject, map[string]any{"reason": "principal gone"})
			return "", time.Time{}, ErrInvalidToken
		}
		return "", time.Time{}, err
	}
	if !p.Usable() {
		s.emit(ctx, "auth.token.refresh.denied", p.ID, map[string]any{"reason": "principal inactive"})
		return "", time.Time{}, ErrInvalidToken
	}
	if err := s.checkTenantUsable(ctx, p); err != nil {
		s.emit(ctx, "auth.token.refresh.denied", p.ID, map[string]any{"reason": "tenant inactive"})
		return "", time.Time{}, ErrInvalidToken
	}

	accessToken, expiresAt, err = s.tokens.IssueAccess(p)
	if err != nil {
		return "", time.Time{}, err
	}
	s.emit(ctx, "auth.token.refresh.success", p.ID, nil)
	return accessToken, expiresAt, nil
}

// Logout revokes the presented refresh token after verifying ownership.
// Revoking an absent, foreign or already-revoked token reports success so
// the caller cannot probe which tokens exist.
func (s *Service) Logout(ctx context.Context, principalID, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return s.RevokeAll(ctx, principalID)
	}
	if err := s.store.RevokeRefreshToken(ctx, TokenDigest(refreshToken), principalID); err != nil {
		return err
	}
	s.emit(ctx, "auth.logout", principalID, nil)
	return nil
}

// RevokeAll marks every refresh token of the principal revoked. Called on
// logout-everywhere and on any credential mutation.
func (s *Service) RevokeAll(ctx context.Context, principalID string) error {
	if err := s.store.RevokeAllRefreshTokens(ctx, principalID); err != nil {
		return err
	}
	s.emit(ctx, "auth.tokens.revoke_all", principalID, nil)
	return nil
}

// ChangePassword verifies the current password, enforces the strength
// policy, and atomically persists the new hash while revoking every refresh
// token, forcing re-authentication everywhere.
func (s *Service) ChangePassword(ctx context.Context, principalID, currentPassword, newPassword string) error {
	return s.changeCredentials(ctx, principalID, currentPassword, "", newPassword)
}

// ChangeUsernameAndPassword additionally replaces the username. The same
// revoke-all rule applies.
func (s *Service) ChangeUsernameAndPassword(ctx context.Context, principalID, currentPassword, newUsername, newPassword string) error {
	newUsername = strings.TrimSpace(newUsername)
	if newUsername == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	return s.changeCredentials(ctx, principalID, currentPassword, newUsername, newPassword)
}

func (s *Service) changeCredentials(ctx context.Context, principalID, currentPassword, newUsername, newPassword string) error {
	p, err := s.store.FindPrincipalByID(ctx, principalID)
	if err != nil {
		return err
	}
	if !p.Usable() {
		return ErrAccountInactive
	}
	if err := VerifyPassword(p.PasswordHash, currentPassword); err != nil {
		s.emit(ctx, "auth.credentials.denied", p.ID, map[string]any{"reason": "wrong current password"})
		return ErrInvalidCredentials
	}
	if err := ValidatePasswordStrength(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.store.RunInTransaction(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.UpdatePrincipalCredentials(ctx, p.ID, newUsername, hash); err != nil {
			return err
		}
		return tx.RevokeAllRefreshTokens(ctx, p.ID)
	})
	if err != nil {
		return err
	}

	detail := map[string]any{}
	if newUsername != "" {
		detail["username_changed"] = true
	}
	s.emit(ctx, "auth.credentials.changed", p.ID, detail)
	return nil
}

// AuthenticateRequest gates every protected operation: it verifies the
// bearer token and re-reads the live principal and tenant rows so that
// deactivation, lockout and revocation take effect immediately. There is no
// cached principal state.
func (s *Service) AuthenticateRequest(ctx context.Context, bearerToken string) (AuthenticatedContext, error) {
	claims, err := s.tokens.VerifyAccess(bearerToken)
	if err != nil {
		return AuthenticatedContext{}, ErrUnauthorized
	}
	p, err := s.store.FindPrincipalByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AuthenticatedContext{}, ErrUnauthorized
		}
		return AuthenticatedContext{}, err
	}
	if !p.Usable() {
		s.emit(ctx, "auth.request.denied", p.ID, map[string]any{"reason": "principal inactive"})
		return AuthenticatedContext{}, ErrUnauthorized
	}
	if err := s.checkTenantUsable(ctx, p); err != nil {
		s.emit(ctx, "auth.request.denied", p.ID, map[string]any{"reason": "tenant inactive"})
		return AuthenticatedContext{}, ErrUnauthorized
	}
	return AuthenticatedContext{
		PrincipalID:        p.ID,
		Username:           p.Username,
		Role:               p.Role,
		TenantID:           p.TenantID,
		BranchID:           p.BranchID,
		MustChangePassword: p.MustChangePassword,
	}, nil
}

// checkTenantUsable rejects principals whose tenant is inactive, deleted,
// suspended or cancelled. SuperAdmin carries no tenant and always passes.
func (s *Service) checkTenantUsable(ctx context.Context, p *Principal) error {
	switch p.Role {
	case RoleSuperAdmin:
		return nil
	case RoleTenantAdmin, RoleBranchAdmin:
		t, err := s.store.FindTenant(ctx, p.TenantID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrTenantInactive
			}
			return err
		}
		if !t.Usable() {
			return ErrTenantInactive
		}
		return nil
	default:
		return ErrForbidden
	}
}

func (s *Service) emit(ctx context.Context, action, actor string, detail map[string]any) {
	_ = s.events.Emit(ctx, audit.Event{Action: action, Actor: actor, Detail: detail})
}
