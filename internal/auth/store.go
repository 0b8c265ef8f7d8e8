package auth

import "context"

// Store describes the persistence operations the auth core consumes. The
// postgres adapter in this package implements it; tests substitute fakes.
type Store interface {
	// FindPrincipalByIdentifier matches username or email exactly.
	FindPrincipalByIdentifier(ctx context.Context, identifier string) (*Principal, error)
	FindPrincipalByID(ctx context.Context, id string) (*Principal, error)

	// UpdatePrincipalLoginState persists the failed-attempt counter, lock
	// expiry and last-login stamp in one row-level update.
	UpdatePrincipalLoginState(ctx context.Context, id string, state LoginState) error

	// UpdatePrincipalCredentials replaces username and/or password hash.
	// Empty arguments leave the corresponding column untouched.
	UpdatePrincipalCredentials(ctx context.Context, id, username, passwordHash string) error

	FindTenant(ctx context.Context, id string) (*Tenant, error)
	FindBranch(ctx context.Context, id string) (*Branch, error)

	InsertRefreshToken(ctx context.Context, rec *RefreshToken) error
	FindRefreshToken(ctx context.Context, digest string) (*RefreshToken, error)
	// RevokeRefreshToken revokes the record matching digest only when it is
	// owned by principalID. Revoking an absent or already-revoked token is a
	// no-op success.
	RevokeRefreshToken(ctx context.Context, digest, principalID string) error
	RevokeAllRefreshTokens(ctx context.Context, principalID string) error

	// RunInTransaction executes fn against a transaction-scoped Store. The
	// transaction commits when fn returns nil and rolls back otherwise.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
