package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL through database/sql with the
// pgx driver. A transaction-scoped copy is handed to RunInTransaction
// callbacks; the connection pool is the only shared resource.
type PGStore struct {
	db  *sql.DB
	run runner
}

// runner is satisfied by both *sql.DB and *sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, run: db}
}

const principalColumns = `id, username, coalesce(email,''), password_hash, role,
	coalesce(tenant_id,''), coalesce(branch_id,''), active, must_change_password,
	failed_attempts, lock_until, last_login_at, created_at, updated_at, deleted_at`

func scanPrincipal(row *sql.Row) (*Principal, error) {
	var p Principal
	err := row.Scan(
		&p.ID, &p.Username, &p.Email, &p.PasswordHash, &p.Role,
		&p.TenantID, &p.BranchID, &p.Active, &p.MustChangePassword,
		&p.FailedAttempts, &p.LockUntil, &p.LastLoginAt,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	if err != nil {
		return nil, translatePG(err)
	}
	return &p, nil
}

func (s *PGStore) FindPrincipalByIdentifier(ctx context.Context, identifier string) (*Principal, error) {
	row := s.run.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where username = $1 or email = $1`, identifier)
	return scanPrincipal(row)
}

func (s *PGStore) FindPrincipalByID(ctx context.Context, id string) (*Principal, error) {
	row := s.run.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where id = $1`, id)
	return scanPrincipal(row)
}

func (s *PGStore) UpdatePrincipalLoginState(ctx context.Context, id string, state LoginState) error {
	_, err := s.run.ExecContext(ctx,
		`update principals
		 set failed_attempts = $2,
		     lock_until = $3,
		     last_login_at = coalesce($4, last_login_at),
		     updated_at = now()
		 where id = $1`,
		id, state.FailedAttempts, state.LockUntil, state.LastLoginAt,
	)
	return translatePG(err)
}

func (s *PGStore) UpdatePrincipalCredentials(ctx context.Context, id, username, passwordHash string) error {
	_, err := s.run.ExecContext(ctx,
		`update principals
		 set username = coalesce(nullif($2,''), username),
		     password_hash = coalesce(nullif($3,''), password_hash),
		     must_change_password = false,
		     updated_at = now()
		 where id = $1`,
		id, username, passwordHash,
	)
	return translatePG(err)
}

func (s *PGStore) FindTenant(ctx context.Context, id string) (*Tenant, error) {
	row := s.run.QueryRowContext(ctx,
		`select id, name, slug, type, active, subscription_status, subscription_ends_at,
		        created_at, updated_at, deleted_at
		 from tenants where id = $1`, id)
	var t Tenant
	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.Type, &t.Active, &t.Subscription, &t.SubscriptionEndsAt,
		&t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	if err != nil {
		return nil, translatePG(err)
	}
	return &t, nil
}

func (s *PGStore) FindBranch(ctx context.Context, id string) (*Branch, error) {
	row := s.run.QueryRowContext(ctx,
		`select id, tenant_id, name, coalesce(address,''), coalesce(city,''), coalesce(phone,''),
		        active, created_at, updated_at, deleted_at
		 from branches where id = $1`, id)
	var b Branch
	err := row.Scan(
		&b.ID, &b.TenantID, &b.Name, &b.Address, &b.City, &b.Phone,
		&b.Active, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt,
	)
	if err != nil {
		return nil, translatePG(err)
	}
	return &b, nil
}

func (s *PGStore) InsertRefreshToken(ctx context.Context, rec *RefreshToken) error {
	_, err := s.run.ExecContext(ctx,
		`insert into refresh_tokens(id, principal_id, token_digest, expires_at, revoked)
		 values($1,$2,$3,$4,false)`,
		rec.ID, rec.PrincipalID, rec.TokenDigest, rec.ExpiresAt,
	)
	return translatePG(err)
}

func (s *PGStore) FindRefreshToken(ctx context.Context, digest string) (*RefreshToken, error) {
	row := s.run.QueryRowContext(ctx,
		`select id, principal_id, token_digest, expires_at, revoked, revoked_at, created_at
		 from refresh_tokens where token_digest = $1`, digest)
	var rec RefreshToken
	err := row.Scan(
		&rec.ID, &rec.PrincipalID, &rec.TokenDigest, &rec.ExpiresAt,
		&rec.Revoked, &rec.RevokedAt, &rec.CreatedAt,
	)
	if err != nil {
		return nil, translatePG(err)
	}
	return &rec, nil
}

// RevokeRefreshToken is ownership-checked and idempotent: revoking an
// absent, foreign or already-revoked token affects zero rows and reports
// success.
func (s *PGStore) RevokeRefreshToken(ctx context.Context, digest, principalID string) error {
	_, err := s.run.ExecContext(ctx,
		`update refresh_tokens
		 set revoked = true, revoked_at = now()
		 where token_digest = $1 and principal_id = $2 and not revoked`,
		digest, principalID,
	)
	return translatePG(err)
}

func (s *PGStore) RevokeAllRefreshTokens(ctx context.Context, principalID string) error {
	_, err := s.run.ExecContext(ctx,
		`update refresh_tokens
		 set revoked = true, revoked_at = now()
		 where principal_id = $1 and not revoked`,
		principalID,
	)
	return translatePG(err)
}

// RunInTransaction executes fn against a transaction-scoped store. Nested
// calls reuse the enclosing transaction.
func (s *PGStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	if _, nested := s.run.(*sql.Tx); nested {
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translatePG(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &PGStore{db: s.db, run: tx}); err != nil {
		return err
	}
	return translatePG(tx.Commit())
}

// translatePG maps driver errors into the package taxonomy so callers never
// see raw store errors.
func translatePG(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case "23503", "23514": // foreign_key_violation, check_violation
			return fmt.Errorf("%w: %s", ErrInvalidInput, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
