package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPGStore(db), mock
}

func principalRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "username", "email", "password_hash", "role",
		"tenant_id", "branch_id", "active", "must_change_password",
		"failed_attempts", "lock_until", "last_login_at",
		"created_at", "updated_at", "deleted_at",
	}).AddRow(
		"p1", "manager", "manager@demo.test", "$2a$hash", "tenant_admin",
		"t1", "", true, false,
		0, nil, nil,
		now, now, nil,
	)
}

func TestPGFindPrincipalByIdentifier(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select .* from principals where username = \$1 or email = \$1`).
		WithArgs("manager").
		WillReturnRows(principalRows())

	p, err := store.FindPrincipalByIdentifier(context.Background(), "manager")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if p.ID != "p1" || p.Role != RoleTenantAdmin || p.TenantID != "t1" {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGFindPrincipalNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select .* from principals where id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.FindPrincipalByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGUpdatePrincipalLoginState(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`update principals`).
		WithArgs("p1", 0, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdatePrincipalLoginState(context.Background(), "p1", LoginState{LastLoginAt: &now})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGRevokeRefreshTokenIdempotent(t *testing.T) {
	store, mock := newMockStore(t)

	// Zero affected rows is still success.
	mock.ExpectExec(`update refresh_tokens`).
		WithArgs("digest", "p1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.RevokeRefreshToken(context.Background(), "digest", "p1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGRunInTransactionCommit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`update refresh_tokens`).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.RunInTransaction(context.Background(), func(ctx context.Context, tx Store) error {
		return tx.RevokeAllRefreshTokens(ctx, "p1")
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGRunInTransactionRollback(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.RunInTransaction(context.Background(), func(ctx context.Context, tx Store) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestTranslatePG(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "principals_username_uq"}, ErrConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, ErrInvalidInput},
		{"check violation", &pgconn.PgError{Code: "23514"}, ErrInvalidInput},
		{"anything else", errors.New("connection reset"), ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := translatePG(tc.in); !errors.Is(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
	if translatePG(nil) != nil {
		t.Fatal("nil must pass through")
	}
}
