// Package pg implements the directory store on PostgreSQL.
package pg

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jackc/pgx/v5/pgconn"

	"hostria.io/internal/auth"
	"hostria.io/internal/directory"
)

// Store wraps the shared connection pool.
type Store struct {
	db *sql.DB
}

var _ directory.Store = (*Store)(nil)

// PoolConfig tunes the database/sql pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to PostgreSQL via the pgx driver and applies pool tuning.
func Open(dsn string, pool PoolConfig) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an already-open handle; used by tests.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for components sharing the pool.
func (s *Store) DB() *sql.DB { return s.db }

// translate maps driver errors into the auth taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", auth.ErrConflict, pgErr.ConstraintName)
		case "23503", "23514":
			return fmt.Errorf("%w: %s", auth.ErrInvalidInput, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%w: %v", auth.ErrUnavailable, err)
}
