// Package migrate applies SQL schema migrations and seed files from disk.
// Applied files are recorded by name so reruns are idempotent.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"
)

// Runner executes migration and seed files against one database.
type Runner struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
}

// NewRunner constructs a Runner over the given directories.
func NewRunner(db *sql.DB, migrationsDir, seedsDir string) *Runner {
	return &Runner{db: db, migrationsDir: migrationsDir, seedsDir: seedsDir}
}

// Up applies every pending *.up.sql file in name order.
func (r *Runner) Up(ctx context.Context) error {
	return r.applyPending(ctx, migrationsTable, r.migrationsDir, ".up.sql", "migration")
}

// Seed applies every pending seed file. Seeds are tracked separately from
// migrations so a fresh environment can run both.
func (r *Runner) Seed(ctx context.Context) error {
	return r.applyPending(ctx, seedsTable, r.seedsDir, ".sql", "seed")
}

// Down rolls back the most recently applied migration using its *.down.sql
// counterpart.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureTable(ctx, migrationsTable); err != nil {
		return err
	}
	applied, err := r.Applied(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return errors.New("no migrations applied")
	}
	last := applied[len(applied)-1]
	downPath := strings.TrimSuffix(filepath.Join(r.migrationsDir, last), ".up.sql") + ".down.sql"
	if _, err := os.Stat(downPath); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := r.execFile(ctx, downPath); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1`, migrationsTable), last)
	return err
}

// Applied returns migration names in apply order.
func (r *Runner) Applied(ctx context.Context) ([]string, error) {
	if err := r.ensureTable(ctx, migrationsTable); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s order by applied_at asc`, migrationsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *Runner) applyPending(ctx context.Context, table, dir, suffix, kind string) error {
	if err := r.ensureTable(ctx, table); err != nil {
		return err
	}
	done, err := r.executedSet(ctx, table)
	if err != nil {
		return err
	}
	files, err := collectSQL(dir, suffix)
	if err != nil {
		return err
	}
	for _, f := range files {
		if done[f.base] {
			continue
		}
		if err := r.execFile(ctx, f.path); err != nil {
			return fmt.Errorf("apply %s %s: %w", kind, f.base, err)
		}
		_, err = r.db.ExecContext(ctx,
			fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, table),
			f.base, time.Now().UTC())
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) ensureTable(ctx context.Context, table string) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, table))
	return err
}

// execFile runs all statements of one file inside a single transaction.
func (r *Runner) execFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) executedSet(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

type sqlFile struct {
	base string
	path string
}

func collectSQL(dir, suffix string) ([]sqlFile, error) {
	if dir == "" {
		return nil, nil
	}
	var files []sqlFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		files = append(files, sqlFile{base: d.Name(), path: path})
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].base < files[j].base })
	return files, nil
}

// splitStatements splits on semicolons outside single-quoted strings. Enough
// for the plain DDL/DML in ops/migrations; no dollar-quoting support.
func splitStatements(input string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	for _, r := range input {
		current.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
