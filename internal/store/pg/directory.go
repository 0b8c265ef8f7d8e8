package pg

import (
	"context"
	"database/sql"
	"time"

	"hostria.io/internal/auth"
)

// Tenant rows ---------------------------------------------------------------

const tenantColumns = `id, name, slug, type, active, subscription_status,
	subscription_ends_at, created_at, updated_at, deleted_at`

func scanTenant(scan func(dest ...any) error) (*auth.Tenant, error) {
	var t auth.Tenant
	err := scan(
		&t.ID, &t.Name, &t.Slug, &t.Type, &t.Active, &t.Subscription,
		&t.SubscriptionEndsAt, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (s *Store) CreateTenant(ctx context.Context, t *auth.Tenant) error {
	_, err := s.db.ExecContext(ctx,
		`insert into tenants(id, name, slug, type, active, subscription_status, subscription_ends_at, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		t.ID, t.Name, t.Slug, t.Type, t.Active, t.Subscription, t.SubscriptionEndsAt, t.CreatedAt, t.UpdatedAt,
	)
	return translate(err)
}

func (s *Store) GetTenant(ctx context.Context, id string) (*auth.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `select `+tenantColumns+` from tenants where id=$1`, id)
	return scanTenant(row.Scan)
}

func (s *Store) ListTenants(ctx context.Context) ([]*auth.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+tenantColumns+` from tenants where deleted_at is null order by created_at`)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []*auth.Tenant
	for rows.Next() {
		t, err := scanTenant(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, translate(rows.Err())
}

func (s *Store) UpdateTenant(ctx context.Context, t *auth.Tenant) error {
	_, err := s.db.ExecContext(ctx,
		`update tenants
		 set name=$2, type=$3, active=$4, subscription_status=$5, subscription_ends_at=$6, updated_at=$7
		 where id=$1 and deleted_at is null`,
		t.ID, t.Name, t.Type, t.Active, t.Subscription, t.SubscriptionEndsAt, t.UpdatedAt,
	)
	return translate(err)
}

func (s *Store) SoftDeleteTenant(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update tenants set deleted_at=$2, active=false, updated_at=$2 where id=$1 and deleted_at is null`,
		id, at,
	)
	return translate(err)
}

// Branch rows ---------------------------------------------------------------

const branchColumns = `id, tenant_id, name, coalesce(address,''), coalesce(city,''),
	coalesce(phone,''), active, created_at, updated_at, deleted_at`

func scanBranch(scan func(dest ...any) error) (*auth.Branch, error) {
	var b auth.Branch
	err := scan(
		&b.ID, &b.TenantID, &b.Name, &b.Address, &b.City, &b.Phone,
		&b.Active, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (s *Store) CreateBranch(ctx context.Context, b *auth.Branch) error {
	_, err := s.db.ExecContext(ctx,
		`insert into branches(id, tenant_id, name, address, city, phone, active, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		b.ID, b.TenantID, b.Name, nullable(b.Address), nullable(b.City), nullable(b.Phone),
		b.Active, b.CreatedAt, b.UpdatedAt,
	)
	return translate(err)
}

func (s *Store) GetBranch(ctx context.Context, id string) (*auth.Branch, error) {
	row := s.db.QueryRowContext(ctx, `select `+branchColumns+` from branches where id=$1`, id)
	return scanBranch(row.Scan)
}

func (s *Store) ListBranches(ctx context.Context, tenantID string) ([]*auth.Branch, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+branchColumns+` from branches where tenant_id=$1 and deleted_at is null order by created_at`,
		tenantID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []*auth.Branch
	for rows.Next() {
		b, err := scanBranch(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, translate(rows.Err())
}

func (s *Store) UpdateBranch(ctx context.Context, b *auth.Branch) error {
	_, err := s.db.ExecContext(ctx,
		`update branches
		 set name=$2, address=$3, city=$4, phone=$5, active=$6, updated_at=$7
		 where id=$1 and deleted_at is null`,
		b.ID, b.Name, nullable(b.Address), nullable(b.City), nullable(b.Phone), b.Active, b.UpdatedAt,
	)
	return translate(err)
}

func (s *Store) SoftDeleteBranch(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update branches set deleted_at=$2, active=false, updated_at=$2 where id=$1 and deleted_at is null`,
		id, at,
	)
	return translate(err)
}

// Principal rows ------------------------------------------------------------

const userColumns = `id, username, coalesce(email,''), password_hash, role,
	coalesce(tenant_id,''), coalesce(branch_id,''), active, must_change_password,
	failed_attempts, lock_until, last_login_at, created_at, updated_at, deleted_at`

func scanUser(scan func(dest ...any) error) (*auth.Principal, error) {
	var p auth.Principal
	err := scan(
		&p.ID, &p.Username, &p.Email, &p.PasswordHash, &p.Role,
		&p.TenantID, &p.BranchID, &p.Active, &p.MustChangePassword,
		&p.FailedAttempts, &p.LockUntil, &p.LastLoginAt,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) CreateUser(ctx context.Context, p *auth.Principal) error {
	_, err := s.db.ExecContext(ctx,
		`insert into principals(id, username, email, password_hash, role, tenant_id, branch_id,
		                        active, must_change_password, failed_attempts, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10,$11)`,
		p.ID, p.Username, nullable(p.Email), p.PasswordHash, p.Role,
		nullable(p.TenantID), nullable(p.BranchID), p.Active, p.MustChangePassword,
		p.CreatedAt, p.UpdatedAt,
	)
	return translate(err)
}

func (s *Store) GetUser(ctx context.Context, id string) (*auth.Principal, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from principals where id=$1`, id)
	return scanUser(row.Scan)
}

func (s *Store) ListUsers(ctx context.Context, tenantID string) ([]*auth.Principal, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from principals where tenant_id=$1 and deleted_at is null order by created_at`,
		tenantID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []*auth.Principal
	for rows.Next() {
		p, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, translate(rows.Err())
}

func (s *Store) UpdateUser(ctx context.Context, p *auth.Principal) error {
	_, err := s.db.ExecContext(ctx,
		`update principals
		 set email=$2, password_hash=$3, branch_id=$4, active=$5, must_change_password=$6, updated_at=$7
		 where id=$1 and deleted_at is null`,
		p.ID, nullable(p.Email), p.PasswordHash, nullable(p.BranchID), p.Active, p.MustChangePassword, p.UpdatedAt,
	)
	return translate(err)
}

func (s *Store) SoftDeleteUser(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update principals set deleted_at=$2, active=false, updated_at=$2 where id=$1 and deleted_at is null`,
		id, at,
	)
	return translate(err)
}

// nullable maps empty strings to NULL so unique and foreign-key constraints
// see proper absence.
func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
