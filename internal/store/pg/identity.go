package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"crewgate.org/internal/identity"
	"crewgate.org/internal/ids"
)

var _ identity.Store = (*Store)(nil)

func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string, active bool) (identity.User, error) {
	if s.db == nil {
		return identity.User{}, errors.New("database connection unavailable")
	}
	var u identity.User
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, username, email, password_hash, is_active)
		values ($1, $2, $3, $4, $5)
		returning `+userColumns+`
	`, ids.NewPrefixed("usr"), username, email, passwordHash, active)
	if err := scanUser(row, &u); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return identity.User{}, identity.ErrConflict
		}
		return identity.User{}, err
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, u *identity.User) error {
	var provider, external sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive,
		&provider, &external, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return err
	}
	u.ExternalProvider = provider.String
	u.ExternalID = external.String
	return nil
}

const userColumns = `id, username, email, password_hash, is_active, external_provider, external_id, created_at, updated_at`

func (s *Store) GetUser(ctx context.Context, userID string) (identity.User, error) {
	if s.db == nil {
		return identity.User{}, errors.New("database connection unavailable")
	}
	var u identity.User
	err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, userID), &u)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.User{}, err
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (identity.User, error) {
	if s.db == nil {
		return identity.User{}, errors.New("database connection unavailable")
	}
	var u identity.User
	err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = lower($1)`, email), &u)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.User{}, err
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]identity.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []identity.User
	for rows.Next() {
		var u identity.User
		if err := scanUser(rows, &u); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateUser(ctx context.Context, userID string, upd identity.UserUpdate) (identity.User, error) {
	if s.db == nil {
		return identity.User{}, errors.New("database connection unavailable")
	}
	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	if upd.Username != nil {
		setClauses = append(setClauses, fmt.Sprintf("username = $%d", idx))
		args = append(args, *upd.Username)
		idx++
	}
	if upd.Email != nil {
		setClauses = append(setClauses, fmt.Sprintf("email = lower($%d)", idx))
		args = append(args, *upd.Email)
		idx++
	}
	if upd.Password != nil {
		setClauses = append(setClauses, fmt.Sprintf("password_hash = $%d", idx))
		args = append(args, *upd.Password)
		idx++
	}
	if upd.IsActive != nil {
		setClauses = append(setClauses, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *upd.IsActive)
		idx++
	}
	if len(setClauses) == 0 {
		return s.GetUser(ctx, userID)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, userID)

	var u identity.User
	err := scanUser(s.db.QueryRowContext(ctx, fmt.Sprintf(`
		update users set %s where id = $%d
		returning %s
	`, strings.Join(setClauses, ", "), idx, userColumns), args...), &u)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, identity.ErrNotFound
	}
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return identity.User{}, identity.ErrConflict
		}
		return identity.User{}, err
	}
	return u, nil
}

func (s *Store) CreateTenant(ctx context.Context, name, domain string) (identity.Tenant, error) {
	if s.db == nil {
		return identity.Tenant{}, errors.New("database connection unavailable")
	}
	var t identity.Tenant
	err := s.db.QueryRowContext(ctx, `
		insert into tenants (id, name, domain, is_active)
		values ($1, $2, $3, true)
		returning id, name, domain, is_active, created_at, updated_at
	`, ids.NewPrefixed("tnt"), name, domain).
		Scan(&t.ID, &t.Name, &t.Domain, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return identity.Tenant{}, identity.ErrConflict
		}
		return identity.Tenant{}, err
	}
	return t, nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (identity.Tenant, error) {
	return s.tenantBy(ctx, "id", tenantID)
}

func (s *Store) GetTenantByDomain(ctx context.Context, domain string) (identity.Tenant, error) {
	return s.tenantBy(ctx, "domain", domain)
}

func (s *Store) tenantBy(ctx context.Context, column, value string) (identity.Tenant, error) {
	if s.db == nil {
		return identity.Tenant{}, errors.New("database connection unavailable")
	}
	var t identity.Tenant
	err := s.db.QueryRowContext(ctx, `
		select id, name, domain, is_active, created_at, updated_at
		from tenants where `+column+` = $1
	`, value).Scan(&t.ID, &t.Name, &t.Domain, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Tenant{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Tenant{}, err
	}
	return t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]identity.Tenant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, domain, is_active, created_at, updated_at
		from tenants order by domain
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []identity.Tenant
	for rows.Next() {
		var t identity.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Domain, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateRole(ctx context.Context, name, description string) (identity.Role, error) {
	if s.db == nil {
		return identity.Role{}, errors.New("database connection unavailable")
	}
	var (
		r    identity.Role
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description)
		values ($1, $2, $3)
		returning id, name, description, created_at, updated_at
	`, ids.NewPrefixed("rol"), name, nullIfEmpty(description)).
		Scan(&r.ID, &r.Name, &desc, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return identity.Role{}, identity.ErrConflict
		}
		return identity.Role{}, err
	}
	r.Description = desc.String
	return r, nil
}

func (s *Store) GetRole(ctx context.Context, roleID string) (identity.Role, error) {
	if s.db == nil {
		return identity.Role{}, errors.New("database connection unavailable")
	}
	var (
		r    identity.Role
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_at, updated_at
		from roles where id = $1
	`, roleID).Scan(&r.ID, &r.Name, &desc, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Role{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.Role{}, err
	}
	r.Description = desc.String
	return r, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]identity.Role, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at, updated_at
		from roles order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []identity.Role
	for rows.Next() {
		var (
			r    identity.Role
			desc sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &desc, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Description = desc.String
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SetRolePermissions replaces the role's permission set atomically.
func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permissionKeys []string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `select exists(select 1 from roles where id = $1)`, roleID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return identity.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, key := range permissionKeys {
		res, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			select $1, id from permissions where key = $2
		`, roleID, key)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: unknown permission %q", identity.ErrInvalidInput, key)
		}
	}
	return tx.Commit()
}

func (s *Store) RolePermissions(ctx context.Context, roleID string) ([]identity.Permission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.key, p.description, p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by p.key
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []identity.Permission) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	for _, p := range perms {
		if _, err := s.db.ExecContext(ctx, `
			insert into permissions (id, key, description)
			values ($1, $2, $3)
			on conflict (key) do nothing
		`, ids.NewPrefixed("prm"), p.Key, nullIfEmpty(p.Description)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]identity.Permission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, key, description, created_at from permissions order by key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPermissions(rows)
}

func collectPermissions(rows *sql.Rows) ([]identity.Permission, error) {
	var result []identity.Permission
	for rows.Next() {
		var (
			p    identity.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Key, &desc, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Description = desc.String
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID, tenantID string, expiresAt *time.Time) (identity.UserRole, error) {
	if s.db == nil {
		return identity.UserRole{}, errors.New("database connection unavailable")
	}
	var (
		ur  identity.UserRole
		exp sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		insert into user_roles (id, user_id, role_id, tenant_id, is_active, expires_at)
		values ($1, $2, $3, $4, true, $5)
		returning id, user_id, role_id, tenant_id, is_active, expires_at, created_at
	`, ids.NewPrefixed("urole"), userID, roleID, tenantID, nullTimePtr(expiresAt)).
		Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.TenantID, &ur.IsActive, &exp, &ur.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return identity.UserRole{}, identity.ErrConflict
			case pgErrForeignKeyViolation:
				return identity.UserRole{}, identity.ErrNotFound
			}
		}
		return identity.UserRole{}, err
	}
	if exp.Valid {
		ur.ExpiresAt = &exp.Time
	}
	return ur, nil
}

func (s *Store) RevokeAssignment(ctx context.Context, assignmentID string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update user_roles set is_active = false where id = $1 and is_active
	`, assignmentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, userID string) ([]identity.UserRole, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, role_id, tenant_id, is_active, expires_at, created_at
		from user_roles where user_id = $1
		order by created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []identity.UserRole
	for rows.Next() {
		var (
			ur  identity.UserRole
			exp sql.NullTime
		)
		if err := rows.Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.TenantID, &ur.IsActive, &exp, &ur.CreatedAt); err != nil {
			return nil, err
		}
		if exp.Valid {
			ur.ExpiresAt = &exp.Time
		}
		result = append(result, ur)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// TenantAccess resolves the user's active grants in one round trip. One row
// per (tenant, role, permission); the caller-facing grouping happens here.
func (s *Store) TenantAccess(ctx context.Context, userID, tenantDomain string, now time.Time) ([]identity.TenantAccess, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select t.id, t.name, t.domain, r.name, p.key
		from user_roles ur
		join tenants t on t.id = ur.tenant_id and t.is_active
		join roles r on r.id = ur.role_id
		left join role_permissions rp on rp.role_id = r.id
		left join permissions p on p.id = rp.permission_id
		where ur.user_id = $1
		  and ur.is_active
		  and (ur.expires_at is null or ur.expires_at > $2)
		  and ($3 = '' or t.domain = $3)
		order by t.domain, r.name, p.key
	`, userID, now, tenantDomain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		result []identity.TenantAccess
		cur    *identity.TenantAccess
	)
	for rows.Next() {
		var (
			tenantID, tenantName, domain, roleName string
			key                                    sql.NullString
		)
		if err := rows.Scan(&tenantID, &tenantName, &domain, &roleName, &key); err != nil {
			return nil, err
		}
		if cur == nil || cur.TenantID != tenantID || cur.RoleName != roleName {
			result = append(result, identity.TenantAccess{
				TenantID:    tenantID,
				TenantName:  tenantName,
				Domain:      domain,
				RoleName:    roleName,
				Permissions: []string{},
			})
			cur = &result[len(result)-1]
		}
		if key.Valid {
			cur.Permissions = append(cur.Permissions, key.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateRefreshToken(ctx context.Context, tok *identity.RefreshToken) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token_hash, expires_at, revoked)
		values ($1, $2, $3, $4, $5)
	`, tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt, tok.Revoked)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return identity.ErrConflict
			case pgErrForeignKeyViolation:
				return identity.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, id string) (identity.RefreshToken, error) {
	if s.db == nil {
		return identity.RefreshToken{}, errors.New("database connection unavailable")
	}
	var tok identity.RefreshToken
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, expires_at, revoked, created_at
		from refresh_tokens where id = $1
	`, id).Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &tok.Revoked, &tok.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.RefreshToken{}, identity.ErrNotFound
	}
	if err != nil {
		return identity.RefreshToken{}, err
	}
	return tok, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens set revoked = true where id = $1
	`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (s *Store) PurgeRefreshTokens(ctx context.Context, olderThan time.Time) (int64, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		delete from refresh_tokens
		where expires_at < $1 or (revoked and created_at < $1)
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) DeactivateExpiredAssignments(ctx context.Context, now time.Time) (int64, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update user_roles set is_active = false
		where is_active and expires_at is not null and expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
