package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Admin is the validation layer over the identity store for administrative
// CRUD: tenants, roles, users, the permission catalog, and assignments.
type Admin struct {
	store Store
	now   func() time.Time
}

// NewAdmin constructs the admin service.
func NewAdmin(store Store) (*Admin, error) {
	if store == nil {
		return nil, errors.New("identity store is required")
	}
	return &Admin{store: store, now: time.Now}, nil
}

func (a *Admin) CreateTenant(ctx context.Context, name, domain string) (Tenant, error) {
	name = strings.TrimSpace(name)
	domain = strings.TrimSpace(strings.ToLower(domain))
	if name == "" {
		return Tenant{}, fmt.Errorf("%w: tenant name is required", ErrInvalidInput)
	}
	if domain == "" || strings.ContainsAny(domain, " /") {
		return Tenant{}, fmt.Errorf("%w: valid tenant domain is required", ErrInvalidInput)
	}
	return a.store.CreateTenant(ctx, name, domain)
}

func (a *Admin) ListTenants(ctx context.Context) ([]Tenant, error) {
	return a.store.ListTenants(ctx)
}

func (a *Admin) GetTenant(ctx context.Context, id string) (Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Tenant{}, fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}
	return a.store.GetTenant(ctx, id)
}

func (a *Admin) CreateUser(ctx context.Context, username, email, password string) (User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" {
		return User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(password) < 8 {
		return User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	return a.store.CreateUser(ctx, username, email, hash, true)
}

func (a *Admin) ListUsers(ctx context.Context) ([]User, error) {
	return a.store.ListUsers(ctx)
}

func (a *Admin) GetUser(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return a.store.GetUser(ctx, userID)
}

// UpdateUser applies partial changes. Users are never deleted; deactivation
// goes through here with IsActive=false.
func (a *Admin) UpdateUser(ctx context.Context, userID string, upd UserUpdate) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &email
	}
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if username == "" {
			return User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
		}
		upd.Username = &username
	}
	if upd.Password != nil {
		if len(*upd.Password) < 8 {
			return User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
		}
		hash, err := HashPassword(*upd.Password)
		if err != nil {
			return User{}, err
		}
		upd.Password = &hash
	}
	return a.store.UpdateUser(ctx, userID, upd)
}

func (a *Admin) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return a.store.CreateRole(ctx, name, strings.TrimSpace(description))
}

func (a *Admin) ListRoles(ctx context.Context) ([]Role, error) {
	return a.store.ListRoles(ctx)
}

func (a *Admin) SetRolePermissions(ctx context.Context, roleID string, permissionKeys []string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return a.store.SetRolePermissions(ctx, roleID, dedupeSorted(permissionKeys))
}

func (a *Admin) RolePermissions(ctx context.Context, roleID string) ([]Permission, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return a.store.RolePermissions(ctx, roleID)
}

func (a *Admin) ListPermissions(ctx context.Context) ([]Permission, error) {
	return a.store.ListPermissions(ctx)
}

// AssignRole grants a role to a user within a tenant, optionally time-limited.
func (a *Admin) AssignRole(ctx context.Context, userID, roleID, tenantID string, expiresAt *time.Time) (UserRole, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" || roleID == "" || tenantID == "" {
		return UserRole{}, fmt.Errorf("%w: user_id, role_id and tenant_id are required", ErrInvalidInput)
	}
	if expiresAt != nil && !expiresAt.After(a.now()) {
		return UserRole{}, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
	}
	return a.store.AssignRole(ctx, userID, roleID, tenantID, expiresAt)
}

func (a *Admin) RevokeAssignment(ctx context.Context, assignmentID string) error {
	assignmentID = strings.TrimSpace(assignmentID)
	if assignmentID == "" {
		return fmt.Errorf("%w: assignment_id is required", ErrInvalidInput)
	}
	return a.store.RevokeAssignment(ctx, assignmentID)
}

func (a *Admin) ListAssignments(ctx context.Context, userID string) ([]UserRole, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return a.store.ListAssignments(ctx, userID)
}
