package identity

import (
	"context"
	"time"
)

// UserUpdate carries partial user changes. Nil fields are left untouched.
type UserUpdate struct {
	Username *string
	Email    *string
	Password *string // plaintext; hashed by the service layer
	IsActive *bool
}

// Store describes persistence operations required by the identity subsystem.
type Store interface {
	// Users.
	CreateUser(ctx context.Context, username, email, passwordHash string, active bool) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, userID string, upd UserUpdate) (User, error)

	// Tenants.
	CreateTenant(ctx context.Context, name, domain string) (Tenant, error)
	GetTenant(ctx context.Context, tenantID string) (Tenant, error)
	GetTenantByDomain(ctx context.Context, domain string) (Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)

	// Roles and the permission catalog.
	CreateRole(ctx context.Context, name, description string) (Role, error)
	GetRole(ctx context.Context, roleID string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	SetRolePermissions(ctx context.Context, roleID string, permissionKeys []string) error
	RolePermissions(ctx context.Context, roleID string) ([]Permission, error)
	EnsurePermissions(ctx context.Context, perms []Permission) error
	ListPermissions(ctx context.Context) ([]Permission, error)

	// Assignments.
	AssignRole(ctx context.Context, userID, roleID, tenantID string, expiresAt *time.Time) (UserRole, error)
	RevokeAssignment(ctx context.Context, assignmentID string) error
	ListAssignments(ctx context.Context, userID string) ([]UserRole, error)

	// TenantAccess resolves the active, non-expired (tenant, role,
	// permissions) tuples for a user as of now. An empty tenantDomain
	// returns every tenant the user has access to; disabled tenants are
	// always excluded.
	TenantAccess(ctx context.Context, userID, tenantDomain string, now time.Time) ([]TenantAccess, error)

	// Refresh tokens.
	CreateRefreshToken(ctx context.Context, tok *RefreshToken) error
	GetRefreshToken(ctx context.Context, id string) (RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error

	// Hygiene sweeps (see internal/jobs).
	PurgeRefreshTokens(ctx context.Context, olderThan time.Time) (int64, error)
	DeactivateExpiredAssignments(ctx context.Context, now time.Time) (int64, error)
}
