package identity

import "time"

// User is a global identity record. Users are never hard-deleted; disabling
// flips IsActive so audit references stay intact.
type User struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	IsActive         bool      `json:"is_active"`
	ExternalProvider string    `json:"external_provider,omitempty"`
	ExternalID       string    `json:"external_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Tenant is a named domain partition (e.g. "attendance", "entryexit") within
// which roles are assigned.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role is a named permission bundle. Roles are global; the tenant scope lives
// on the assignment.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is an atomic capability expressed as a "resource.action" key.
type Permission struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserRole grants a user a role within a specific tenant, optionally
// time-limited. Unique on the (user, role, tenant) tuple.
type UserRole struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	RoleID    string     `json:"role_id"`
	TenantID  string     `json:"tenant_id"`
	IsActive  bool       `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// RefreshToken is the persisted half of an opaque refresh credential. Only a
// sha256 hash of the client-held secret is stored.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// TenantAccess is one resolved (tenant, role, permissions) tuple. A user with
// stacked roles in one tenant yields one record per role.
type TenantAccess struct {
	TenantID    string   `json:"tenant_id"`
	TenantName  string   `json:"tenant_name"`
	Domain      string   `json:"domain"`
	RoleName    string   `json:"role_name"`
	Permissions []string `json:"permissions"`
}

// Principal is the authenticated caller as carried by a verified access
// token. It holds the claim set resolved at issuance time; permission changes
// become visible on refresh.
type Principal struct {
	UserID   string         `json:"user_id"`
	Username string         `json:"username"`
	Email    string         `json:"email"`
	Access   []TenantAccess `json:"access"`
}

// HasRole reports whether the principal holds the named role. An empty
// domain matches the role in any tenant.
func (p Principal) HasRole(roleName, domain string) bool {
	for _, a := range p.Access {
		if domain != "" && a.Domain != domain {
			continue
		}
		if a.RoleName == roleName {
			return true
		}
	}
	return false
}

// HasPermission reports whether the principal can execute the capability
// identified by key. An empty domain matches any tenant.
func (p Principal) HasPermission(key, domain string) bool {
	for _, a := range p.Access {
		if domain != "" && a.Domain != domain {
			continue
		}
		for _, perm := range a.Permissions {
			if perm == key {
				return true
			}
		}
	}
	return false
}

// TokenPair carries freshly minted credentials.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
