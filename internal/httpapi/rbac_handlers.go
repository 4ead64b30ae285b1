package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crewgate.org/internal/identity"
)

func handleIdentityError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, identity.ErrPermissionDenied):
		writeError(w, r, http.StatusForbidden, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "identity operation failed")
	}
}

type createTenantRequest struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

func (a *API) handleTenants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, identity.PermTenantManage, "") {
			return
		}
		tenants, err := a.admin.ListTenants(r.Context())
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, tenants)
	case http.MethodPost:
		if !a.requirePermission(w, r, identity.PermTenantManage, "") {
			return
		}
		var req createTenantRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		tenant, err := a.admin.CreateTenant(r.Context(), req.Name, req.Domain)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "tenant.create", "tenant", tenant.ID,
			map[string]string{"domain": tenant.Domain})
		writeData(w, r, http.StatusCreated, tenant)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTenantByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/tenants/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requirePermission(w, r, identity.PermTenantManage, "") {
		return
	}
	tenant, err := a.admin.GetTenant(r.Context(), id)
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, tenant)
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, identity.PermRoleManage, "") {
			return
		}
		roles, err := a.admin.ListRoles(r.Context())
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, roles)
	case http.MethodPost:
		if !a.requirePermission(w, r, identity.PermRoleManage, "") {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.admin.CreateRole(r.Context(), req.Name, req.Description)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "role.create", "role", role.ID,
			map[string]string{"name": role.Name})
		writeData(w, r, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// handleRoleSub covers /v1/roles/{id}/permissions.
func (a *API) handleRoleSub(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	roleID := parts[0]
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, identity.PermRoleManage, "") {
			return
		}
		perms, err := a.admin.RolePermissions(r.Context(), roleID)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, perms)
	case http.MethodPut:
		if !a.requirePermission(w, r, identity.PermRoleManage, "") {
			return
		}
		var req setPermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.admin.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
			handleIdentityError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "role.permissions.set", "role", roleID,
			map[string]string{"count": strconv.Itoa(len(req.Permissions))})
		writeData(w, r, http.StatusOK, map[string]any{"role_id": roleID, "permissions": req.Permissions})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, identity.PermUserManage, "") {
			return
		}
		users, err := a.admin.ListUsers(r.Context())
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, users)
	case http.MethodPost:
		if !a.requirePermission(w, r, identity.PermUserManage, "") {
			return
		}
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.admin.CreateUser(r.Context(), req.Username, req.Email, req.Password)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "user.create", "user", user.ID,
			map[string]string{"username": user.Username})
		writeData(w, r, http.StatusCreated, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type updateUserRequest struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

type assignRoleRequest struct {
	RoleID    string     `json:"role_id"`
	TenantID  string     `json:"tenant_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// handleUserSub covers /v1/users/{id} and /v1/users/{id}/roles.
func (a *API) handleUserSub(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleUserByID(w, r, parts[0])
	case len(parts) == 2 && parts[0] != "" && parts[1] == "roles":
		a.handleUserRoles(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserByID(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, identity.PermUserManage, "") {
			return
		}
		user, err := a.admin.GetUser(r.Context(), userID)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, user)
	case http.MethodPatch:
		if !a.requirePermission(w, r, identity.PermUserManage, "") {
			return
		}
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.admin.UpdateUser(r.Context(), userID, identity.UserUpdate{
			Username: req.Username,
			Email:    req.Email,
			Password: req.Password,
			IsActive: req.IsActive,
		})
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "user.update", "user", user.ID, nil)
		writeData(w, r, http.StatusOK, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
	}
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, identity.PermUserManage, "") {
			return
		}
		assignments, err := a.admin.ListAssignments(r.Context(), userID)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, assignments)
	case http.MethodPost:
		if !a.requirePermission(w, r, identity.PermUserManage, "") {
			return
		}
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		assignment, err := a.admin.AssignRole(r.Context(), userID, req.RoleID, req.TenantID, req.ExpiresAt)
		if err != nil {
			handleIdentityError(w, r, err)
			return
		}
		a.auditor.Record(r.Context(), "user.role.assign", "user_role", assignment.ID, map[string]string{
			"user_id":   userID,
			"role_id":   req.RoleID,
			"tenant_id": req.TenantID,
		})
		writeData(w, r, http.StatusCreated, assignment)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAssignmentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/assignments/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.requirePermission(w, r, identity.PermUserManage, "") {
		return
	}
	if err := a.admin.RevokeAssignment(r.Context(), id); err != nil {
		handleIdentityError(w, r, err)
		return
	}
	a.auditor.Record(r.Context(), "user.role.revoke", "user_role", id, nil)
	writeData(w, r, http.StatusOK, map[string]any{"revoked": true})
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requirePermission(w, r, identity.PermRoleManage, "") {
		return
	}
	perms, err := a.admin.ListPermissions(r.Context())
	if err != nil {
		handleIdentityError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, perms)
}
