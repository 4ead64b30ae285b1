// Package httpapi is the HTTP surface. Handlers translate the JSON envelope
// to and from the domain services; authorization is a claims check against
// the bearer principal plus feature toggles.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"crewgate.org/internal/audit"
	"crewgate.org/internal/features"
	"crewgate.org/internal/identity"
	"crewgate.org/internal/obs"
	"crewgate.org/internal/siteops"
	"crewgate.org/internal/workforce"
)

// AuthService issues and verifies credentials.
type AuthService interface {
	Login(ctx context.Context, email, password, tenantDomain string) (identity.TokenPair, identity.Principal, error)
	Refresh(ctx context.Context, refreshToken string) (identity.TokenPair, identity.Principal, error)
	Logout(ctx context.Context, refreshToken string) error
	Authenticate(ctx context.Context, token string) (identity.Principal, error)
}

// AdminService manages the RBAC data model.
type AdminService interface {
	CreateTenant(ctx context.Context, name, domain string) (identity.Tenant, error)
	ListTenants(ctx context.Context) ([]identity.Tenant, error)
	GetTenant(ctx context.Context, id string) (identity.Tenant, error)
	CreateUser(ctx context.Context, username, email, password string) (identity.User, error)
	ListUsers(ctx context.Context) ([]identity.User, error)
	GetUser(ctx context.Context, userID string) (identity.User, error)
	UpdateUser(ctx context.Context, userID string, upd identity.UserUpdate) (identity.User, error)
	CreateRole(ctx context.Context, name, description string) (identity.Role, error)
	ListRoles(ctx context.Context) ([]identity.Role, error)
	SetRolePermissions(ctx context.Context, roleID string, permissionKeys []string) error
	RolePermissions(ctx context.Context, roleID string) ([]identity.Permission, error)
	ListPermissions(ctx context.Context) ([]identity.Permission, error)
	AssignRole(ctx context.Context, userID, roleID, tenantID string, expiresAt *time.Time) (identity.UserRole, error)
	RevokeAssignment(ctx context.Context, assignmentID string) error
	ListAssignments(ctx context.Context, userID string) ([]identity.UserRole, error)
}

// FeatureService gates optional behavior.
type FeatureService interface {
	IsEnabled(ctx context.Context, key string) (bool, error)
	SetEnabled(ctx context.Context, key string, enabled bool) (features.Toggle, error)
	List(ctx context.Context) (map[string]bool, error)
}

// WorkforceService covers employees, attendance, leave and holidays.
type WorkforceService interface {
	CreateEmployee(ctx context.Context, userID, fullName, department, phone, managerID string) (*workforce.Employee, error)
	GetEmployee(ctx context.Context, id string) (*workforce.Employee, error)
	GetEmployeeByUser(ctx context.Context, userID string) (*workforce.Employee, error)
	ListEmployees(ctx context.Context, department string) ([]workforce.Employee, error)
	UpdateEmployee(ctx context.Context, id string, upd workforce.EmployeeUpdate) (*workforce.Employee, error)
	CheckIn(ctx context.Context, employeeID string, lat, lon *float64) (*workforce.AttendanceRecord, error)
	CheckOut(ctx context.Context, employeeID string) (*workforce.AttendanceRecord, error)
	ListAttendance(ctx context.Context, employeeID string, from, to time.Time) ([]workforce.AttendanceRecord, error)
	SubmitLeave(ctx context.Context, employeeID, leaveType string, from, to time.Time, reason string, autoApprove bool) (*workforce.LeaveRequest, error)
	ApproveLeave(ctx context.Context, requestID, approverUserID string) (*workforce.LeaveRequest, error)
	RejectLeave(ctx context.Context, requestID, approverUserID string) (*workforce.LeaveRequest, error)
	CancelLeave(ctx context.Context, requestID, employeeID string) (*workforce.LeaveRequest, error)
	ListLeaveRequests(ctx context.Context, employeeID, status string) ([]workforce.LeaveRequest, error)
	SetEntitlement(ctx context.Context, employeeID, leaveType string, year, allocated int) (*workforce.LeaveEntitlement, error)
	GetEntitlement(ctx context.Context, employeeID, leaveType string, year int) (*workforce.LeaveEntitlement, error)
	CreateHoliday(ctx context.Context, date time.Time, name string) (*workforce.PublicHoliday, error)
	ListHolidays(ctx context.Context, year int) ([]workforce.PublicHoliday, error)
	DeleteHoliday(ctx context.Context, id string) error
}

// SiteopsService covers projects, contractors, labour, visitors and entries.
type SiteopsService interface {
	CreateProject(ctx context.Context, name, siteAddress string) (*siteops.Project, error)
	GetProject(ctx context.Context, id string) (*siteops.Project, error)
	ListProjects(ctx context.Context, activeOnly bool) ([]siteops.Project, error)
	SetProjectActive(ctx context.Context, id string, active bool) (*siteops.Project, error)
	CreateContractor(ctx context.Context, name, contact string) (*siteops.Contractor, error)
	ListContractors(ctx context.Context) ([]siteops.Contractor, error)
	LinkContractor(ctx context.Context, projectID, contractorID string) error
	ListProjectContractors(ctx context.Context, projectID string) ([]siteops.Contractor, error)
	CreateLabour(ctx context.Context, contractorID, name, barcode, photoRef string) (*siteops.Labour, error)
	GetLabourByBarcode(ctx context.Context, barcode string) (*siteops.Labour, error)
	ListLabours(ctx context.Context, contractorID string) ([]siteops.Labour, error)
	SetLabourActive(ctx context.Context, id string, active bool) (*siteops.Labour, error)
	CreateVisitor(ctx context.Context, name, phone, purpose, hostEmployeeID, badgeBarcode, photoRef string) (*siteops.Visitor, error)
	ListVisitors(ctx context.Context, hostEmployeeID string) ([]siteops.Visitor, error)
	AssignGuard(ctx context.Context, guardUserID, projectID string) (*siteops.GuardAssignment, error)
	RevokeGuardAssignment(ctx context.Context, id string) (*siteops.GuardAssignment, error)
	ListGuardAssignments(ctx context.Context, projectID string) ([]siteops.GuardAssignment, error)
	RecordEntry(ctx context.Context, in siteops.EntryInput) (*siteops.EntryExitRecord, error)
	ListEntries(ctx context.Context, filter siteops.EntryFilter) ([]siteops.EntryExitRecord, error)
}

// Auditor records mutating actions.
type Auditor interface {
	Record(ctx context.Context, action, resourceType, resourceID string, metadata map[string]string)
	List(ctx context.Context, limit int) ([]audit.Entry, error)
}

// Pinger backs the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the middleware chain.
type Options struct {
	CORSOrigins     []string
	RateLimitPerSec int
	RateLimitBurst  int
	MaxBodyBytes    int64
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	auth      AuthService
	admin     AdminService
	features  FeatureService
	workforce WorkforceService
	siteops   SiteopsService
	auditor   Auditor
	ready     Pinger
	version   string
	opts      Options
}

// New wires routes to services.
func New(auth AuthService, admin AdminService, feats FeatureService, wf WorkforceService, so SiteopsService, auditor Auditor, ready Pinger, version string, opts Options) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{
		mux:       http.NewServeMux(),
		auth:      auth,
		admin:     admin,
		features:  feats,
		workforce: wf,
		siteops:   so,
		auditor:   auditor,
		ready:     ready,
		version:   version,
		opts:      opts,
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.HandleFunc("/v1/info", a.handleInfo)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)

	a.mux.HandleFunc("/v1/features", a.handleFeatures)
	a.mux.HandleFunc("/v1/features/", a.handleFeatureByKey)

	a.mux.HandleFunc("/v1/tenants", a.handleTenants)
	a.mux.HandleFunc("/v1/tenants/", a.handleTenantByID)
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleSub)
	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserSub)
	a.mux.HandleFunc("/v1/permissions", a.handlePermissions)
	a.mux.HandleFunc("/v1/assignments/", a.handleAssignmentByID)

	a.mux.HandleFunc("/v1/employees", a.handleEmployees)
	a.mux.HandleFunc("/v1/employees/", a.handleEmployeeByID)
	a.mux.HandleFunc("/v1/attendance/checkin", a.handleCheckIn)
	a.mux.HandleFunc("/v1/attendance/checkout", a.handleCheckOut)
	a.mux.HandleFunc("/v1/attendance", a.handleAttendanceList)
	a.mux.HandleFunc("/v1/leave-requests", a.handleLeaveRequests)
	a.mux.HandleFunc("/v1/leave-requests/", a.handleLeaveRequestSub)
	a.mux.HandleFunc("/v1/entitlements", a.handleEntitlements)
	a.mux.HandleFunc("/v1/holidays", a.handleHolidays)
	a.mux.HandleFunc("/v1/holidays/", a.handleHolidayByID)

	a.mux.HandleFunc("/v1/projects", a.handleProjects)
	a.mux.HandleFunc("/v1/projects/", a.handleProjectSub)
	a.mux.HandleFunc("/v1/contractors", a.handleContractors)
	a.mux.HandleFunc("/v1/labours", a.handleLabours)
	a.mux.HandleFunc("/v1/labours/", a.handleLabourByID)
	a.mux.HandleFunc("/v1/visitors", a.handleVisitors)
	a.mux.HandleFunc("/v1/entries", a.handleEntries)
	a.mux.HandleFunc("/v1/guards/assignments", a.handleGuardAssignments)
	a.mux.HandleFunc("/v1/guards/assignments/", a.handleGuardAssignmentByID)

	a.mux.HandleFunc("/v1/audit", a.handleAuditList)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = obs.Instrument(h)
	if a.opts.RateLimitPerSec > 0 {
		h = RateLimit(h, a.opts.RateLimitBurst, a.opts.RateLimitPerSec)
	}
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = CORS(h, a.opts.CORSOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = Recover(h)
	return h
}
