package identity

// Permission keys. Resource first, action second.
const (
	PermAttendanceView    = "attendance.view"
	PermAttendanceRecord  = "attendance.record"
	PermAttendanceApprove = "attendance.approve"
	PermLeaveRequest      = "leave.request"
	PermLeaveView         = "leave.view"
	PermLeaveApprove      = "leave.approve"
	PermHolidayManage     = "holiday.manage"
	PermEmployeeManage    = "employee.manage"
	PermEntryRecord       = "entryexit.record"
	PermEntryView         = "entryexit.view"
	PermLabourManage      = "labour.manage"
	PermVisitorManage     = "visitor.manage"
	PermProjectManage     = "project.manage"
	PermGuardAssign       = "guard.assign"
	PermTenantManage      = "tenant.manage"
	PermRoleManage        = "role.manage"
	PermUserManage        = "user.manage"
	PermFeatureManage     = "feature.manage"
	PermAuditView         = "audit.view"
)

// BuiltinPermissions is the catalog ensured at startup. Roles reference these
// by key; removing a key here does not cascade into existing role grants.
var BuiltinPermissions = []Permission{
	{Key: PermAttendanceView, Description: "View attendance records"},
	{Key: PermAttendanceRecord, Description: "Check in and out"},
	{Key: PermAttendanceApprove, Description: "Approve attendance corrections"},
	{Key: PermLeaveRequest, Description: "Submit leave requests"},
	{Key: PermLeaveView, Description: "View leave requests"},
	{Key: PermLeaveApprove, Description: "Approve or reject leave requests"},
	{Key: PermHolidayManage, Description: "Manage public holidays"},
	{Key: PermEmployeeManage, Description: "Manage employee profiles"},
	{Key: PermEntryRecord, Description: "Record site entries and exits"},
	{Key: PermEntryView, Description: "View entry/exit records"},
	{Key: PermLabourManage, Description: "Register and manage labour"},
	{Key: PermVisitorManage, Description: "Register and manage visitors"},
	{Key: PermProjectManage, Description: "Manage projects and contractors"},
	{Key: PermGuardAssign, Description: "Assign guards to projects"},
	{Key: PermTenantManage, Description: "Manage tenants"},
	{Key: PermRoleManage, Description: "Manage roles and their permissions"},
	{Key: PermUserManage, Description: "Manage users and role assignments"},
	{Key: PermFeatureManage, Description: "Toggle feature flags"},
	{Key: PermAuditView, Description: "Read the audit trail"},
}
