package workforce

import (
	"context"
	"time"
)

// Store describes workforce persistence. Implementations translate driver
// errors into the package sentinels.
type Store interface {
	CreateEmployee(ctx context.Context, e *Employee) error
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	GetEmployeeByUser(ctx context.Context, userID string) (*Employee, error)
	ListEmployees(ctx context.Context, department string) ([]Employee, error)
	UpdateEmployee(ctx context.Context, id string, upd EmployeeUpdate) (*Employee, error)

	CreateAttendance(ctx context.Context, rec *AttendanceRecord) error
	GetAttendanceForDay(ctx context.Context, employeeID string, day time.Time) (*AttendanceRecord, error)
	SetCheckOut(ctx context.Context, recordID string, at time.Time) (*AttendanceRecord, error)
	ListAttendance(ctx context.Context, employeeID string, from, to time.Time) ([]AttendanceRecord, error)

	CreateLeaveRequest(ctx context.Context, req *LeaveRequest) error
	GetLeaveRequest(ctx context.Context, id string) (*LeaveRequest, error)
	ListLeaveRequests(ctx context.Context, employeeID, status string) ([]LeaveRequest, error)
	SetLeaveStatus(ctx context.Context, id, status, decidedBy string) (*LeaveRequest, error)

	GetEntitlement(ctx context.Context, employeeID, leaveType string, year int) (*LeaveEntitlement, error)
	UpsertEntitlement(ctx context.Context, ent *LeaveEntitlement) error
	AddEntitlementUsage(ctx context.Context, employeeID, leaveType string, year, days int) error

	CreateHoliday(ctx context.Context, h *PublicHoliday) error
	ListHolidays(ctx context.Context, year int) ([]PublicHoliday, error)
	DeleteHoliday(ctx context.Context, id string) error
}
