package workforce

import (
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("workforce: not found")
	ErrConflict            = errors.New("workforce: resource conflict")
	ErrInvalidInput        = errors.New("workforce: invalid input")
	ErrInsufficientBalance = errors.New("workforce: insufficient leave balance")
)

// Employee is an organizational profile tied 1:1 to a user. It is not an
// identity record; attendance and entry/exit reference it for org metadata.
type Employee struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	FullName   string    `json:"full_name"`
	Department string    `json:"department,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	ManagerID  string    `json:"manager_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EmployeeUpdate carries partial employee changes. Nil fields are untouched;
// a non-nil empty ManagerID clears the manager.
type EmployeeUpdate struct {
	FullName   *string
	Department *string
	Phone      *string
	ManagerID  *string
}

// AttendanceRecord is one employee-day. Unique per (employee, day).
type AttendanceRecord struct {
	ID         string     `json:"id"`
	EmployeeID string     `json:"employee_id"`
	Day        time.Time  `json:"day"`
	CheckIn    time.Time  `json:"check_in"`
	CheckOut   *time.Time `json:"check_out,omitempty"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Leave request lifecycle states.
const (
	LeavePending   = "pending"
	LeaveApproved  = "approved"
	LeaveRejected  = "rejected"
	LeaveCancelled = "cancelled"
)

// LeaveRequest is an employee's request for a date range of a leave type.
type LeaveRequest struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	LeaveType  string    `json:"leave_type"`
	FromDate   time.Time `json:"from_date"`
	ToDate     time.Time `json:"to_date"`
	Days       int       `json:"days"`
	Reason     string    `json:"reason,omitempty"`
	Status     string    `json:"status"`
	DecidedBy  string    `json:"decided_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LeaveEntitlement is the allocation for (employee, type, year).
type LeaveEntitlement struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	LeaveType  string `json:"leave_type"`
	Year       int    `json:"year"`
	Allocated  int    `json:"allocated"`
	Used       int    `json:"used"`
}

// PublicHoliday is a non-working date. Leave spanning one does not consume
// entitlement.
type PublicHoliday struct {
	ID   string    `json:"id"`
	Date time.Time `json:"date"`
	Name string    `json:"name"`
}

// DayOf truncates a timestamp to its UTC calendar date.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
