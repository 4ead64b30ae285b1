// Package workforce covers employees, attendance, leave and public holidays.
package workforce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crewgate.org/internal/ids"
)

// Service enforces workforce business rules on top of a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures optional Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs the workforce service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("workforce store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateEmployee registers an organizational profile for a user.
func (s *Service) CreateEmployee(ctx context.Context, userID, fullName, department, phone, managerID string) (*Employee, error) {
	userID = strings.TrimSpace(userID)
	fullName = strings.TrimSpace(fullName)
	if userID == "" || fullName == "" {
		return nil, fmt.Errorf("%w: user id and full name are required", ErrInvalidInput)
	}
	managerID = strings.TrimSpace(managerID)
	if managerID != "" {
		if _, err := s.store.GetEmployee(ctx, managerID); err != nil {
			return nil, fmt.Errorf("manager lookup: %w", err)
		}
	}
	now := s.now().UTC()
	e := &Employee{
		ID:         ids.NewPrefixed("emp"),
		UserID:     userID,
		FullName:   fullName,
		Department: strings.TrimSpace(department),
		Phone:      strings.TrimSpace(phone),
		ManagerID:  managerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateEmployee(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// GetEmployee fetches one employee by id.
func (s *Service) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: employee id is required", ErrInvalidInput)
	}
	return s.store.GetEmployee(ctx, id)
}

// GetEmployeeByUser fetches the profile bound to a user account.
func (s *Service) GetEmployeeByUser(ctx context.Context, userID string) (*Employee, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.GetEmployeeByUser(ctx, userID)
}

// ListEmployees lists profiles, optionally filtered by department.
func (s *Service) ListEmployees(ctx context.Context, department string) ([]Employee, error) {
	return s.store.ListEmployees(ctx, strings.TrimSpace(department))
}

// UpdateEmployee applies a partial update. Manager changes are checked for
// reporting cycles before they are written.
func (s *Service) UpdateEmployee(ctx context.Context, id string, upd EmployeeUpdate) (*Employee, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: employee id is required", ErrInvalidInput)
	}
	if upd.FullName != nil && strings.TrimSpace(*upd.FullName) == "" {
		return nil, fmt.Errorf("%w: full name cannot be empty", ErrInvalidInput)
	}
	if upd.ManagerID != nil && strings.TrimSpace(*upd.ManagerID) != "" {
		managerID := strings.TrimSpace(*upd.ManagerID)
		if err := s.checkManagerCycle(ctx, id, managerID); err != nil {
			return nil, err
		}
		upd.ManagerID = &managerID
	}
	return s.store.UpdateEmployee(ctx, id, upd)
}

// checkManagerCycle walks the proposed manager's chain upward; reaching the
// employee being updated would create a reporting loop.
func (s *Service) checkManagerCycle(ctx context.Context, employeeID, managerID string) error {
	if managerID == employeeID {
		return fmt.Errorf("%w: employee cannot manage themselves", ErrInvalidInput)
	}
	seen := map[string]bool{employeeID: true}
	cur := managerID
	for cur != "" {
		if seen[cur] {
			return fmt.Errorf("%w: manager assignment creates a reporting cycle", ErrInvalidInput)
		}
		seen[cur] = true
		mgr, err := s.store.GetEmployee(ctx, cur)
		if err != nil {
			return fmt.Errorf("manager lookup: %w", err)
		}
		cur = mgr.ManagerID
	}
	return nil
}

// CheckIn opens the attendance record for the employee's current day. A
// second check-in on the same day is a conflict.
func (s *Service) CheckIn(ctx context.Context, employeeID string, lat, lon *float64) (*AttendanceRecord, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return nil, fmt.Errorf("%w: employee id is required", ErrInvalidInput)
	}
	if (lat == nil) != (lon == nil) {
		return nil, fmt.Errorf("%w: latitude and longitude must be provided together", ErrInvalidInput)
	}
	if lat != nil && (*lat < -90 || *lat > 90 || *lon < -180 || *lon > 180) {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}
	if _, err := s.store.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	rec := &AttendanceRecord{
		ID:         ids.NewPrefixed("att"),
		EmployeeID: employeeID,
		Day:        DayOf(now),
		CheckIn:    now,
		Latitude:   lat,
		Longitude:  lon,
		CreatedAt:  now,
	}
	if err := s.store.CreateAttendance(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CheckOut closes the current day's attendance record. It requires an open
// check-in and refuses a second check-out.
func (s *Service) CheckOut(ctx context.Context, employeeID string) (*AttendanceRecord, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return nil, fmt.Errorf("%w: employee id is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	rec, err := s.store.GetAttendanceForDay(ctx, employeeID, DayOf(now))
	if err != nil {
		return nil, err
	}
	if rec.CheckOut != nil {
		return nil, fmt.Errorf("%w: already checked out", ErrConflict)
	}
	return s.store.SetCheckOut(ctx, rec.ID, now)
}

// ListAttendance returns an employee's records within [from, to], inclusive.
func (s *Service) ListAttendance(ctx context.Context, employeeID string, from, to time.Time) ([]AttendanceRecord, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return nil, fmt.Errorf("%w: employee id is required", ErrInvalidInput)
	}
	from, to = DayOf(from), DayOf(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end precedes start", ErrInvalidInput)
	}
	return s.store.ListAttendance(ctx, employeeID, from, to)
}

// SubmitLeave files a leave request. The chargeable day count excludes public
// holidays inside the range, and the request is rejected outright when the
// remaining entitlement cannot cover it. With autoApprove the request is
// approved in the same call.
func (s *Service) SubmitLeave(ctx context.Context, employeeID, leaveType string, from, to time.Time, reason string, autoApprove bool) (*LeaveRequest, error) {
	employeeID = strings.TrimSpace(employeeID)
	leaveType = strings.TrimSpace(leaveType)
	if employeeID == "" || leaveType == "" {
		return nil, fmt.Errorf("%w: employee id and leave type are required", ErrInvalidInput)
	}
	from, to = DayOf(from), DayOf(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: leave range end precedes start", ErrInvalidInput)
	}
	if _, err := s.store.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}

	days, err := s.chargeableDays(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if days == 0 {
		return nil, fmt.Errorf("%w: range contains no chargeable days", ErrInvalidInput)
	}
	if err := s.checkBalance(ctx, employeeID, leaveType, from.Year(), days); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	req := &LeaveRequest{
		ID:         ids.NewPrefixed("lvr"),
		EmployeeID: employeeID,
		LeaveType:  leaveType,
		FromDate:   from,
		ToDate:     to,
		Days:       days,
		Reason:     strings.TrimSpace(reason),
		Status:     LeavePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateLeaveRequest(ctx, req); err != nil {
		return nil, err
	}
	if autoApprove {
		return s.decide(ctx, req.ID, LeaveApproved, "system")
	}
	return req, nil
}

// ApproveLeave moves a pending request to approved and charges the
// entitlement.
func (s *Service) ApproveLeave(ctx context.Context, requestID, approverUserID string) (*LeaveRequest, error) {
	approverUserID = strings.TrimSpace(approverUserID)
	if approverUserID == "" {
		return nil, fmt.Errorf("%w: approver is required", ErrInvalidInput)
	}
	return s.decide(ctx, requestID, LeaveApproved, approverUserID)
}

// RejectLeave moves a pending request to rejected.
func (s *Service) RejectLeave(ctx context.Context, requestID, approverUserID string) (*LeaveRequest, error) {
	approverUserID = strings.TrimSpace(approverUserID)
	if approverUserID == "" {
		return nil, fmt.Errorf("%w: approver is required", ErrInvalidInput)
	}
	return s.decide(ctx, requestID, LeaveRejected, approverUserID)
}

// CancelLeave lets the owning employee withdraw a pending request.
func (s *Service) CancelLeave(ctx context.Context, requestID, employeeID string) (*LeaveRequest, error) {
	req, err := s.store.GetLeaveRequest(ctx, strings.TrimSpace(requestID))
	if err != nil {
		return nil, err
	}
	if req.EmployeeID != strings.TrimSpace(employeeID) {
		return nil, fmt.Errorf("%w: request belongs to another employee", ErrInvalidInput)
	}
	return s.decide(ctx, req.ID, LeaveCancelled, req.EmployeeID)
}

func (s *Service) decide(ctx context.Context, requestID, status, decidedBy string) (*LeaveRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, fmt.Errorf("%w: request id is required", ErrInvalidInput)
	}
	req, err := s.store.GetLeaveRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != LeavePending {
		return nil, fmt.Errorf("%w: request is %s, only pending requests can be decided", ErrConflict, req.Status)
	}
	if status == LeaveApproved {
		// Re-check at decision time; other approvals may have landed since
		// submission.
		if err := s.checkBalance(ctx, req.EmployeeID, req.LeaveType, req.FromDate.Year(), req.Days); err != nil {
			return nil, err
		}
		if err := s.store.AddEntitlementUsage(ctx, req.EmployeeID, req.LeaveType, req.FromDate.Year(), req.Days); err != nil {
			return nil, err
		}
	}
	return s.store.SetLeaveStatus(ctx, requestID, status, decidedBy)
}

// ListLeaveRequests filters by employee and/or status; empty strings match
// everything.
func (s *Service) ListLeaveRequests(ctx context.Context, employeeID, status string) ([]LeaveRequest, error) {
	status = strings.TrimSpace(status)
	switch status {
	case "", LeavePending, LeaveApproved, LeaveRejected, LeaveCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown leave status %q", ErrInvalidInput, status)
	}
	return s.store.ListLeaveRequests(ctx, strings.TrimSpace(employeeID), status)
}

// SetEntitlement sets the allocation for (employee, type, year), preserving
// any usage already recorded.
func (s *Service) SetEntitlement(ctx context.Context, employeeID, leaveType string, year, allocated int) (*LeaveEntitlement, error) {
	employeeID = strings.TrimSpace(employeeID)
	leaveType = strings.TrimSpace(leaveType)
	if employeeID == "" || leaveType == "" {
		return nil, fmt.Errorf("%w: employee id and leave type are required", ErrInvalidInput)
	}
	if year < 2000 || year > 2200 {
		return nil, fmt.Errorf("%w: implausible year %d", ErrInvalidInput, year)
	}
	if allocated < 0 {
		return nil, fmt.Errorf("%w: allocation cannot be negative", ErrInvalidInput)
	}
	ent := &LeaveEntitlement{
		ID:         ids.NewPrefixed("ent"),
		EmployeeID: employeeID,
		LeaveType:  leaveType,
		Year:       year,
		Allocated:  allocated,
	}
	if err := s.store.UpsertEntitlement(ctx, ent); err != nil {
		return nil, err
	}
	return s.store.GetEntitlement(ctx, employeeID, leaveType, year)
}

// GetEntitlement returns the allocation row for (employee, type, year).
func (s *Service) GetEntitlement(ctx context.Context, employeeID, leaveType string, year int) (*LeaveEntitlement, error) {
	return s.store.GetEntitlement(ctx, strings.TrimSpace(employeeID), strings.TrimSpace(leaveType), year)
}

func (s *Service) checkBalance(ctx context.Context, employeeID, leaveType string, year, days int) error {
	ent, err := s.store.GetEntitlement(ctx, employeeID, leaveType, year)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: no %s entitlement for %d", ErrInsufficientBalance, leaveType, year)
		}
		return err
	}
	if ent.Allocated-ent.Used < days {
		return fmt.Errorf("%w: %d day(s) requested, %d remaining", ErrInsufficientBalance, days, ent.Allocated-ent.Used)
	}
	return nil
}

// chargeableDays counts calendar days in [from, to] minus public holidays.
func (s *Service) chargeableDays(ctx context.Context, from, to time.Time) (int, error) {
	holidays := map[time.Time]bool{}
	for year := from.Year(); year <= to.Year(); year++ {
		hs, err := s.store.ListHolidays(ctx, year)
		if err != nil {
			return 0, err
		}
		for _, h := range hs {
			holidays[DayOf(h.Date)] = true
		}
	}
	days := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if !holidays[d] {
			days++
		}
	}
	return days, nil
}

// CreateHoliday registers a public holiday.
func (s *Service) CreateHoliday(ctx context.Context, date time.Time, name string) (*PublicHoliday, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: holiday name is required", ErrInvalidInput)
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: holiday date is required", ErrInvalidInput)
	}
	h := &PublicHoliday{
		ID:   ids.NewPrefixed("hol"),
		Date: DayOf(date),
		Name: name,
	}
	if err := s.store.CreateHoliday(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// ListHolidays returns the holidays of one calendar year.
func (s *Service) ListHolidays(ctx context.Context, year int) ([]PublicHoliday, error) {
	if year <= 0 {
		year = s.now().UTC().Year()
	}
	return s.store.ListHolidays(ctx, year)
}

// DeleteHoliday removes a holiday by id.
func (s *Service) DeleteHoliday(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: holiday id is required", ErrInvalidInput)
	}
	return s.store.DeleteHoliday(ctx, id)
}
